package main

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
)

func parseConstants(s string) (r []float64, err error) {
	if s == "" {
		return nil, nil
	}

	for i, f := range strings.Split(s, ",") {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errors.Wrap(err, "constant %d", i)
		}

		r = append(r, x)
	}

	return r, nil
}
