package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/ringgaard/sling-sub003/compiler"
	"github.com/ringgaard/sling-sub003/compiler/cpu"
	"github.com/ringgaard/sling-sub003/compiler/express"
	"github.com/ringgaard/sling-sub003/compiler/format"
	"github.com/ringgaard/sling-sub003/compiler/tp"
)

func main() {
	kernelFlags := []*cli.Flag{
		cli.NewFlag("type,t", "float32", "element type"),
		cli.NewFlag("count,n", 1024, "number of elements"),
		cli.NewFlag("features,f", "", "cpu features, host if empty"),
		cli.NewFlag("unroll", compiler.DefaultMaxUnroll, "max unroll"),
		cli.NewFlag("nofuse", false, "don't fuse Add(Mul) into MulAdd"),
		cli.NewFlag("const", "", "comma separated constant values"),
	}

	parseCmd := &cli.Command{
		Name:        "parse",
		Description: "parse recipes and print them back",
		Action:      parseAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("cse", false, "eliminate common subexpressions"),
			cli.NewFlag("fuse", false, "fuse Add(Mul) into MulAdd"),
		},
	}

	planCmd := &cli.Command{
		Name:        "plan",
		Description: "show generator selection and phases",
		Action:      planAct,
		Args:        cli.Args{},
		Flags:       kernelFlags,
	}

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile a recipe into assembly",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags:       kernelFlags,
	}

	cpuCmd := &cli.Command{
		Name:        "cpu",
		Description: "show host cpu features",
		Action:      cpuAct,
	}

	app := &cli.Command{
		Name:        "exprc",
		Description: "exprc compiles elementwise expression recipes into x86-64 code",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("v", "", "verbosity topics"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			parseCmd,
			planCmd,
			compileCmd,
			cpuCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	tlog.SetVerbosity(c.String("v"))

	return nil
}

func parseAct(c *cli.Command) (err error) {
	for _, a := range c.Args {
		e, err := express.Parse(a)
		if err != nil {
			return errors.Wrap(err, "parse %q", a)
		}

		if c.Bool("cse") {
			e.EliminateCommonSubexpressions()
		}

		if c.Bool("fuse") {
			e.FuseMulAdd()
		}

		fmt.Printf("%s\n", e.Recipe())
	}

	return nil
}

func planAct(c *cli.Command) (err error) {
	ctx := tlog.ContextWithSpan(context.Background(), tlog.Root())

	for _, a := range c.Args {
		k, opts, err := kernel(c, a)
		if err != nil {
			return err
		}

		pl, err := compiler.Prepare(ctx, k, opts)
		if err != nil {
			return errors.Wrap(err, "plan %q", a)
		}

		fmt.Printf("recipe   %s\n", pl.Expr.Recipe())
		fmt.Printf("main     %s (width %d)\n", pl.Selection.Main.Name(), pl.Selection.Main.VectorWidth())

		for _, g := range pl.Selection.Cascade[1:] {
			fmt.Printf("cascade  %s (width %d)\n", g.Name(), g.VectorWidth())
		}

		for _, r := range pl.Selection.Rejected {
			fmt.Printf("rejected %s: %s\n", r.Generator, r.Reason)
		}

		fmt.Printf("unroll   %d, fused %d\n", pl.Unroll, pl.Fused)

		for _, ph := range pl.Phases {
			fmt.Printf("phase    %-18s offset %6d  unroll %d  repeat %d  masked %d\n",
				ph.Gen.Name(), ph.Offset, ph.Unroll, ph.Repeat, ph.Masked)
		}
	}

	return nil
}

func compileAct(c *cli.Command) (err error) {
	ctx := tlog.ContextWithSpan(context.Background(), tlog.Root())

	for _, a := range c.Args {
		k, opts, err := kernel(c, a)
		if err != nil {
			return err
		}

		p, err := compiler.Compile(ctx, k, opts)
		if err != nil {
			return errors.Wrap(err, "compile %q", a)
		}

		b, err := format.Program(ctx, nil, p)
		if err != nil {
			return errors.Wrap(err, "format")
		}

		_, err = os.Stdout.Write(b)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

func cpuAct(c *cli.Command) error {
	fmt.Printf("%v\n", cpu.Host())

	return nil
}

func kernel(c *cli.Command, recipe string) (k compiler.Kernel, opts compiler.Options, err error) {
	k.Expr, err = express.Parse(recipe)
	if err != nil {
		return k, opts, errors.Wrap(err, "parse %q", recipe)
	}

	k.Type, err = tp.Parse(c.String("type"))
	if err != nil {
		return k, opts, err
	}

	k.Count = c.Int("count")

	k.Constants, err = parseConstants(c.String("const"))
	if err != nil {
		return k, opts, errors.Wrap(err, "constants")
	}

	opts.Features = cpu.Host()

	if s := c.String("features"); s != "" {
		opts.Features, err = cpu.Parse(s)
		if err != nil {
			return k, opts, errors.Wrap(err, "features")
		}
	}

	opts.MaxUnroll = c.Int("unroll")
	opts.NoFuse = c.Bool("nofuse")

	return k, opts, nil
}
