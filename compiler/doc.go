/*
Package compiler turns elementwise expression recipes into x86-64 code.

Process of compilation

	Recipe Text ->
		express.Parse ->
	Expression (express) ->
		CSE, MulAdd fusion ->
	Optimized Expression ->
		gen.Select ->
	Generator Cascade (gen) ->
		simd.Plan ->
	Phases (simd) ->
		emit ->
	Instructions and Constant Pool (asm) ->
		format.Program ->
	Assembly Listing

The kernel calling convention: rdi points to an array of tensor base
addresses, inputs first then outputs.
*/
package compiler
