// Package harness runs relay scenarios end to end and pins their traces
// with golden files.
//
// A scenario builds a roster of named, aged entities, pushes print events
// at them and runs the two-stage relay: the print drain joins each event
// with its target's name and forwards it through a shared push into the
// shout store; the shout drain joins with ages and upper-cases the line.
//
// # Scenario Format
//
// Scenarios are YAML files, decoded strictly (unknown fields fail) and
// checked against an embedded CUE schema:
//
//	name: print_shout
//	description: "What this scenario validates"
//	run_token: run-print-shout   # optional, fixed for golden traces
//	workers: 4                   # optional pool size
//	entities:
//	  - name: Alice
//	    age: 30
//	  - name: Bob
//	    age: 41
//	    despawn: true            # removed before the first drain
//	events:
//	  - target: 0                # position in entities
//	    append: says hi
//	expect:                      # optional
//	  lines: ["ALICE SAYS HI is 30"]
//	  skipped: 0
//
// # Determinism
//
// Drain order across workers is unspecified, so shouted lines are sorted
// before they are reported. Stage sequence numbers come from a
// pipeline.Clock reset at the start of every run and the run token is
// fixed, so one scenario yields byte-identical traces for any pool size.
package harness
