// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Tact resolves polytomies in a time calibrated phylogeny by grafting
// unsampled species drawn from a taxonomy, using a stochastic
// birth-death model fitted from the backbone itself.
package main

import (
	"github.com/js-arias/command"

	"github.com/js-arias/tact/cmd/tact/newick"
	"github.com/js-arias/tact/cmd/tact/nexus"
	"github.com/js-arias/tact/cmd/tact/resolve"
	"github.com/js-arias/tact/cmd/tact/sim"
	"github.com/js-arias/tact/cmd/tact/tax"
)

var app = &command.Command{
	Usage: "tact <command> [<argument>...]",
	Short: "stochastic polytomy resolution for time calibrated phylogenies",
}

func init() {
	app.Add(newick.Command)
	app.Add(nexus.Command)
	app.Add(resolve.Command)
	app.Add(sim.Command)
	app.Add(tax.Command)
}

func main() {
	app.Main()
}
