// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package newick implements a command to convert between a phylogenetic
// tree in Newick format and the TSV tree format.
package newick

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/js-arias/command"

	"github.com/js-arias/tact"
)

var Command = &command.Command{
	Usage: `newick [--tree <name>] [--import [--name <tree-name>]
	[--age <value>]] [-o|--output <file>] [<file>...]`,
	Short: "converts between newick and TSV trees",
	Long: `
Command newick reads one or more trees in TSV format and writes them in
Newick (parenthetical) format.

If no file is given, trees are read from the standard input. By default
every tree is written; use --tree to select a single one.

By default the output is printed to the standard output. Use --output, or
-o, to define an output file.

With the flag --import, it does the reverse instead: it reads one or
more files in Newick format (a backbone phylogeny in Newick format is
read this way before it can be given to command resolve, which only
reads and writes TSV) and writes them as an equivalent TSV file.

Newick trees carry no tree name, so importing requires the flag --name,
which sets the name of the first imported tree; if a file holds more
than one tree, later trees are named "<name>.1", "<name>.2", and so on.

When importing, the flag --age sets the age of the root (in million
years); by default it is inferred from the largest branch length between
the root and its terminals.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var treeName string
var output string
var importFlag bool
var nameFlag string
var age float64

func setFlags(c *command.Command) {
	c.Flags().StringVar(&treeName, "tree", "", "")
	c.Flags().StringVar(&output, "output", "", "")
	c.Flags().StringVar(&output, "o", "", "")
	c.Flags().BoolVar(&importFlag, "import", false, "")
	c.Flags().StringVar(&nameFlag, "name", "", "")
	c.Flags().Float64Var(&age, "age", 0, "")
}

const millionYears = 1_000_000

func run(c *command.Command, args []string) error {
	if importFlag {
		if nameFlag == "" {
			return c.UsageError("flag --name undefined")
		}
		return runImport(c, args)
	}
	return runExport(c, args)
}

func runImport(c *command.Command, args []string) error {
	coll, err := openOutput()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = append(args, "-")
	}
	for i, a := range args {
		nm := nameFlag
		if i > 0 {
			nm = fmt.Sprintf("%s.%d", nameFlag, i)
		}

		nc, err := readNewick(c.Stdin(), a, nm)
		if err != nil {
			return err
		}
		for _, tn := range nc.Names() {
			t := nc.Tree(tn)
			if err := coll.Add(t); err != nil {
				return fmt.Errorf("when adding trees from %q: %v", a, err)
			}
		}
	}

	return writeTSV(c.Stdout(), coll)
}

func openOutput() (*tact.Collection, error) {
	if output == "" {
		return tact.NewCollection(), nil
	}
	f, err := os.Open(output)
	if errors.Is(err, os.ErrNotExist) {
		return tact.NewCollection(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := tact.ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("while reading file %q: %v", output, err)
	}
	return c, nil
}

func readNewick(r io.Reader, name, treeName string) (*tact.Collection, error) {
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	} else {
		name = "stdin"
	}

	c, err := tact.Newick(r, treeName, int64(age*millionYears))
	if err != nil {
		return nil, fmt.Errorf("while reading file %q: %v", name, err)
	}
	return c, nil
}

func writeTSV(w io.Writer, c *tact.Collection) (err error) {
	outName := "stdout"
	if output != "" {
		outName = output
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer func() {
			e := f.Close()
			if e != nil && err == nil {
				err = e
			}
		}()
		w = f
	}

	if err := c.TSV(w); err != nil {
		return fmt.Errorf("while writing to %q: %v", outName, err)
	}
	return nil
}

func runExport(c *command.Command, args []string) (err error) {
	coll := tact.NewCollection()

	if len(args) == 0 {
		args = append(args, "-")
	}
	for _, a := range args {
		nc, err := readCollection(c.Stdin(), a)
		if err != nil {
			return err
		}
		for _, tn := range nc.Names() {
			t := nc.Tree(tn)
			if err := coll.Add(t); err != nil {
				return fmt.Errorf("when adding trees from %q: %v", a, err)
			}
		}
	}

	var names []string
	if treeName != "" {
		names = []string{treeName}
	} else {
		names = coll.Names()
	}

	w := c.Stdout()
	outName := "stdout"
	if output != "" {
		outName = output
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer func() {
			e := f.Close()
			if e != nil && err == nil {
				err = e
			}
		}()
		w = f
	}

	for _, tn := range names {
		t := coll.Tree(tn)
		if t == nil {
			return fmt.Errorf("tree %q not found", tn)
		}
		if err := t.WriteNewick(w); err != nil {
			return fmt.Errorf("while writing to %q: %v", outName, err)
		}
	}
	return nil
}

func readCollection(r io.Reader, name string) (*tact.Collection, error) {
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	} else {
		name = "stdin"
	}

	c, err := tact.ReadTSV(r)
	if err != nil {
		return nil, fmt.Errorf("while reading file %q: %v", name, err)
	}
	return c, nil
}
