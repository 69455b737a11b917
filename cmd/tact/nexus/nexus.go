// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package nexus implements a command to convert between a Nexus trees
// block and the TSV tree format.
package nexus

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/js-arias/command"

	"github.com/js-arias/tact"
)

var Command = &command.Command{
	Usage: `nexus [--import] [--age <value>]
	[-o|--output <file>] [<file>...]`,
	Short: "converts between nexus and TSV trees",
	Long: `
Command nexus writes one or more TSV trees as a Nexus trees block.

With the flag --import, it does the reverse instead: it reads one or
more files in Nexus format and writes them as an equivalent TSV file,
the way command newick --import reads a Newick file.

If no file is given, input is read from the standard input. By default
the output is printed to the standard output; use --output, or -o, to
define an output file.

When importing, the flag --age sets the age of the root (in million
years); by default it is inferred from the largest branch length between
the root and its terminals.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var output string
var age float64
var importFlag bool

func setFlags(c *command.Command) {
	c.Flags().StringVar(&output, "output", "", "")
	c.Flags().StringVar(&output, "o", "", "")
	c.Flags().Float64Var(&age, "age", 0, "")
	c.Flags().BoolVar(&importFlag, "import", false, "")
}

const millionYears = 1_000_000

func run(c *command.Command, args []string) error {
	if importFlag {
		return runImport(c, args)
	}
	return runExport(c, args)
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

	if err := tact.WriteNexus(w, coll); err != nil {
		return fmt.Errorf("while writing to %q: %v", outName, err)
	}
	return nil
}

func runImport(c *command.Command, args []string) error {
	coll, err := openOutput()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = append(args, "-")
	}
	for _, a := range args {
		nc, err := readNexus(c.Stdin(), a)
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

	return writeTrees(c.Stdout(), coll)
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

func readNexus(r io.Reader, name string) (*tact.Collection, error) {
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

	c, err := tact.Nexus(r, int64(age*millionYears))
	if err != nil {
		return nil, fmt.Errorf("while reading file %q: %v", name, err)
	}
	return c, nil
}

func writeTrees(w io.Writer, c *tact.Collection) (err error) {
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
