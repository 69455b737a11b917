// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package tax implements a command to validate the terminal names of a
// tree against a taxonomy.
package tax

import (
	"fmt"
	"io"
	"os"

	"github.com/js-arias/command"
	"github.com/js-arias/gbifer/taxonomy"

	"github.com/js-arias/tact"
	tacttax "github.com/js-arias/tact/taxonomy"
)

var Command = &command.Command{
	Usage: `tax --taxonomy <file> [--gbif <file>] <treefile>...`,
	Short: "validate terminal names of a tree",
	Long: `
Command tax reads one or more trees in TSV format and checks every
terminal name against a taxonomy, reporting to the standard error any
terminal that is not a known species of the taxonomy.

One or more tree files must be given as arguments. The flag --taxonomy,
required, gives the CSV taxonomy file.

The flag --gbif is optional and gives a GBIF-backbone-style taxonomy file
(the "name, taxonKey, rank, status, parent" shape, as read by
github.com/js-arias/gbifer/taxonomy). When given, any terminal absent
from the main taxonomy is looked up there as well, so a name that is a
junior synonym of a taxonomy species is reported as a synonym match
instead of as simply unknown.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var taxFile string
var gbifFile string

func setFlags(c *command.Command) {
	c.Flags().StringVar(&taxFile, "taxonomy", "", "")
	c.Flags().StringVar(&gbifFile, "gbif", "", "")
}

func run(c *command.Command, args []string) error {
	if len(args) == 0 {
		return c.UsageError("expecting one or more tree files")
	}
	if taxFile == "" {
		return c.UsageError("flag --taxonomy must be defined")
	}

	tx, err := readTaxonomy(taxFile)
	if err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, sp := range tx.AllSpecies() {
		known[sp] = true
	}

	var gbif *taxonomy.Taxonomy
	if gbifFile != "" {
		gbif, err = readGBIF(gbifFile)
		if err != nil {
			return err
		}
	}

	for _, a := range args {
		coll, err := readCollection(a)
		if err != nil {
			return err
		}
		for _, tn := range coll.Names() {
			t := coll.Tree(tn)
			validateTree(c.Stderr(), t, known, gbif)
		}
	}
	return nil
}

func readCollection(name string) (*tact.Collection, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := tact.ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("while reading file %q: %v", name, err)
	}
	return c, nil
}

func readTaxonomy(name string) (*tacttax.Taxonomy, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tx, err := tacttax.BuildFromCSV(f)
	if err != nil {
		return nil, fmt.Errorf("on file %q: %v", name, err)
	}
	return tx, nil
}

func readGBIF(name string) (*taxonomy.Taxonomy, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tx, err := taxonomy.Read(f)
	if err != nil {
		return nil, fmt.Errorf("on file %q: %v", name, err)
	}
	return tx, nil
}

// validateTree reports, on w, every terminal of t absent from known. If
// gbif is given, an absent terminal that resolves to an accepted GBIF
// taxon is reported as a synonym match instead.
func validateTree(w io.Writer, t *tact.Tree, known map[string]bool, gbif *taxonomy.Taxonomy) {
	var absent []string
	var synonyms []string
	for _, n := range t.Terms() {
		if known[n] {
			continue
		}
		if gbif != nil {
			if accepted, ok := acceptedName(gbif, n); ok {
				synonyms = append(synonyms, fmt.Sprintf("%s -> %s", n, accepted))
				continue
			}
		}
		absent = append(absent, n)
	}

	if len(synonyms) > 0 {
		fmt.Fprintf(w, "%s: synonym matches in gbif taxonomy:\n", t.Name())
		for _, s := range synonyms {
			fmt.Fprintf(w, "\t%s\n", s)
		}
	}
	if len(absent) == 0 {
		return
	}
	fmt.Fprintf(w, "%s: not in taxonomy:\n", t.Name())
	for _, n := range absent {
		fmt.Fprintf(w, "\t%s\n", n)
	}
}

// acceptedName looks up name in a GBIF-style taxonomy and returns the
// accepted, ranked taxon name it resolves to, if any.
func acceptedName(gbif *taxonomy.Taxonomy, name string) (string, bool) {
	ids := gbif.ByName(name)
	if len(ids) == 0 {
		return "", false
	}
	tx := gbif.AcceptedAndRanked(ids[0])
	if tx.Name == "" {
		return "", false
	}
	return tx.Name, true
}
