// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package resolve implements a command to graft the unsampled species of
// a taxonomy onto a backbone phylogeny.
package resolve

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/js-arias/command"

	"github.com/js-arias/tact"
	"github.com/js-arias/tact/run"
	"github.com/js-arias/tact/taxonomy"
)

var Command = &command.Command{
	Usage: `resolve [--tree <name>] --taxonomy <file>
	[--min-ccp <value>] [--yule] [--precision <value>]
	[--seed <value>] [--outgroups <names>]
	[--rates <file>] [--log <file>]
	[-o|--output <file>] <treefile>`,
	Short: "graft unsampled species onto a backbone tree",
	Long: `
Command resolve reads a backbone tree in TSV format and a taxonomy in CSV
format, fits a diversification-rate model to every taxonomic group sampled
in the backbone, and grafts every unsampled species at a branching time
drawn from that model.

A tree file in TSV format must be given as an argument. If the file
contains more than one tree, use --tree to select which one to resolve;
otherwise the first tree (in name order) is used.

The flag --taxonomy, required, gives the CSV taxonomy file.

The flag --min-ccp sets the crown-capture-probability admission threshold
(default 0.8). The flag --yule forces every rate fit to death = 0. The
flag --precision sets the ultrametricity tolerance, as a fraction of the
root age (default 0.000001). The flag --seed sets the integer seed that
parameterizes every random draw (default 0). The flag --outgroups gives a comma-separated list of terminal names
to prune from the backbone before any fitting.

The flag --rates gives a file to receive the rates table actually used
during placement. The flag --log gives a file to receive the run's
classified log events; by default they are sent to the standard error.

The resulting tree is written, in TSV format, to the standard output. Use
the flag --output, or -o, to define an output file.
	`,
	SetFlags: setFlags,
	Run:      runCmd,
}

var (
	treeName  string
	taxFile   string
	minCCP    float64
	yuleFlag  bool
	precision float64
	seed      int64
	outgroups string
	ratesFile string
	logFile   string
	output    string
)

func setFlags(c *command.Command) {
	c.Flags().StringVar(&treeName, "tree", "", "")
	c.Flags().StringVar(&taxFile, "taxonomy", "", "")
	c.Flags().Float64Var(&minCCP, "min-ccp", 0, "")
	c.Flags().BoolVar(&yuleFlag, "yule", false, "")
	c.Flags().Float64Var(&precision, "precision", 0, "")
	c.Flags().Int64Var(&seed, "seed", 0, "")
	c.Flags().StringVar(&outgroups, "outgroups", "", "")
	c.Flags().StringVar(&ratesFile, "rates", "", "")
	c.Flags().StringVar(&logFile, "log", "", "")
	c.Flags().StringVar(&output, "output", "", "")
	c.Flags().StringVar(&output, "o", "", "")
}

func runCmd(c *command.Command, args []string) (err error) {
	if len(args) != 1 {
		return c.UsageError("expecting a single tree file")
	}
	if taxFile == "" {
		return c.UsageError("flag --taxonomy must be defined")
	}

	bb, err := readBackbone(args[0])
	if err != nil {
		return err
	}

	tax, err := readTaxonomy(taxFile)
	if err != nil {
		return err
	}

	cfg := run.Config{
		MinCCP:    minCCP,
		Yule:      yuleFlag,
		Precision: precision,
		Seed:      uint64(seed),
		Outgroups: parseOutgroups(outgroups),
	}

	var logW io.Writer = c.Stderr()
	if logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			return err
		}
		defer f.Close()
		logW = f
	}
	logger := run.NewWriterLogger(logW)

	res, err := run.Resolve(context.Background(), bb, tax, cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("while resolving %q: %v", bb.Name(), err)
	}
	fmt.Fprintf(logW, "info\tSummary\t%s: placed %d, fully-locked %d, ccp-fallback %d, min-age-violations %d, rogue-tips %d, rate-fit-failures %d\n",
		bb.Name(), res.NumPlaced, res.NumFullyLocked, res.NumCCPFallback, res.NumMinAgeViol, res.NumRogueTips, res.NumFitFailed)

	if ratesFile != "" {
		if err := writeRates(ratesFile, res); err != nil {
			return err
		}
	}

	return writeBackbone(c.Stdout(), bb)
}

func parseOutgroups(v string) map[string]bool {
	if v == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, n := range strings.Split(v, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out[n] = true
	}
	return out
}

func readBackbone(name string) (*tact.Tree, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	coll, err := tact.ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("while reading file %q: %v", name, err)
	}

	names := coll.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("file %q: no trees", name)
	}
	tn := treeName
	if tn == "" {
		tn = names[0]
	}
	t := coll.Tree(tn)
	if t == nil {
		return nil, fmt.Errorf("file %q: tree %q not found", name, tn)
	}
	return t, nil
}

func readTaxonomy(name string) (*taxonomy.Taxonomy, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tx, err := taxonomy.BuildFromCSV(f)
	if err != nil {
		return nil, fmt.Errorf("while reading file %q: %v", name, err)
	}
	return tx, nil
}

func writeRates(name string, res *run.Result) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		e := f.Close()
		if e != nil && err == nil {
			err = e
		}
	}()
	if err := run.WriteRates(f, res); err != nil {
		return fmt.Errorf("while writing to %q: %v", name, err)
	}
	return nil
}

func writeBackbone(w io.Writer, t *tact.Tree) (err error) {
	outName := "stdout"
	dst := w
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
		dst = f
	}

	coll := tact.NewCollection()
	if err := coll.Add(t); err != nil {
		return err
	}
	if err := coll.TSV(dst); err != nil {
		return fmt.Errorf("while writing to %q: %v", outName, err)
	}
	return nil
}
