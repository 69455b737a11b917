// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package run

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/js-arias/tact/place"
)

var ratesHeader = []string{"taxon", "birth", "death", "ccp", "source"}

// WriteRates writes a Result's rates table as a CSV file with header
// "taxon,birth,death,ccp,source", one row per taxonomic node placement
// was attempted for.
func WriteRates(w io.Writer, res *Result) error {
	bw := bufio.NewWriter(w)
	tab := csv.NewWriter(bw)

	if err := tab.Write(ratesHeader); err != nil {
		return err
	}

	paths := make([]string, 0, len(res.Rates))
	for p := range res.Rates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		row := res.Rates[p]
		rec := []string{
			p,
			strconv.FormatFloat(row.Birth, 'g', -1, 64),
			strconv.FormatFloat(row.Death, 'g', -1, 64),
			strconv.FormatFloat(row.CCP, 'g', -1, 64),
			row.Source,
		}
		if err := tab.Write(rec); err != nil {
			return err
		}
	}
	tab.Flush()
	if err := tab.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadRates reads a rates table written by WriteRates, keyed by taxon
// path.
func ReadRates(r io.Reader) (map[string]place.RateRow, error) {
	tab := csv.NewReader(bufio.NewReader(r))
	tab.FieldsPerRecord = -1

	head, err := tab.Read()
	if err != nil {
		return nil, fmt.Errorf("while reading header: %v", err)
	}
	fields := make(map[string]int, len(head))
	for i, f := range head {
		fields[f] = i
	}
	for _, f := range ratesHeader {
		if _, ok := fields[f]; !ok {
			return nil, fmt.Errorf("expecting field %q", f)
		}
	}

	out := make(map[string]place.RateRow)
	for {
		row, err := tab.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		birth, err := strconv.ParseFloat(row[fields["birth"]], 64)
		if err != nil {
			return nil, fmt.Errorf("field birth: %v", err)
		}
		death, err := strconv.ParseFloat(row[fields["death"]], 64)
		if err != nil {
			return nil, fmt.Errorf("field death: %v", err)
		}
		ccp, err := strconv.ParseFloat(row[fields["ccp"]], 64)
		if err != nil {
			return nil, fmt.Errorf("field ccp: %v", err)
		}

		out[row[fields["taxon"]]] = place.RateRow{
			Birth:  birth,
			Death:  death,
			CCP:    ccp,
			Source: row[fields["source"]],
		}
	}
	return out, nil
}
