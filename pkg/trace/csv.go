package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{"t", "cmd", "act", "vel", "acc", "lag"}

// WriteCSV writes samples with a header row.
func WriteCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	row := make([]string, len(csvHeader))
	for _, s := range samples {
		for i, v := range []float64{s.T, s.Cmd, s.Act, s.Vel, s.Acc, s.Lag} {
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads samples written by WriteCSV.
func ReadCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read trace: missing header")
	}
	for i, h := range csvHeader {
		if rows[0][i] != h {
			return nil, fmt.Errorf("read trace: unexpected column %q", rows[0][i])
		}
	}
	out := make([]Sample, 0, len(rows)-1)
	for n, row := range rows[1:] {
		var v [6]float64
		for i, field := range row {
			f, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("read trace: line %d: %w", n+2, err)
			}
			v[i] = f
		}
		out = append(out, Sample{T: v[0], Cmd: v[1], Act: v[2], Vel: v[3], Acc: v[4], Lag: v[5]})
	}
	return out, nil
}
