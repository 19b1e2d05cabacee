package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"churnguard/customer"
)

// WriteTable writes the header and one row per record.
func WriteTable(w io.Writer, records []customer.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(customer.Columns()); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable parses a table written by WriteTable. An empty input is an empty
// table. Every row must carry a valid prediction.
func ReadTable(r io.Reader) ([]customer.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(customer.Columns())
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []customer.Record{}, nil
	}
	if err != nil {
		return nil, &StorageReadError{Line: 1, Err: err}
	}
	if err := checkHeader(header); err != nil {
		return nil, &StorageReadError{Line: 1, Err: err}
	}

	records := make([]customer.Record, 0)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.Line
			}
			return nil, &StorageReadError{Line: line, Err: err}
		}
		line, _ := cr.FieldPos(0)
		rec, err := customer.FromRow(row)
		if err == nil {
			err = rec.Validate(storedBounds, true)
		}
		if err != nil {
			return nil, &StorageReadError{Line: line, Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

func checkHeader(header []string) error {
	want := customer.Columns()
	for i, col := range want {
		if header[i] != col {
			return fmt.Errorf("column %d is %q, want %q", i+1, header[i], col)
		}
	}
	return nil
}
