package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Decode parses a CSV document produced by Encode.
func Decode(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	if records[0][0] == Header[0] {
		records = records[1:]
	}
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		pred, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("row %d prediction: %w", i+1, err)
		}
		p, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d probability: %w", i+1, err)
		}
		rows = append(rows, Row{FileName: rec[0], Prediction: pred, Probability: p})
	}
	return rows, nil
}
