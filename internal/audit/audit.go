// Package audit records per-segment predictions as CSV, one document per
// request, with the columns file_name,prediction,probability.
package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
)

// ErrAudit indicates the audit trail could not be written.
var ErrAudit = errors.New("audit write failed")

// ErrExists indicates an audit document for the request already exists and
// the sink cannot append to it.
var ErrExists = errors.New("audit record already exists")

// Header is the CSV header row.
var Header = []string{"file_name", "prediction", "probability"}

// Row is one scored segment.
type Row struct {
	FileName    string
	Prediction  int
	Probability float64
}

// Sink persists the rows of one request and returns where they went.
type Sink interface {
	Write(ctx context.Context, requestID string, rows []Row) (location string, err error)
}

// Encode writes rows as CSV, preceded by Header when header is true.
func Encode(w io.Writer, rows []Row, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(Header); err != nil {
			return err
		}
	}
	for _, r := range rows {
		rec := []string{
			r.FileName,
			strconv.Itoa(r.Prediction),
			strconv.FormatFloat(r.Probability, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func objectName(requestID string) string {
	return "predictions-" + requestID + ".csv"
}
