package parse

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parity/internal/model"
)

// CSVParser parses comma-separated bank statements.
type CSVParser struct{}

// Parse reads the CSV, validates the header, and normalizes every data row.
func (p *CSVParser) Parse(ctx context.Context, fileBytes []byte, documentID, dealID, dealCurrency string) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(fileBytes))
	reader.FieldsPerRecord = -1 // allow short rows; missing cells read as empty

	header, err := reader.Read()
	if err != nil {
		return nil, schemaErr("cannot read CSV header: %v", err)
	}
	idx, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		txns      []model.Transaction
		detection = DetectionUnknown
		first     = true
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "parse: read csv row")
		}
		if cellsEmpty(record) {
			continue
		}
		if first {
			first = false
			if looksLikeHeader(record) {
				return nil, schemaErr("multiple header rows detected")
			}
		}

		row := rawRow{
			date:      fieldAt(record, idx, colDate),
			amount:    fieldAt(record, idx, colAmount),
			desc:      fieldAt(record, idx, colDescription),
			direction: fieldAt(record, idx, colDirection),
			account:   accountField(record, idx),
		}
		txn, rowDetection, err := buildTransaction(row, documentID, dealID, dealCurrency)
		if err != nil {
			return nil, err
		}
		detection = mergeDetection(detection, rowDetection)
		txns = append(txns, txn)
	}

	return finishParse(txns, detection)
}
