package parse

import (
	"context"
	"strings"

	"github.com/sells-group/parity/internal/canon"
	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/ocr"
)

// Result is the outcome of one deterministic parse: canonical records sorted
// by (date, account, amount, normalized descriptor, txn_id), the content
// hash over that ordering, and the currency detection flag.
type Result struct {
	Transactions      []model.Transaction
	RawHash           string
	CurrencyDetection string
}

// Parser parses one file format into canonical transaction records.
type Parser interface {
	Parse(ctx context.Context, fileBytes []byte, documentID, dealID, dealCurrency string) (*Result, error)
}

// ForType returns the parser for a file type tag. The PDF parser needs a
// text extractor; CSV and XLSX do not.
func ForType(ft model.FileType, extractor ocr.Extractor) (Parser, error) {
	switch ft {
	case model.FileTypeCSV:
		return &CSVParser{}, nil
	case model.FileTypeXLSX:
		return &XLSXParser{}, nil
	case model.FileTypePDF:
		return &PDFParser{Extractor: extractor}, nil
	default:
		return nil, schemaErr("unsupported file type: %s", ft)
	}
}

// rawRow is the format-independent view of one data row. The three parsers
// reduce their inputs to this and hand it to buildTransaction.
type rawRow struct {
	date      string // already ISO if dateResolved
	amount    string
	desc      string
	direction string
	account   string
}

// buildTransaction normalizes one raw row into a canonical record.
func buildTransaction(row rawRow, documentID, dealID, dealCurrency string) (model.Transaction, string, error) {
	if strings.TrimSpace(row.desc) == "" {
		return model.Transaction{}, "", dataErr("description is required per row")
	}

	cents, detection, err := parseAmountCents(row.amount, dealCurrency)
	if err != nil {
		return model.Transaction{}, "", err
	}

	cents, err = applyDirection(cents, row.direction)
	if err != nil {
		return model.Transaction{}, "", err
	}

	date, err := parseDate(row.date)
	if err != nil {
		return model.Transaction{}, "", err
	}

	account := strings.TrimSpace(row.account)
	if account == "" {
		account = defaultAccountID
	}

	txn := model.Transaction{
		DealID:               dealID,
		DocumentID:           documentID,
		Date:                 date,
		AmountCents:          cents,
		RawDescriptor:        row.desc,
		ParsedDescriptor:     strings.TrimSpace(row.desc),
		NormalizedDescriptor: NormalizeDescriptor(row.desc),
		AccountID:            account,
	}
	txn.TxnID = ComputeTxnID(documentID, txn.AccountID, txn.Date, txn.AmountCents, txn.NormalizedDescriptor)
	return txn, detection, nil
}

// finishParse sorts the records and computes the raw-transaction-set hash,
// making the result invariant to input row order.
func finishParse(txns []model.Transaction, detection string) (*Result, error) {
	if len(txns) == 0 {
		return nil, dataErr("file contains no data rows")
	}
	model.SortTransactions(txns)
	hash, err := canon.Hash(txns)
	if err != nil {
		return nil, err
	}
	return &Result{
		Transactions:      txns,
		RawHash:           hash,
		CurrencyDetection: detection,
	}, nil
}

// mergeDetection keeps "ambiguous" sticky across rows.
func mergeDetection(current, rowDetection string) string {
	if rowDetection == DetectionAmbiguous {
		return DetectionAmbiguous
	}
	return current
}

// cellsEmpty reports whether every cell in a row is blank.
func cellsEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// fieldAt returns the cell at a mapped column, or "" when the row is short.
func fieldAt(cells []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// accountField resolves the optional account column under either accepted
// header name.
func accountField(cells []string, idx map[string]int) string {
	if v := fieldAt(cells, idx, colAccountID); v != "" {
		return v
	}
	return fieldAt(cells, idx, colAccount)
}
