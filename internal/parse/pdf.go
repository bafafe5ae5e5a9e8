package parse

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/ocr"
)

// PDFParser handles statements exported as PDF. It is a constrained table
// extractor, not a document-understanding system: a page is used only when
// it carries a whitespace-aligned table whose header row holds exactly the
// expected column set.
type PDFParser struct {
	Extractor ocr.Extractor
}

// columnSplit splits a -layout line on runs of two or more spaces, which is
// how pdftotext renders table column gaps.
var columnSplit = regexp.MustCompile(`\s{2,}`)

func splitColumns(line string) []string {
	parts := columnSplit.Split(strings.TrimSpace(line), -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Parse extracts layout text, locates the transaction table on each page,
// and normalizes its rows.
func (p *PDFParser) Parse(ctx context.Context, fileBytes []byte, documentID, dealID, dealCurrency string) (*Result, error) {
	if p.Extractor == nil {
		return nil, schemaErr("pdf parser has no text extractor configured")
	}
	text, err := p.Extractor.ExtractText(ctx, fileBytes)
	if err != nil {
		return nil, schemaErr("cannot extract PDF text: %v", err)
	}

	var (
		txns      []model.Transaction
		detection = DetectionUnknown
	)

	for _, page := range strings.Split(text, "\f") {
		lines := strings.Split(page, "\n")

		headerAt := -1
		var idx map[string]int
		for i, line := range lines {
			cells := splitColumns(line)
			if len(cells) < len(requiredColumns) {
				continue
			}
			m, err := headerIndex(cells)
			if err != nil {
				continue // not the table header
			}
			headerAt = i
			idx = m
			break
		}
		if headerAt < 0 {
			continue
		}

		started := false
		for _, line := range lines[headerAt+1:] {
			cells := splitColumns(line)
			if len(cells) == 0 {
				if started {
					break // blank line ends the table
				}
				continue
			}
			if len(cells) < len(requiredColumns) {
				if started {
					break // footer text after the table
				}
				continue
			}
			if looksLikeHeader(cells) {
				continue // repeated header on page break
			}
			started = true
			row := rawRow{
				date:      fieldAt(cells, idx, colDate),
				amount:    fieldAt(cells, idx, colAmount),
				desc:      fieldAt(cells, idx, colDescription),
				direction: fieldAt(cells, idx, colDirection),
				account:   accountField(cells, idx),
			}
			txn, rowDetection, err := buildTransaction(row, documentID, dealID, dealCurrency)
			if err != nil {
				return nil, err
			}
			detection = mergeDetection(detection, rowDetection)
			txns = append(txns, txn)
		}
	}

	if len(txns) == 0 {
		return nil, schemaErr("no table with required headers found in PDF")
	}
	return finishParse(txns, detection)
}
