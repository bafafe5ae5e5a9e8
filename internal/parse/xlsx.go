package parse

import (
	"context"
	"strings"

	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/parity/internal/model"
)

// XLSXParser parses single-sheet spreadsheet statements.
type XLSXParser struct{}

// Parse opens the workbook, validates the single-sheet and header contract,
// and normalizes every data row. Hidden sheets are ignored; exactly one
// visible sheet must remain. Date cells carrying spreadsheet serials are
// converted deterministically.
func (p *XLSXParser) Parse(ctx context.Context, fileBytes []byte, documentID, dealID, dealCurrency string) (*Result, error) {
	f, err := xlsx.OpenBinary(fileBytes)
	if err != nil {
		return nil, schemaErr("cannot open workbook: %v", err)
	}
	var visible []*xlsx.Sheet
	for _, sh := range f.Sheets {
		if sh.Hidden {
			continue
		}
		visible = append(visible, sh)
	}
	if len(visible) == 0 {
		return nil, schemaErr("workbook has no visible sheets")
	}
	if len(visible) > 1 {
		return nil, schemaErr("multiple data sheets are not allowed")
	}
	sheet := visible[0]
	if len(sheet.Rows) == 0 {
		return nil, schemaErr("sheet is empty")
	}

	headerRow := sheet.Rows[0]
	for _, cell := range headerRow.Cells {
		if cell.HMerge > 0 || cell.VMerge > 0 {
			return nil, schemaErr("merged cells in header row are not allowed")
		}
	}
	idx, err := headerIndex(rowStrings(headerRow))
	if err != nil {
		return nil, err
	}

	var (
		txns      []model.Transaction
		detection = DetectionUnknown
		first     = true
	)

	for _, row := range sheet.Rows[1:] {
		cells := rowStrings(row)
		if cellsEmpty(cells) {
			continue
		}
		if first {
			first = false
			if looksLikeHeader(cells) {
				return nil, schemaErr("multiple header rows detected")
			}
		}

		dateVal, err := dateCellValue(row, idx)
		if err != nil {
			return nil, err
		}

		r := rawRow{
			date:      dateVal,
			amount:    fieldAt(cells, idx, colAmount),
			desc:      fieldAt(cells, idx, colDescription),
			direction: fieldAt(cells, idx, colDirection),
			account:   accountField(cells, idx),
		}
		txn, rowDetection, err := buildTransaction(r, documentID, dealID, dealCurrency)
		if err != nil {
			return nil, err
		}
		detection = mergeDetection(detection, rowDetection)
		txns = append(txns, txn)
	}

	return finishParse(txns, detection)
}

// dateCellValue resolves the date column for one row. Date-formatted and
// bare-serial numeric cells are converted to ISO; string cells pass through
// for parseDate to validate.
func dateCellValue(row *xlsx.Row, idx map[string]int) (string, error) {
	i := idx[colDate]
	if i >= len(row.Cells) {
		return "", nil
	}
	cell := row.Cells[i]

	if cell.IsTime() {
		serial, err := cell.Float()
		if err != nil {
			return "", dataErr("invalid spreadsheet date cell: %v", err)
		}
		return excelSerialDate(serial)
	}

	s := cell.String()
	// A purely numeric date cell that lost its format is still a serial.
	if serial, err := cell.Float(); err == nil && !strings.ContainsAny(s, "-/") {
		return excelSerialDate(serial)
	}
	return s, nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
