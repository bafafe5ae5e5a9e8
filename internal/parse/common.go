// Package parse turns CSV/XLSX/PDF bytes into ordered canonical transaction
// records with integer cent amounts and deterministic per-row identifiers.
// All three parsers share one row normalizer, so downstream stages never
// know which format produced a record.
package parse

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/sells-group/parity/internal/fault"
)

// Logical column names. Required columns must all be present; anything in
// the optional set is used when present and everything else is ignored.
const (
	colDate        = "date"
	colAmount      = "amount"
	colDescription = "description"
	colDirection   = "direction"
	colAccountID   = "account_id"
	colAccount     = "account"
)

// defaultAccountID is assigned when the file carries no account column.
const defaultAccountID = "default"

var requiredColumns = []string{colDate, colAmount, colDescription}

// Parse stages attached to structured faults.
const (
	stageSchema        = "SCHEMA_VALIDATED"
	stageNormalization = "NORMALIZATION_DONE"
)

func schemaErr(format string, args ...any) *fault.Fault {
	return fault.New(fault.KindSchemaValidation, stageSchema, fault.ActionFixCSVHeader, fmt.Sprintf(format, args...))
}

func dataErr(format string, args ...any) *fault.Fault {
	return fault.New(fault.KindSchemaValidation, stageNormalization, fault.ActionFixData, fmt.Sprintf(format, args...))
}

func currencyErr(found, expected string) *fault.Fault {
	return fault.New(fault.KindCurrencyMismatch, stageNormalization, fault.ActionFixCurrency,
		fmt.Sprintf("currency mismatch: found %s, expected %s", found, expected))
}

// normalizeHeader lowercases and trims a header cell.
func normalizeHeader(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// NormalizeDescriptor collapses whitespace and lowercases a descriptor. This
// is the equality under which entities are deduplicated.
func NormalizeDescriptor(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}

// headerIndex validates a header row and maps logical column names to their
// positions. Duplicate headers (after normalization) are rejected outright.
func headerIndex(cells []string) (map[string]int, error) {
	idx := make(map[string]int, len(cells))
	for i, c := range cells {
		name := normalizeHeader(c)
		if name == "" {
			continue
		}
		if _, dup := idx[name]; dup {
			return nil, schemaErr("duplicate header %q", name)
		}
		idx[name] = i
	}
	var missing []string
	for _, req := range requiredColumns {
		if _, ok := idx[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, schemaErr("missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// looksLikeHeader reports whether a data row still contains required header
// tokens, which indicates a second header row.
func looksLikeHeader(cells []string) bool {
	seen := make(map[string]bool, len(cells))
	for _, c := range cells {
		seen[normalizeHeader(c)] = true
	}
	for _, req := range requiredColumns {
		if seen[req] {
			return true
		}
	}
	return false
}

// ambiguousShortYear matches numeric dates with a two-digit year, which are
// rejected outright: dd/mm/yy vs mm/dd/yy cannot be disambiguated and the
// parser never guesses.
var ambiguousShortYear = regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2}$`)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"01-02-2006",
	"01/02/2006",
}

// parseDate converts a date string to ISO YYYY-MM-DD, failing closed on
// anything ambiguous or unrecognized.
func parseDate(v string) (string, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return "", dataErr("missing date value")
	}
	if ambiguousShortYear.MatchString(s) {
		return "", dataErr("ambiguous date format: %s", s)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", dataErr("unparseable date: %s", s)
}

// excelEpoch is day zero of the 1900 date system (accounting for the
// historical Lotus leap-year offset already baked into serial numbers).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// excelSerialDate deterministically converts a spreadsheet date serial to an
// ISO calendar date.
func excelSerialDate(serial float64) (string, error) {
	if serial <= 0 {
		return "", dataErr("invalid spreadsheet date serial: %v", serial)
	}
	days := int(serial)
	return excelEpoch.AddDate(0, 0, days).Format("2006-01-02"), nil
}

// isoCurrencyToken matches candidate ISO currency codes inside amount text.
var isoCurrencyToken = regexp.MustCompile(`\b[A-Z]{3}\b`)

// ambiguous glyphs that identify a currency family but not a code.
var currencyGlyphs = []string{"$", "€", "£"}

// detectCurrency inspects the raw amount text. An explicit ISO code that
// conflicts with the deal currency is a hard failure; a bare glyph yields
// the "ambiguous" detection flag without failing.
func detectCurrency(raw, dealCurrency string) (string, error) {
	for _, tok := range isoCurrencyToken.FindAllString(raw, -1) {
		if _, err := currency.ParseISO(tok); err != nil {
			continue // three capital letters, but not a currency code
		}
		if dealCurrency != "" && !strings.EqualFold(tok, dealCurrency) {
			return "", currencyErr(tok, dealCurrency)
		}
	}
	for _, glyph := range currencyGlyphs {
		if strings.Contains(raw, glyph) {
			return DetectionAmbiguous, nil
		}
	}
	return DetectionUnknown, nil
}

// Currency detection flags reported alongside a parse.
const (
	DetectionUnknown   = "unknown"
	DetectionAmbiguous = "ambiguous"
)

// parseAmountCents converts an amount string to signed integer cents using
// round-half-to-even at the cent boundary. Thousands separators and currency
// glyphs are stripped first; zero amounts are rejected.
func parseAmountCents(raw, dealCurrency string) (int64, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, "", dataErr("amount is empty")
	}

	detection, err := detectCurrency(s, dealCurrency)
	if err != nil {
		return 0, "", err
	}

	cleaned := s
	for _, r := range append([]string{",", " "}, currencyGlyphs...) {
		cleaned = strings.ReplaceAll(cleaned, r, "")
	}
	cleaned = isoCurrencyToken.ReplaceAllString(cleaned, "")
	if cleaned == "" {
		return 0, "", dataErr("amount missing after cleaning: %q", raw)
	}

	cents, err := decimalToCents(cleaned)
	if err != nil {
		return 0, "", dataErr("non-numeric amount: %q", raw)
	}
	if cents == 0 {
		return 0, "", dataErr("zero-value transactions are not allowed")
	}
	return cents, detection, nil
}

// decimalToCents parses a plain decimal literal into cents with half-to-even
// rounding, using only integer arithmetic.
func decimalToCents(s string) (int64, error) {
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("empty number")
	}
	for _, part := range []string{intPart, fracPart} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("invalid digit %q", r)
			}
		}
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, err
	}

	frac := fracPart + "00"
	centDigits := frac[:2]
	rest := frac[2:]

	cents := whole*100 + mustDigits(centDigits)

	if rest != "" {
		roundUp := false
		switch {
		case rest[0] > '5':
			roundUp = true
		case rest[0] == '5':
			if strings.Trim(rest[1:], "0") != "" {
				roundUp = true
			} else {
				roundUp = cents%2 == 1 // exact half: round to even
			}
		}
		if roundUp {
			cents++
		}
	}

	if neg {
		cents = -cents
	}
	return cents, nil
}

func mustDigits(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// direction vocabulary: anything outside these sets fails the row.
var (
	debitDirections  = map[string]bool{"out": true, "debit": true, "withdrawal": true, "outflow": true}
	creditDirections = map[string]bool{"in": true, "credit": true, "inflow": true, "deposit": true}
)

// applyDirection flips the amount sign according to an explicit direction
// column value.
func applyDirection(cents int64, direction string) (int64, error) {
	d := strings.ToLower(strings.TrimSpace(direction))
	if d == "" {
		return cents, nil
	}
	switch {
	case debitDirections[d]:
		if cents > 0 {
			cents = -cents
		}
	case creditDirections[d]:
		if cents < 0 {
			cents = -cents
		}
	default:
		return 0, dataErr("invalid direction value: %q", direction)
	}
	return cents, nil
}

// ComputeTxnID derives the deterministic per-row identifier from the fields
// that make a row unique within a document.
func ComputeTxnID(documentID, accountID, date string, amountCents int64, normalizedDescriptor string) string {
	basis := strings.Join([]string{
		documentID,
		accountID,
		date,
		strconv.FormatInt(amountCents, 10),
		normalizedDescriptor,
	}, "|")
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}
