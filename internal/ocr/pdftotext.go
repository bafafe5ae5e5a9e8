// Package ocr extracts layout-preserved text from PDF statements. The PDF
// parser consumes the extracted text; it never interprets the PDF itself.
package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Extractor extracts text content from PDF bytes.
type Extractor interface {
	ExtractText(ctx context.Context, pdfBytes []byte) (string, error)
}

// PdfToText extracts text using the pdftotext CLI tool in -layout mode,
// which preserves the column alignment of statement tables.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText writes the PDF to a temp file, runs pdftotext -layout on it,
// and returns stdout. Pages are separated by form feeds in the output.
func (p *PdfToText) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	dir, err := os.MkdirTemp("", "parity-pdf-*")
	if err != nil {
		return "", eris.Wrap(err, "ocr: create temp dir")
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(path, pdfBytes, 0o600); err != nil {
		return "", eris.Wrap(err, "ocr: write temp PDF")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed: %s", stderr.String())
	}

	return stdout.String(), nil
}
