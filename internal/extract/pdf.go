package extract

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// PDFReader returns the text of each page of a PDF document.
type PDFReader interface {
	Pages(ctx context.Context, data []byte) ([]string, error)
}

// NewPDFReader creates a PDFReader for the configured provider.
func NewPDFReader(provider, pdftotextPath string) (PDFReader, error) {
	switch provider {
	case "native", "":
		return NativePDF{}, nil
	case "pdftotext":
		return NewPdfToText(pdftotextPath), nil
	default:
		return nil, eris.Errorf("extract: unknown pdf provider %q", provider)
	}
}

// NativePDF reads PDFs in-process.
type NativePDF struct{}

// Pages extracts plain text per page. The parser panics on some malformed
// inputs; that is reported as an error.
func (NativePDF) Pages(_ context.Context, data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("extract: pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "extract: open pdf")
	}

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: pdf page %d", i)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// PdfToText extracts text from PDFs using the poppler pdftotext CLI.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText reader. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// Pages writes data to a temp file, runs pdftotext -layout on it and
// splits stdout on form feeds.
func (p *PdfToText) Pages(ctx context.Context, data []byte) ([]string, error) {
	f, err := os.CreateTemp("", "vacature-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "extract: create temp file")
	}
	defer os.Remove(f.Name()) //nolint:errcheck
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "extract: write temp file")
	}
	if err := f.Close(); err != nil {
		return nil, eris.Wrap(err, "extract: close temp file")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", f.Name(), "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "extract: pdftotext: %s", stderr.String())
	}

	pages := strings.Split(stdout.String(), "\f")
	if n := len(pages); n > 0 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}

// joinPages concatenates page texts with newlines, skipping pages that
// yielded no text.
func joinPages(pages []string) string {
	kept := make([]string, 0, len(pages))
	for _, p := range pages {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
