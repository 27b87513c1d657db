// Package extract downloads vacancy attachments and turns them into plain text.
package extract

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/config"
)

// Extractor fetches documents and extracts their text. Failures never
// propagate: Text returns "" and logs the cause.
type Extractor struct {
	http     *http.Client
	pdf      PDFReader
	token    string
	maxBytes int64
}

// New creates an Extractor from config. token authenticates downloads
// from Typeform's file storage.
func New(cfg config.ExtractConfig, token string) (*Extractor, error) {
	reader, err := NewPDFReader(cfg.PDFProvider, cfg.PdfToTextPath)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Extractor{
		http:     &http.Client{Timeout: timeout},
		pdf:      reader,
		token:    token,
		maxBytes: maxBytes,
	}, nil
}

// Text downloads rawURL and returns its text, or "" on any failure.
func (e *Extractor) Text(ctx context.Context, rawURL string) string {
	log := zap.L().With(zap.String("url", rawURL))

	data, contentType, err := e.download(ctx, rawURL)
	if err != nil {
		log.Warn("extract: download failed", zap.Error(err))
		return ""
	}

	text, err := e.FromBytes(ctx, data, contentType, rawURL)
	if err != nil {
		log.Warn("extract: text extraction failed", zap.Error(err))
		return ""
	}
	log.Info("extract: text extracted", zap.Int("chars", utf8.RuneCountInString(text)))
	return text
}

// FromBytes extracts text from an in-memory document. name is a file
// path or URL used for extension-based detection.
func (e *Extractor) FromBytes(ctx context.Context, data []byte, contentType, name string) (string, error) {
	kind := Detect(data, contentType, name)

	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		var pages []string
		pages, err = e.pdf.Pages(ctx, data)
		text = joinPages(pages)
	case KindDOCX:
		text, err = docxText(data)
	case KindHTML:
		text, err = htmlText(data)
	case KindText:
		if !utf8.Valid(data) {
			return "", eris.New("extract: text document is not valid UTF-8")
		}
		text = string(data)
	case KindDOC:
		return "", eris.New("extract: legacy .doc is not supported")
	default:
		return "", eris.Errorf("extract: unsupported document (content-type %q)", contentType)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *Extractor) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", eris.Errorf("extract: invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "extract: create request")
	}
	if e.token != "" && isTypeformHost(u.Hostname()) {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, "", eris.Wrap(err, "extract: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Errorf("extract: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, "", eris.Wrap(err, "extract: read body")
	}
	if int64(len(data)) > e.maxBytes {
		return nil, "", eris.Errorf("extract: document exceeds %d bytes", e.maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func isTypeformHost(host string) bool {
	host = strings.ToLower(host)
	return host == "typeform.com" || strings.HasSuffix(host, ".typeform.com")
}
