package extract

import (
	"bytes"
	"mime"
	"net/url"
	"path"
	"strings"
)

// Kind is a detected document type.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindDOC     Kind = "doc"
	KindText    Kind = "text"
	KindHTML    Kind = "html"
	KindUnknown Kind = "unknown"
)

var (
	magicPDF = []byte("%PDF")
	magicZIP = []byte("PK\x03\x04")
	magicOLE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Detect classifies a document by content signature, then content type,
// then the file extension of name (a path or URL).
func Detect(data []byte, contentType, name string) Kind {
	switch {
	case bytes.HasPrefix(data, magicPDF):
		return KindPDF
	case bytes.HasPrefix(data, magicZIP):
		return KindDOCX
	case bytes.HasPrefix(data, magicOLE):
		return KindDOC
	}

	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "application/pdf":
			return KindPDF
		case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
			return KindDOCX
		case "application/msword":
			return KindDOC
		case "text/plain", "text/markdown":
			return KindText
		case "text/html", "application/xhtml+xml":
			return KindHTML
		}
	}

	switch strings.ToLower(path.Ext(pathOf(name))) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".doc":
		return KindDOC
	case ".txt", ".md":
		return KindText
	case ".html", ".htm":
		return KindHTML
	}
	return KindUnknown
}

// pathOf strips the query and fragment from a URL; plain paths pass through.
func pathOf(name string) string {
	if u, err := url.Parse(name); err == nil && u.Path != "" {
		return u.Path
	}
	return name
}
