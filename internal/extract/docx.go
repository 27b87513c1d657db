package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

const docxBody = "word/document.xml"

// docxText returns the non-blank body paragraphs of a DOCX document
// followed by the non-blank table cells, one per line.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", eris.Wrap(err, "extract: open docx")
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", eris.New("extract: docx has no " + docxBody)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", eris.Wrap(err, "extract: open docx body")
	}
	defer rc.Close() //nolint:errcheck

	paragraphs, cells, err := walkDocument(rc)
	if err != nil {
		return "", err
	}
	return strings.Join(append(paragraphs, cells...), "\n"), nil
}

// walkDocument streams WordprocessingML and splits paragraphs that sit
// outside tables from the text of each table cell.
func walkDocument(r io.Reader) (paragraphs, cells []string, err error) {
	dec := xml.NewDecoder(r)

	var (
		tableDepth int
		para       strings.Builder
		cell       []string
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "extract: parse docx xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tc":
				cell = cell[:0]
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth--
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if text == "" {
					continue
				}
				if tableDepth > 0 {
					cell = append(cell, text)
				} else {
					paragraphs = append(paragraphs, text)
				}
			case "tc":
				if text := strings.TrimSpace(strings.Join(cell, " ")); text != "" {
					cells = append(cells, text)
				}
				cell = cell[:0]
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return paragraphs, cells, nil
}
