package pdfrender

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrPageOutOfRange is returned for page numbers outside 1..PageCount.
var ErrPageOutOfRange = errors.New("page out of range")

// Document is an open PDF handle exposing page count and text extraction.
type Document interface {
	PageCount() int
	// PageText returns the plain text of one page (1-based). Pages the
	// extractor cannot handle yield an empty string, not an error.
	PageText(page int) (string, error)
	// Text returns the plain text of the whole document.
	Text() (string, error)
}

// Opener parses raw PDF bytes into a Document.
type Opener interface {
	Open(data []byte) (Document, error)
}

// GoPDFOpener opens PDFs with the pure-Go pdf library.
type GoPDFOpener struct{}

// NewOpener builds the default PDF opener.
func NewOpener() *GoPDFOpener {
	return &GoPDFOpener{}
}

// Open parses the PDF and returns a handle over it.
func (o *GoPDFOpener) Open(data []byte) (Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &goPDFDocument{reader: reader}, nil
}

type goPDFDocument struct {
	reader *pdf.Reader
}

func (d *goPDFDocument) PageCount() int {
	return d.reader.NumPage()
}

func (d *goPDFDocument) PageText(page int) (string, error) {
	if page < 1 || page > d.reader.NumPage() {
		return "", ErrPageOutOfRange
	}
	p := d.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		// Problematic pages read as empty rather than failing the document.
		return "", nil
	}
	return NormalizeText(text), nil
}

func (d *goPDFDocument) Text() (string, error) {
	var parts []string
	for i := 1; i <= d.reader.NumPage(); i++ {
		text, err := d.PageText(i)
		if err != nil {
			return "", err
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// NormalizeText collapses whitespace and strips bytes speech engines and
// JSON encoders choke on.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
