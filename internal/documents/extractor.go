package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"

	"github.com/docsift/docsift/internal/logger"
)

// ErrExtraction marks unreadable PDFs and OCR engine failures
var ErrExtraction = errors.New("extraction failed")

const (
	DefaultOCRDPI       = 300
	DefaultMinTextChars = 20
)

// PDFDocument is the subset of *fitz.Document the extractor needs
type PDFDocument interface {
	NumPage() int
	Text(pageNumber int) (string, error)
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

func openFitz(path string) (PDFDocument, error) {
	return fitz.New(path)
}

// Extractor reads PDF pages, falling back to OCR for pages without a usable text layer
type Extractor struct {
	ocr          OCR
	dpi          int
	minTextChars int
	open         func(path string) (PDFDocument, error)
	log          *logger.Logger
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithOCRDPI sets the render resolution for OCR pages
func WithOCRDPI(dpi int) ExtractorOption {
	return func(e *Extractor) {
		if dpi > 0 {
			e.dpi = dpi
		}
	}
}

// WithMinTextChars sets the stripped text length below which a page is OCRed
func WithMinTextChars(n int) ExtractorOption {
	return func(e *Extractor) {
		if n >= 0 {
			e.minTextChars = n
		}
	}
}

// WithOpener replaces the go-fitz document opener
func WithOpener(open func(path string) (PDFDocument, error)) ExtractorOption {
	return func(e *Extractor) {
		if open != nil {
			e.open = open
		}
	}
}

// NewExtractor creates an extractor that uses ocr for scanned pages
func NewExtractor(ocr OCR, log *logger.Logger, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		ocr:          ocr,
		dpi:          DefaultOCRDPI,
		minTextChars: DefaultMinTextChars,
		open:         openFitz,
		log:          log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns one Page per physical page, 1-indexed, in order. docID is
// stamped on every page. Any page failure fails the whole document.
func (e *Extractor) Extract(ctx context.Context, docID, path string) ([]Page, error) {
	doc, err := e.open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open PDF: %v", ErrExtraction, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]Page, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read page %d: %v", ErrExtraction, i+1, err)
		}

		if chars := utf8.RuneCountInString(strings.TrimSpace(text)); chars < e.minTextChars {
			e.log.Debug("page has no usable text layer, running OCR", "page", i+1, "chars", chars)
			text, err = e.ocrPage(ctx, doc, i)
			if err != nil {
				return nil, fmt.Errorf("%w: OCR of page %d: %v", ErrExtraction, i+1, err)
			}
		}

		pages = append(pages, Page{DocID: docID, Number: i + 1, Text: text})
	}

	return pages, nil
}

func (e *Extractor) ocrPage(ctx context.Context, doc PDFDocument, index int) (string, error) {
	if e.ocr == nil {
		return "", errors.New("no OCR engine configured")
	}

	img, err := doc.ImageDPI(index, float64(e.dpi))
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, PrepareForOCR(img)); err != nil {
		return "", fmt.Errorf("failed to encode page image: %w", err)
	}

	return e.ocr.Recognize(ctx, buf.Bytes())
}
