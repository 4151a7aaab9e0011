package documents

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// OCR recognizes text in an encoded image
type OCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// TesseractOCR runs Tesseract through gosseract
type TesseractOCR struct {
	language string
}

// NewTesseractOCR creates an OCR engine for the given language ("eng" when empty)
func NewTesseractOCR(language string) *TesseractOCR {
	if language == "" {
		language = "eng"
	}
	return &TesseractOCR{language: language}
}

// Recognize returns the text Tesseract finds in image. A gosseract client is
// not safe for concurrent use, so each call gets its own.
func (t *TesseractOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return "", fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to load OCR image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return text, nil
}
