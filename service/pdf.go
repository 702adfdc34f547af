package service

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// PDFExtractor extracts plain text from PDF bytes
type PDFExtractor interface {
	ExtractText(data []byte) (string, error)
}

// FitzExtractor extracts text page by page with MuPDF
type FitzExtractor struct{}

// ExtractText implements PDFExtractor
func (FitzExtractor) ExtractText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	var builder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}

	return builder.String(), nil
}
