package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
	"github.com/nikhilbhutani/studywise/pkg/textextract"
)

// PDFOCR reads text from scanned PDFs.
type PDFOCR interface {
	IsAvailable() bool
	ExtractPDF(ctx context.Context, data []byte) (string, error)
}

// TextExtractor turns uploaded file bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileType string) (string, error)
}

type extractor struct {
	log *logger.Logger
	ocr PDFOCR
}

// NewTextExtractor returns an extractor that falls back to ocr for PDFs
// without a text layer. ocr may be nil.
func NewTextExtractor(ocr PDFOCR, log *logger.Logger) TextExtractor {
	return &extractor{log: log.With("component", "extractor"), ocr: ocr}
}

// Extract never surfaces per-strategy failures. It returns
// ErrNoTextExtracted when all strategies come back blank, and
// textextract.ErrUnsupportedType for types it cannot read at all.
func (e *extractor) Extract(ctx context.Context, data []byte, fileType string) (string, error) {
	format, err := textextract.DetectFormat(fileType)
	if err != nil {
		return "", err
	}

	var text string
	result, err := textextract.Extract(data, string(format))
	if err != nil {
		e.log.Warn("direct extraction failed", "format", format, "error", err)
	} else {
		text = result.Content
	}

	if format == textextract.FormatPDF && isBlank(text) && e.ocr != nil && e.ocr.IsAvailable() {
		e.log.Info("pdf has no text layer, running ocr", "bytes", len(data))
		ocrText, err := e.ocr.ExtractPDF(ctx, data)
		switch {
		case err != nil:
			metrics.OCRFallbackTotal.WithLabelValues("error").Inc()
			e.log.Warn("ocr failed", "error", err)
		case isBlank(ocrText):
			metrics.OCRFallbackTotal.WithLabelValues("empty").Inc()
		default:
			metrics.OCRFallbackTotal.WithLabelValues("text").Inc()
			text = ocrText
		}
	}

	if isBlank(text) {
		return "", fmt.Errorf("%s file: %w", format, ErrNoTextExtracted)
	}
	return text, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
