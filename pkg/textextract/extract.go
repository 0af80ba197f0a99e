package textextract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrUnsupportedType = errors.New("unsupported file type")

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatPPTX Format = "pptx"
	FormatTXT  Format = "txt"
)

type ExtractedText struct {
	Content string
	Pages   int
	Format  Format
}

// DetectFormat accepts an extension, a bare format name, a file name or a MIME type.
func DetectFormat(fileType string) (Format, error) {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	if i := strings.Index(ft, ";"); i >= 0 {
		ft = strings.TrimSpace(ft[:i])
	}
	switch ft {
	case "application/pdf":
		return FormatPDF, nil
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return FormatDOCX, nil
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return FormatPPTX, nil
	case "text/plain":
		return FormatTXT, nil
	}
	if ext := filepath.Ext(ft); ext != "" {
		ft = ext
	}
	switch strings.TrimPrefix(ft, ".") {
	case "pdf":
		return FormatPDF, nil
	case "docx":
		return FormatDOCX, nil
	case "pptx":
		return FormatPPTX, nil
	case "txt", "text":
		return FormatTXT, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
}

func Extract(data []byte, fileType string) (*ExtractedText, error) {
	format, err := DetectFormat(fileType)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatPDF:
		return PDF(data)
	case FormatDOCX:
		return DOCX(data)
	case FormatPPTX:
		return PPTX(data)
	default:
		return TXT(data), nil
	}
}

// SupportedTypes lists the accepted file extensions.
func SupportedTypes() []string {
	return []string{".pdf", ".docx", ".pptx", ".txt"}
}
