package textextract

import (
	"bytes"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TXT decodes data as UTF-8, dropping any byte sequences that are not valid.
func TXT(data []byte) *ExtractedText {
	data = bytes.TrimPrefix(data, utf8BOM)
	return &ExtractedText{
		Content: strings.ToValidUTF8(string(data), ""),
		Pages:   1,
		Format:  FormatTXT,
	}
}
