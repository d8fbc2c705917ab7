package subtitles

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"mediaprep/internal/faults"
)

const byteOrderMark = "\ufeff"

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// Decode returns subtitle bytes as UTF-8 text. UTF-8 input passes through with
// any BOM removed; anything else is converted using the detected charset.
func Decode(data []byte) (string, error) {
	if !bytes.HasPrefix(data, utf16LEBOM) && !bytes.HasPrefix(data, utf16BEBOM) {
		trimmed := bytes.TrimPrefix(data, utf8BOM)
		if utf8.Valid(trimmed) {
			return string(trimmed), nil
		}
	}
	enc, name, _ := charset.DetermineEncoding(data, "")
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", faults.Wrap(faults.ErrParse, "subtitles", "decode",
			fmt.Sprintf("convert from %s", name), err)
	}
	return strings.TrimPrefix(string(decoded), byteOrderMark), nil
}

// ParseFile reads, decodes and parses a subtitle file by its extension.
func ParseFile(path string) ([]Subtitle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	text, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Parse(text, filepath.Ext(path))
}
