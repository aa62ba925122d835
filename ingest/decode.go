package ingest

import (
	"bytes"
	"errors"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	ExtCSV  = ".csv"
	ExtXLSX = ".xlsx"
)

// ErrUnreadableXLSX is returned when a spreadsheet upload cannot be parsed.
var ErrUnreadableXLSX = errors.New("unreadable xlsx file")

// Decode turns a raw upload into comma-delimited UTF-8 text whose first
// non-blank line is the header row. CSV bytes pass through untouched; XLSX is
// flattened from its first worksheet. Pure transformation, no I/O.
func Decode(data []byte, ext string) (string, error) {
	if strings.EqualFold(ext, ExtXLSX) {
		return decodeXLSX(data)
	}
	return string(data), nil
}

func decodeXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", ErrUnreadableXLSX
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", ErrUnreadableXLSX
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", ErrUnreadableXLSX
	}

	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(row, ","))
	}
	return sb.String(), nil
}

// SplitLines tolerates both \n and \r\n endings.
func SplitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// NormalizeHeaderToken trims, strips a leading UTF-8 BOM artifact and lowercases.
func NormalizeHeaderToken(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "\ufeff"))
}

// headerLineIndex locates the first non-blank line, or -1 for an empty file.
func headerLineIndex(lines []string) int {
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			return i
		}
	}
	return -1
}

// HeaderTokens returns the normalized tokens of the first non-blank line.
func HeaderTokens(text string) []string {
	lines := SplitLines(text)
	idx := headerLineIndex(lines)
	if idx == -1 {
		return []string{}
	}
	raw := strings.Split(lines[idx], ",")
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		tokens = append(tokens, NormalizeHeaderToken(t))
	}
	return tokens
}
