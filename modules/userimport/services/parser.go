package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const DefaultMaxRows = 5000

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Delimiters accepted by name.
var delimiters = map[string]rune{
	"semicolon": ';',
	"comma":     ',',
	"tab":       '\t',
}

func ParseDelimiter(name string) (rune, error) {
	d, ok := delimiters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown delimiter %q (expected semicolon|comma|tab)", name)
	}
	return d, nil
}

func DelimiterName(d rune) string {
	for name, r := range delimiters {
		if r == d {
			return name
		}
	}
	return string(d)
}

const (
	EncodingAuto        = "auto"
	EncodingUTF8        = "utf-8"
	EncodingISO88591    = "iso-8859-1"
	EncodingWindows1250 = "windows-1250"
)

type ParseOptions struct {
	Delimiter string
	Encoding  string
	MaxRows   int
}

// ParsedFile is the normalized input: the header plus every non-blank data line.
type ParsedFile struct {
	Header    RawRow
	Rows      []RawRow
	Columns   ColumnMap
	Delimiter rune
	Encoding  string
}

// Parse decodes, normalizes and splits raw file bytes. Header problems and
// oversized batches are returned as *FatalError.
func Parse(data []byte, opts ParseOptions) (*ParsedFile, error) {
	delim, err := ParseDelimiter(opts.Delimiter)
	if err != nil {
		return nil, err
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	text, enc, err := decode(data, opts.Encoding)
	if err != nil {
		return nil, fatal(CodeEncoding, "cannot decode file as %s: %v", opts.Encoding, err)
	}

	var rows []RawRow
	line := 0
	for _, raw := range strings.Split(normalizeLineEndings(text), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		line++
		rows = append(rows, RawRow{Line: line, Cells: splitLine(raw, delim)})
	}

	if len(rows) == 0 {
		return nil, fatal(CodeMissingHeaders, "missing headers: %s", strings.Join(requiredColumns, ", "))
	}
	cols, err := BuildColumnMap(rows[0].Cells)
	if err != nil {
		return nil, err
	}
	if n := len(rows) - 1; n > maxRows {
		return nil, fatal(CodeTooManyRows, "file has %d data rows, the limit is %d", n, maxRows)
	}

	return &ParsedFile{
		Header:    rows[0],
		Rows:      rows[1:],
		Columns:   cols,
		Delimiter: delim,
		Encoding:  enc,
	}, nil
}

// decode returns UTF-8 text without BOM and the encoding that was applied.
func decode(data []byte, declared string) (string, string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return string(data[len(utf8BOM):]), EncodingUTF8, nil
	}

	declared = strings.ToLower(strings.TrimSpace(declared))
	var dec *encoding.Decoder
	switch declared {
	case "", EncodingAuto:
		if utf8.Valid(data) {
			return string(data), EncodingUTF8, nil
		}
		declared = detectSingleByte(data)
		dec = singleByteDecoder(declared)
	case EncodingUTF8:
		if !utf8.Valid(data) {
			return "", "", fmt.Errorf("invalid UTF-8 byte sequence")
		}
		return string(data), EncodingUTF8, nil
	case EncodingISO88591, EncodingWindows1250:
		dec = singleByteDecoder(declared)
	default:
		return "", "", fmt.Errorf("unsupported encoding %q", declared)
	}

	out, err := dec.Bytes(data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimPrefix(string(out), "\uFEFF"), declared, nil
}

// detectSingleByte picks Windows-1250 when bytes from the C1 range appear;
// ISO-8859-1 maps those to control characters, so real text never uses them.
func detectSingleByte(data []byte) string {
	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			return EncodingWindows1250
		}
	}
	return EncodingISO88591
}

func singleByteDecoder(name string) *encoding.Decoder {
	if name == EncodingWindows1250 {
		return charmap.Windows1250.NewDecoder()
	}
	return charmap.ISO8859_1.NewDecoder()
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func splitLine(line string, delim rune) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	cells, err := r.Read()
	if err != nil && err != io.EOF {
		cells = strings.Split(line, string(delim))
	}
	for i := range cells {
		cells[i] = CleanCell(cells[i])
	}
	return cells
}

// CleanCell drops control and format characters, folds any other whitespace to
// a plain space and trims the result.
func CleanCell(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			continue
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), !unicode.IsPrint(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
