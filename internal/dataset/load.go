package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// ErrUnsupported indicates the payload is neither readable CSV nor Excel.
var ErrUnsupported = errors.New("unsupported file format")

// LoadOptions controls file decoding.
type LoadOptions struct {
	// Delimiter for CSV. If 0, sniffed from the header line among ',', ';', '\t', '|'.
	Delimiter rune
	// Sheet selects an Excel sheet by name; empty means the first sheet.
	Sheet string
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
}

// LoadFile reads a CSV/TSV/XLSX file from disk and returns the cleaned dataset.
func LoadFile(path string, opt LoadOptions) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return LoadBytes(filepath.Base(path), b, opt)
}

// LoadBytes decodes an uploaded file. Excel is chosen by extension or zip
// signature; otherwise CSV is tried first and Excel second.
func LoadBytes(name string, data []byte, opt LoadOptions) (*Dataset, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: empty file", name)
	}
	lower := strings.ToLower(name)
	isZip := bytes.HasPrefix(data, []byte("PK\x03\x04"))
	if strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm") || isZip {
		header, rows, err := readXLSX(data, opt)
		if err != nil {
			return nil, err
		}
		return Clean(name, header, rows), nil
	}
	header, rows, csvErr := readCSV(name, data, opt)
	if csvErr == nil && len(header) > 0 {
		return Clean(name, header, rows), nil
	}
	header, rows, err := readXLSX(data, opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (csv: %v)", ErrUnsupported, name, csvErr)
	}
	return Clean(name, header, rows), nil
}

func readCSV(name string, data []byte, opt LoadOptions) ([]string, [][]string, error) {
	text := decodeText(data)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name, text)
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%s: no header row", name)
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	var rows [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rec)
		if opt.MaxRows > 0 && len(rows) >= opt.MaxRows {
			break
		}
	}
	return header, rows, nil
}

func readXLSX(data []byte, opt LoadOptions) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("open Excel: workbook has no sheets")
	}
	sheet := sheets[0]
	if opt.Sheet != "" {
		sheet = ""
		for _, s := range sheets {
			if strings.EqualFold(s, opt.Sheet) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, nil, fmt.Errorf("sheet '%s' not found.\nAvailable sheets: %s", opt.Sheet, strings.Join(sheets, ", "))
		}
	}
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	rows := all[1:]
	if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
		rows = rows[:opt.MaxRows]
	}
	return all[0], rows, nil
}

// decodeText returns UTF-8 text, falling back to the Turkish and Western
// single-byte code pages when the payload is not valid UTF-8.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	for _, cm := range []*charmap.Charmap{charmap.ISO8859_9, charmap.Windows1254, charmap.ISO8859_1} {
		if out, err := cm.NewDecoder().Bytes(data); err == nil {
			return string(out)
		}
	}
	return string(data)
}

func sniffDelimiter(name, text string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
