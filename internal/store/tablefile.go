package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"ipwarden/internal/domain"
)

// DecodeTable parses an AddressTable file. Columns are located by header
// name; absent columns decode as empty values. An empty file is an empty table.
func DecodeTable(data []byte) ([]domain.AddressRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read table header: %w", err)
	}
	columns := indexColumns(header)

	var records []domain.AddressRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read table row %d: %w", line, err)
		}
		if isBlankRow(row) {
			continue
		}
		records = append(records, decodeRow(row, columns, line))
	}
	return records, nil
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	return columns
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func decodeRow(row []string, columns map[string]int, line int) domain.AddressRecord {
	cell := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	rec := domain.AddressRecord{
		EventID:   strings.TrimSpace(cell("RayID")),
		Address:   strings.TrimSpace(cell("IP")),
		Endpoint:  cell("Endpoint"),
		UserAgent: cell("User-Agent"),
		Action:    cell("Action taken"),
		Country:   cell("Country"),
	}

	var err error
	if rec.IngestedAt, err = domain.ParseTimestamp(cell("Added")); err != nil {
		log.Warn("Unparseable Added timestamp, leaving it empty", "line", line, "value", cell("Added"))
	}
	if rec.ObservedAt, err = domain.ParseTimestamp(cell("Date")); err != nil {
		log.Warn("Unparseable Date timestamp, leaving it empty", "line", line, "value", cell("Date"))
	}
	return rec
}

// EncodeTable renders the table with its header row. Every row ends with a
// newline.
func EncodeTable(records []domain.AddressRecord) []byte {
	var buf bytes.Buffer
	writeRow(&buf, domain.TableHeader)
	for _, rec := range records {
		writeRow(&buf, rec.Row())
	}
	return buf.Bytes()
}

func writeRow(buf *bytes.Buffer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(quoteCell(cell))
	}
	buf.WriteByte('\n')
}

// quoteCell quotes values holding a delimiter, a quote, a line break or
// surrounding whitespace. Embedded quotes are doubled.
func quoteCell(cell string) string {
	if !needsQuotes(cell) {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

func needsQuotes(cell string) bool {
	if cell == "" {
		return false
	}
	if strings.ContainsAny(cell, ",;\"\r\n") {
		return true
	}
	first, _ := utf8.DecodeRuneInString(cell)
	last, _ := utf8.DecodeLastRuneInString(cell)
	return unicode.IsSpace(first) || unicode.IsSpace(last)
}
