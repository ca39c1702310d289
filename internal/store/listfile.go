package store

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

const maxListLineBytes = 1024 * 1024

// DecodeList splits an AddressList file into trimmed, non-empty lines.
// Duplicates and invalid entries are kept; cleanup is responsible for those.
// A line the scanner cannot hold fails the decode instead of truncating it.
func DecodeList(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1024), maxListLineBytes)

	var lines []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("decode list after %d lines: %w", len(lines), err)
	}
	return lines, nil
}

// EncodeList writes one address per line with a trailing newline.
// An empty list encodes to an empty file.
func EncodeList(list []string) []byte {
	if len(list) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, addr := range list {
		buf.WriteString(addr)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
