package whitelist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

const maxLineBytes = 1024 * 1024

// ParseLines reads one entry per line. Blank lines and lines starting with
// '#' are skipped; the result is deduplicated in first-seen order.
// A read failure or an oversized line fails the whole parse.
func ParseLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024), maxLineBytes)

	seen := make(map[string]struct{})
	var out []string

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse whitelist after %d entries: %w", len(out), err)
	}

	return out, nil
}

// rangeDocument is the JSON layout used by crawler operators that publish
// their address ranges (Googlebot, special crawlers).
type rangeDocument struct {
	Prefixes []struct {
		IPv4Prefix string `json:"ipv4Prefix"`
		IPv6Prefix string `json:"ipv6Prefix"`
	} `json:"prefixes"`
}

// ParsePayload accepts either a plain line list or a JSON range document.
func ParsePayload(payload []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var doc rangeDocument
		err := json.Unmarshal(trimmed, &doc)
		if err == nil {
			var lines []string
			for _, p := range doc.Prefixes {
				if p.IPv4Prefix != "" {
					lines = append(lines, p.IPv4Prefix)
				}
				if p.IPv6Prefix != "" {
					lines = append(lines, p.IPv6Prefix)
				}
			}
			return Merge(lines), nil
		}
		log.Warn("Whitelist payload looked like JSON but did not decode, parsing as lines", "error", err)
	}
	return ParseLines(bytes.NewReader(payload))
}

// Merge unions entry lists, keeping first-seen order.
func Merge(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, entry := range list {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if _, dup := seen[entry]; dup {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}
	return out
}
