// Package report turns raw DDoS request logs into an abuse report and an
// address list, and optionally into ingest candidates.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ipwarden/internal/address"
)

var ErrNoEntries = errors.New("report: no valid entries found")

var linePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}\.\d{3})\s+(\d{2}\.\d{2}\.\d{4}):\s+\[.*?]\s+(\S+)\s+-\s+(.*?)\s+-\s+([\da-fA-F:.]+)\s+"([^"]*)".*$`),
	regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}\.\d{3})\s+(\d{2}\.\d{2}\.\d{4}):\s+\[.*?]\s+(\S+)\s+-\s+(\S+)\s+-\s+([\da-fA-F:.]+)\s+"([^"]*)".*$`),
}

const lineTimeLayout = "02.01.2006 15:04:05.000"

// Entry is the most descriptive request seen for one address.
type Entry struct {
	Address   string
	Time      time.Time
	Endpoint  string
	UserAgent string
	Referer   string
}

// Score ranks entries for the same address; longer client details win.
func (e Entry) Score() int {
	return fieldLen(e.UserAgent) + fieldLen(e.Referer)
}

func fieldLen(value string) int {
	if value == "" || value == "-" {
		return 0
	}
	return len(value)
}

type Stats struct {
	TotalLines   int
	ParsedLines  int
	InvalidLines int
	IPv4         int
	IPv6         int
}

// Result holds one entry per address in first-seen order.
type Result struct {
	Stats   Stats
	entries map[string]Entry
	order   []string
}

func (r *Result) Len() int {
	return len(r.order)
}

func (r *Result) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.entries[addr])
	}
	return out
}

// Parse reads a log stream line by line. Lines that match no pattern or
// carry an invalid address are counted as invalid; blank lines are skipped.
func Parse(r io.Reader) (*Result, error) {
	res := &Result{entries: make(map[string]Entry)}
	v4 := make(map[string]struct{})
	v6 := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		res.Stats.TotalLines++
		line := strings.TrimSpace(strings.ReplaceAll(scanner.Text(), "\r", ""))
		if line == "" {
			continue
		}

		entry, ok := parseLine(line)
		if !ok {
			res.Stats.InvalidLines++
			continue
		}
		res.Stats.ParsedLines++

		if addr, _ := address.Parse(entry.Address); addr.Unmap().Is4() {
			v4[entry.Address] = struct{}{}
		} else {
			v6[entry.Address] = struct{}{}
		}

		existing, seen := res.entries[entry.Address]
		if !seen {
			res.order = append(res.order, entry.Address)
			res.entries[entry.Address] = entry
		} else if entry.Score() > existing.Score() {
			res.entries[entry.Address] = entry
		}

		if res.Stats.TotalLines%10000 == 0 {
			log.Debug("Parsing log", "lines", res.Stats.TotalLines)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	res.Stats.IPv4 = len(v4)
	res.Stats.IPv6 = len(v6)
	log.Info("Parsing completed", "valid", res.Stats.ParsedLines, "invalid", res.Stats.InvalidLines)
	return res, nil
}

func parseLine(line string) (Entry, bool) {
	for _, pattern := range linePatterns {
		m := pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		ip := strings.TrimSpace(m[5])
		if !address.IsValid(ip) {
			continue
		}

		ts, err := time.Parse(lineTimeLayout, m[2]+" "+m[1])
		if err != nil {
			continue
		}

		return Entry{
			Address:   ip,
			Time:      ts.UTC(),
			Endpoint:  strings.TrimSpace(m[3]),
			UserAgent: strings.TrimSpace(m[4]),
			Referer:   strings.TrimSpace(m[6]),
		}, true
	}
	return Entry{}, false
}
