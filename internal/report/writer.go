package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"ipwarden/internal/domain"
	"ipwarden/internal/store"
)

const (
	CategoryAbuseIPDB = "abuseipdb"

	abuseHeader = `"IP","Categories","ReportDate","Comment"`
	reportDate  = "2006-01-02T15:04:05.000Z"
)

var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ipwarden/ddos-report"))

// Category maps the configured report flavour to an AbuseIPDB category id:
// 18 (brute force) for abuseipdb, 3 otherwise.
func Category(kind string) string {
	if strings.EqualFold(strings.TrimSpace(kind), CategoryAbuseIPDB) {
		return "18"
	}
	return "3"
}

func Comment(e Entry) string {
	comment := "DDoS Attack: HTTP requests trying to impersonate browsers. Endpoint " + e.Endpoint
	if e.UserAgent != "" && e.UserAgent != "-" {
		comment += ". UA: " + e.UserAgent
	}
	return comment
}

// AbuseCSV renders the bulk-report file. Rows are not newline terminated.
func AbuseCSV(entries []Entry, category string) []byte {
	var buf bytes.Buffer
	buf.WriteString(abuseHeader)
	for _, e := range entries {
		buf.WriteByte('\n')
		fmt.Fprintf(&buf, "%s,%s,%s,%s",
			quote(e.Address), quote(category), quote(e.Time.UTC().Format(reportDate)), quote(Comment(e)))
	}
	return buf.Bytes()
}

func quote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// AddressList renders one address per line.
func AddressList(entries []Entry) []byte {
	addrs := make([]string, 0, len(entries))
	for _, e := range entries {
		addrs = append(addrs, e.Address)
	}
	return []byte(strings.Join(addrs, "\n"))
}

// Files names the outputs written by Write.
type Files struct {
	CSV  string
	List string
}

// Write stores the report pair in dir, named after the UTC date of now.
func Write(fsys store.FileSystem, dir string, res *Result, category string, now time.Time) (Files, error) {
	if res == nil || res.Len() == 0 {
		return Files{}, ErrNoEntries
	}

	day := now.UTC().Format("2006-01-02")
	files := Files{
		CSV:  filepath.Join(dir, day+".csv"),
		List: filepath.Join(dir, day+".txt"),
	}

	entries := res.Entries()
	if err := fsys.WriteFile(files.CSV, AbuseCSV(entries, category)); err != nil {
		return Files{}, fmt.Errorf("write report: %w", err)
	}
	log.Info("Generated abuse report", "path", files.CSV, "entries", len(entries))

	if err := fsys.WriteFile(files.List, AddressList(entries)); err != nil {
		return Files{}, fmt.Errorf("write address list: %w", err)
	}
	log.Info("Generated address list", "path", files.List, "addresses", len(entries))

	return files, nil
}

// Candidates converts report entries into ingest candidates. Event ids are
// derived from the entry, so re-ingesting the same log adds nothing.
func Candidates(entries []Entry) []domain.AddressRecord {
	records := make([]domain.AddressRecord, 0, len(entries))
	for _, e := range entries {
		key := e.Address + "|" + e.Time.UTC().Format(reportDate) + "|" + e.Endpoint
		records = append(records, domain.AddressRecord{
			ObservedAt: e.Time,
			EventID:    uuid.NewSHA1(eventNamespace, []byte(key)).String(),
			Address:    e.Address,
			Endpoint:   e.Endpoint,
			UserAgent:  e.UserAgent,
			Action:     "ddos",
		})
	}
	return records
}
