package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipwarden/internal/store"
)

const sample = "12:00:01.250 05.03.2025: [GET] /index.php - Mozilla/5.0 (Windows NT 10.0) - 203.0.113.7 \"-\"\r\n" +
	"12:00:02.000 05.03.2025: [GET] /login - Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit - 203.0.113.7 \"https://example.org/\"\n" +
	"12:00:03.000 05.03.2025: [GET] /short - - - 203.0.113.7 \"\"\n" +
	"\n" +
	"12:00:04.000 05.03.2025: [POST] /api - curl/8.1 - 2001:db8::42 \"-\"\n" +
	"garbage line\n" +
	"12:00:05.000 05.03.2025: [GET] / - x - 999.1.1.1 \"-\"\n"

func TestParseKeepsBestEntryPerAddress(t *testing.T) {
	res, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, Stats{TotalLines: 7, ParsedLines: 4, InvalidLines: 2, IPv4: 1, IPv6: 1}, res.Stats)
	require.Equal(t, 2, res.Len())

	entries := res.Entries()
	assert.Equal(t, "203.0.113.7", entries[0].Address)
	assert.Equal(t, "/login", entries[0].Endpoint)
	assert.Equal(t, "https://example.org/", entries[0].Referer)
	assert.Equal(t, time.Date(2025, 3, 5, 12, 0, 2, 0, time.UTC), entries[0].Time)

	assert.Equal(t, "2001:db8::42", entries[1].Address)
	assert.Equal(t, "curl/8.1", entries[1].UserAgent)
}

func TestScoreIgnoresDashes(t *testing.T) {
	assert.Equal(t, 0, Entry{UserAgent: "-", Referer: "-"}.Score())
	assert.Equal(t, 7, Entry{UserAgent: "abc", Referer: "defg"}.Score())
}

func TestAbuseCSV(t *testing.T) {
	entries := []Entry{
		{Address: "203.0.113.7", Time: time.Date(2025, 3, 5, 12, 0, 2, 0, time.UTC), Endpoint: "/login", UserAgent: `Bot "x"`},
		{Address: "2001:db8::42", Time: time.Date(2025, 3, 5, 12, 0, 4, 0, time.UTC), Endpoint: "/api", UserAgent: "-"},
	}

	got := string(AbuseCSV(entries, Category("abuseipdb")))
	assert.Equal(t, `"IP","Categories","ReportDate","Comment"`+"\n"+
		`"203.0.113.7","18","2025-03-05T12:00:02.000Z","DDoS Attack: HTTP requests trying to impersonate browsers. Endpoint /login. UA: Bot ""x"""`+"\n"+
		`"2001:db8::42","18","2025-03-05T12:00:04.000Z","DDoS Attack: HTTP requests trying to impersonate browsers. Endpoint /api"`,
		got)

	assert.Equal(t, "3", Category("other"))
	assert.Equal(t, "203.0.113.7\n2001:db8::42", string(AddressList(entries)))
}

func TestWriteNamesFilesByDate(t *testing.T) {
	res, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	dir := t.TempDir()
	files, err := Write(store.OSFileSystem{}, dir, res, "abuseipdb", time.Date(2025, 3, 6, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2025-03-06.csv"), files.CSV)
	assert.FileExists(t, files.CSV)
	assert.FileExists(t, files.List)

	_, err = Write(store.OSFileSystem{}, dir, &Result{}, "abuseipdb", time.Now())
	assert.ErrorIs(t, err, ErrNoEntries)
}

func TestCandidatesAreDeterministic(t *testing.T) {
	res, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	first := Candidates(res.Entries())
	second := Candidates(res.Entries())
	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0].EventID, first[1].EventID)
	assert.Equal(t, "ddos", first[0].Action)
}
