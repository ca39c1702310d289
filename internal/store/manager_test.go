package store

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipwarden/internal/criteria"
	"ipwarden/internal/domain"
)

const (
	listPath  = "lists/main.txt"
	tablePath = "lists/details.csv"
)

type memFS struct {
	files      map[string][]byte
	writeErr   map[string]error
	reads      int
	writeOrder []string
}

func newMemFS() *memFS {
	return &memFS{files: map[string][]byte{}, writeErr: map[string]error{}}
}

func (m *memFS) ReadFile(name string) ([]byte, error) {
	m.reads++
	data, ok := m.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return append([]byte{}, data...), nil
}

func (m *memFS) WriteFile(name string, data []byte) error {
	if err := m.writeErr[name]; err != nil {
		return err
	}
	m.writeOrder = append(m.writeOrder, name)
	m.files[name] = append([]byte{}, data...)
	return nil
}

type staticCountries map[string]string

func (s staticCountries) Country(ip string) string { return s[ip] }

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestManager(fsys FileSystem) *Manager {
	return NewManager(Options{
		ListPath:  listPath,
		TablePath: tablePath,
		FS:        fsys,
		Now:       func() time.Time { return fixedNow },
	})
}

func seed(t *testing.T, fsys *memFS, list []string, table []domain.AddressRecord) {
	t.Helper()
	fsys.files[listPath] = EncodeList(list)
	fsys.files[tablePath] = EncodeTable(table)
}

func load(t *testing.T, m *Manager) Snapshot {
	t.Helper()
	snap, err := m.Load(context.Background())
	require.NoError(t, err)
	return snap
}

func rec(event, ip string) domain.AddressRecord {
	return domain.AddressRecord{EventID: event, Address: ip, Endpoint: "/wp-login.php", Action: "block", Country: "DE"}
}

func TestLoadMissingFilesIsEmpty(t *testing.T) {
	m := newTestManager(newMemFS())

	snap := load(t, m)
	assert.Empty(t, snap.List)
	assert.Empty(t, snap.Table)
}

func TestIngestAppendsSortedBatchAfterExistingList(t *testing.T) {
	fsys := newMemFS()
	seed(t, fsys, []string{"9.9.9.9"}, []domain.AddressRecord{rec("r0", "9.9.9.9")})
	m := newTestManager(fsys)

	stats, err := m.Ingest(context.Background(), []domain.AddressRecord{
		rec("r1", "2001:db8::1"),
		rec("r2", "5.5.5.5"),
		rec("r3", " 1.2.3.4 "),
		rec("r4", "9.9.9.9"),
	})
	require.NoError(t, err)

	assert.Equal(t, IngestStats{Processed: 4, AddedAddresses: 3, AddedRecords: 4}, stats)

	snap := load(t, m)
	assert.Equal(t, []string{"9.9.9.9", "1.2.3.4", "5.5.5.5", "2001:db8::1"}, snap.List)
	require.Len(t, snap.Table, 5)
	assert.Equal(t, "1.2.3.4", snap.Table[3].Address)
	assert.Equal(t, fixedNow, snap.Table[1].IngestedAt)
	assert.Equal(t, []string{listPath, tablePath}, fsys.writeOrder)
}

func TestIngestKeepsEveryTableAddressListed(t *testing.T) {
	fsys := newMemFS()
	m := newTestManager(fsys)

	_, err := m.Ingest(context.Background(), []domain.AddressRecord{
		rec("a", "1.1.1.1"), rec("b", "1.1.1.1"), rec("c", "8.8.8.8"), rec("d", "garbage"), rec("", "7.7.7.7"),
	})
	require.NoError(t, err)

	snap := load(t, m)
	listed := toSet(snap.List)
	for _, r := range snap.Table {
		assert.Contains(t, listed, r.Address)
	}
	assert.Equal(t, []string{"1.1.1.1", "8.8.8.8"}, snap.List)
}

func TestIngestSkipsDuplicateEventID(t *testing.T) {
	fsys := newMemFS()
	m := newTestManager(fsys)

	first := rec("ray-1", "1.1.1.1")
	first.Country = "FR"
	second := rec("ray-1", "1.1.1.1")
	second.Country = "US"

	stats, err := m.Ingest(context.Background(), []domain.AddressRecord{first, second})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AddedRecords)
	assert.Equal(t, 1, stats.SkippedDuplicateEvent)

	stats, err = m.Ingest(context.Background(), []domain.AddressRecord{second})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.AddedRecords)
	assert.Equal(t, 1, stats.SkippedDuplicateEvent)

	snap := load(t, m)
	require.Len(t, snap.Table, 1)
	assert.Equal(t, "FR", snap.Table[0].Country)
}

func TestIngestRejectsInvalidCandidates(t *testing.T) {
	fsys := newMemFS()
	m := newTestManager(fsys)

	stats, err := m.Ingest(context.Background(), []domain.AddressRecord{rec("x", "999.1.1.1"), rec(" ", "1.1.1.1")})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rejected)
	assert.Empty(t, fsys.writeOrder)
}

func TestIngestNothingTouchesNoFiles(t *testing.T) {
	fsys := newMemFS()
	m := newTestManager(fsys)

	_, err := m.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, fsys.reads)
	assert.Empty(t, fsys.writeOrder)
}

func TestIngestFillsMissingCountry(t *testing.T) {
	fsys := newMemFS()
	m := NewManager(Options{
		ListPath:  listPath,
		TablePath: tablePath,
		FS:        fsys,
		Countries: staticCountries{"1.1.1.1": "AU"},
	})

	r := rec("r", "1.1.1.1")
	r.Country = ""
	_, err := m.Ingest(context.Background(), []domain.AddressRecord{r, rec("s", "2.2.2.2")})
	require.NoError(t, err)

	snap := load(t, m)
	assert.Equal(t, "AU", snap.Table[0].Country)
	assert.Equal(t, "DE", snap.Table[1].Country)
}

func TestCleanupRemovesNonPublicAndSorts(t *testing.T) {
	fsys := newMemFS()
	seed(t, fsys,
		[]string{"8.8.8.8", "10.0.0.1", "1.1.1.1", "not-an-ip", "8.8.8.8", "::1", "2606:4700::1111"},
		[]domain.AddressRecord{rec("a", "8.8.8.8"), rec("b", "192.168.1.1"), rec("c", "8.8.8.8"), rec("d", "bad"), rec("e", "4.4.4.4")},
	)
	m := newTestManager(fsys)

	stats, err := m.Cleanup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ClassCounts{Public: 3, NonPublic: 2, Invalid: 1, Duplicates: 1}, stats.List)
	assert.Equal(t, ClassCounts{Public: 2, NonPublic: 1, Invalid: 1, Duplicates: 1}, stats.Table)
	assert.Equal(t, 1, stats.Unlisted)
	assert.Equal(t, 7, stats.List.Total())
	assert.Equal(t, 3, stats.List.Removed())

	snap := load(t, m)
	assert.Equal(t, []string{"1.1.1.1", "8.8.8.8", "2606:4700::1111"}, snap.List)
	var events []string
	for _, r := range snap.Table {
		events = append(events, r.EventID)
	}
	assert.Equal(t, []string{"a", "c", "e"}, events)
}

func TestCleanupIsIdempotent(t *testing.T) {
	fsys := newMemFS()
	seed(t, fsys,
		[]string{"172.16.0.1", "3.3.3.3", "1.1.1.1", "3.3.3.3"},
		[]domain.AddressRecord{rec("a", "3.3.3.3"), rec("b", "172.16.0.1")},
	)
	m := newTestManager(fsys)

	_, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	list, table := string(fsys.files[listPath]), string(fsys.files[tablePath])

	stats, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.List.Removed()+stats.List.Duplicates)
	assert.Equal(t, list, string(fsys.files[listPath]))
	assert.Equal(t, table, string(fsys.files[tablePath]))
}

func TestCleanupLeavesMissingFilesAlone(t *testing.T) {
	fsys := newMemFS()
	m := newTestManager(fsys)

	_, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fsys.writeOrder)
}

func TestCleanupFailsOnOversizedListLine(t *testing.T) {
	fsys := newMemFS()
	original := "1.1.1.1\n" + strings.Repeat("x", 2<<20) + "\n8.8.8.8\n9.9.9.9\n"
	fsys.files[listPath] = []byte(original)
	fsys.files[tablePath] = EncodeTable(nil)
	m := newTestManager(fsys)

	_, err := m.Cleanup(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), listPath)
	assert.Empty(t, fsys.writeOrder)
	assert.Equal(t, original, string(fsys.files[listPath]))
}

func TestRemoveByCriteriaCascadesPerAddress(t *testing.T) {
	fsys := newMemFS()
	bot := rec("a", "5.5.5.5")
	bot.UserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1)"
	seed(t, fsys,
		[]string{"5.5.5.5", "6.6.6.6"},
		[]domain.AddressRecord{bot, rec("b", "5.5.5.5"), rec("c", "6.6.6.6")},
	)
	m := newTestManager(fsys)

	stats, err := m.RemoveByCriteria(context.Background(), "user-agent", "Googlebot")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, []string{"5.5.5.5"}, stats.Addresses)
	assert.Equal(t, 1, stats.ListRemoved)
	assert.Equal(t, 2, stats.TableRemoved)

	snap := load(t, m)
	assert.Equal(t, []string{"6.6.6.6"}, snap.List)
	require.Len(t, snap.Table, 1)
	assert.Equal(t, "c", snap.Table[0].EventID)
}

func TestRemoveByCriteriaValidatesBeforeReading(t *testing.T) {
	fsys := newMemFS()
	m := newTestManager(fsys)

	_, err := m.RemoveByCriteria(context.Background(), "referrer", "x")
	assert.ErrorIs(t, err, criteria.ErrUnknownField)

	_, err = m.RemoveByCriteria(context.Background(), "endpoint", "")
	assert.ErrorIs(t, err, criteria.ErrEmptyNeedle)

	assert.Zero(t, fsys.reads)
}

func TestRemoveByCriteriaNoMatchWritesNothing(t *testing.T) {
	fsys := newMemFS()
	seed(t, fsys, []string{"5.5.5.5"}, []domain.AddressRecord{rec("a", "5.5.5.5")})
	m := newTestManager(fsys)

	stats, err := m.RemoveByCriteria(context.Background(), "country", "ZZ")
	require.NoError(t, err)
	assert.Zero(t, stats.Matched)
	assert.Empty(t, fsys.writeOrder)
}

func TestRemoveWhitelistedEmptyTouchesNothing(t *testing.T) {
	fsys := newMemFS()
	seed(t, fsys, []string{"5.5.5.5"}, nil)
	m := newTestManager(fsys)

	for _, entries := range [][]string{nil, {}, {"", "   "}} {
		stats, err := m.RemoveWhitelisted(context.Background(), entries)
		require.NoError(t, err)
		assert.Zero(t, stats.Matched)
	}
	assert.Zero(t, fsys.reads)
	assert.Empty(t, fsys.writeOrder)
}

func TestRemoveWhitelistedDropsCoveredAddresses(t *testing.T) {
	fsys := newMemFS()
	seed(t, fsys,
		[]string{"66.249.66.1", "8.8.8.8", "2001:4860:4801::5", "1.1.1.1"},
		[]domain.AddressRecord{rec("a", "66.249.66.1"), rec("b", "1.1.1.1"), rec("c", "66.249.79.200")},
	)
	m := newTestManager(fsys)

	stats, err := m.RemoveWhitelisted(context.Background(), []string{"66.249.64.0/19", "2001:4860:4801::/48", "8.8.8.8", "bogus"})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Checked)
	assert.Equal(t, []string{"8.8.8.8", "66.249.66.1", "66.249.79.200", "2001:4860:4801::5"}, stats.Addresses)
	assert.Equal(t, 3, stats.ListRemoved)
	assert.Equal(t, 2, stats.TableRemoved)

	snap := load(t, m)
	assert.Equal(t, []string{"1.1.1.1"}, snap.List)
	require.Len(t, snap.Table, 1)
	assert.Equal(t, "b", snap.Table[0].EventID)
}

func TestRemoveWhitelistedNoHitsWritesNothing(t *testing.T) {
	fsys := newMemFS()
	seed(t, fsys, []string{"1.1.1.1"}, []domain.AddressRecord{rec("a", "1.1.1.1")})
	m := newTestManager(fsys)

	_, err := m.RemoveWhitelisted(context.Background(), []string{"10.0.0.0/8"})
	require.NoError(t, err)
	assert.Empty(t, fsys.writeOrder)
}

func TestTableWriteFailureAfterListIsConsistencyError(t *testing.T) {
	fsys := newMemFS()
	seed(t, fsys, []string{"1.1.1.1"}, []domain.AddressRecord{rec("a", "1.1.1.1")})
	diskFull := errors.New("no space left on device")
	fsys.writeErr[tablePath] = diskFull
	m := newTestManager(fsys)

	_, err := m.Ingest(context.Background(), []domain.AddressRecord{rec("b", "2.2.2.2")})
	require.Error(t, err)

	var cerr *ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, listPath, cerr.Written)
	assert.Equal(t, tablePath, cerr.Failed)
	assert.ErrorIs(t, err, diskFull)
	assert.True(t, cerr.Inconsistent())
	assert.Contains(t, string(fsys.files[listPath]), "2.2.2.2")
}

func TestListWriteFailureIsPlainError(t *testing.T) {
	fsys := newMemFS()
	fsys.writeErr[listPath] = errors.New("read-only file system")
	m := newTestManager(fsys)

	_, err := m.Ingest(context.Background(), []domain.AddressRecord{rec("b", "2.2.2.2")})
	require.Error(t, err)

	var cerr *ConsistencyError
	assert.False(t, errors.As(err, &cerr))
	assert.Empty(t, fsys.writeOrder)
}

func TestOSFileSystemRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(Options{
		ListPath:  filepath.Join(dir, "lists", "main.txt"),
		TablePath: filepath.Join(dir, "lists", "details.csv"),
		Now:       func() time.Time { return fixedNow },
	})

	_, err := m.Ingest(context.Background(), []domain.AddressRecord{rec("a", "8.8.4.4")})
	require.NoError(t, err)

	data, err := OSFileSystem{}.ReadFile(filepath.Join(dir, "lists", "main.txt"))
	require.NoError(t, err)
	assert.Equal(t, "8.8.4.4\n", string(data))

	data, err = OSFileSystem{}.ReadFile(filepath.Join(dir, "lists", "details.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(domain.TableHeader, ",")+"\n"))
	assert.Contains(t, string(data), "2026-03-04T05:06:07.000Z,,a,8.8.4.4,/wp-login.php,,block,DE\n")
}
