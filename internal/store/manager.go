// Package store keeps the flat AddressList file and the AddressTable file
// consistent across ingest, cleanup and removal runs.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ipwarden/internal/address"
	"ipwarden/internal/criteria"
	"ipwarden/internal/domain"
	"ipwarden/internal/whitelist"
)

// CountryResolver fills in a missing country for an ingested address.
type CountryResolver interface {
	Country(ip string) string
}

// Options configures a Manager. Only the two paths are required.
type Options struct {
	ListPath  string
	TablePath string

	FS        FileSystem
	Remover   *whitelist.Remover
	Countries CountryResolver
	Now       func() time.Time
}

// Manager operates on the two store files as a unit. It holds no dataset
// state between calls; every operation reads both files fresh and writes
// back what it changed.
type Manager struct {
	listPath  string
	tablePath string
	fs        FileSystem
	remover   *whitelist.Remover
	countries CountryResolver
	now       func() time.Time
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		listPath:  opts.ListPath,
		tablePath: opts.TablePath,
		fs:        opts.FS,
		remover:   opts.Remover,
		countries: opts.Countries,
		now:       opts.Now,
	}
	if m.fs == nil {
		m.fs = OSFileSystem{}
	}
	if m.remover == nil {
		m.remover = whitelist.NewRemover(0)
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Snapshot is one in-memory copy of both stores.
type Snapshot struct {
	List  []string
	Table []domain.AddressRecord

	listExists  bool
	tableExists bool
}

// Load reads both stores. Missing files load as empty stores.
func (m *Manager) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot

	listData, err := readOptional(m.fs, m.listPath)
	if err != nil {
		return Snapshot{}, err
	}
	snap.listExists = listData != nil
	snap.List, err = DecodeList(listData)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", m.listPath, err)
	}

	tableData, err := readOptional(m.fs, m.tablePath)
	if err != nil {
		return Snapshot{}, err
	}
	snap.tableExists = tableData != nil
	snap.Table, err = DecodeTable(tableData)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", m.tablePath, err)
	}

	log.Debug("Loaded stores", "list", m.listPath, "addresses", len(snap.List), "table", m.tablePath, "records", len(snap.Table))
	return snap, nil
}

// IngestStats summarizes one ingest batch.
type IngestStats struct {
	Processed             int
	AddedAddresses        int
	AddedRecords          int
	SkippedDuplicateEvent int
	Rejected              int
}

// Ingest appends unseen addresses to the list and unseen events to the table.
// New addresses are sorted among themselves and appended after the existing
// list. Candidates without an event id or with an unparseable address are
// rejected. Ingest never removes anything.
func (m *Manager) Ingest(ctx context.Context, candidates []domain.AddressRecord) (IngestStats, error) {
	var stats IngestStats
	if len(candidates) == 0 {
		return stats, nil
	}

	snap, err := m.Load(ctx)
	if err != nil {
		return stats, err
	}

	knownAddrs := make(map[string]struct{}, len(snap.List))
	for _, addr := range snap.List {
		knownAddrs[addr] = struct{}{}
	}
	knownEvents := make(map[string]struct{}, len(snap.Table))
	for _, rec := range snap.Table {
		knownEvents[rec.EventID] = struct{}{}
	}

	ingestedAt := m.now().UTC()
	var queued []string

	for _, cand := range candidates {
		stats.Processed++

		addr := cand.AddressKey()
		eventID := strings.TrimSpace(cand.EventID)
		if eventID == "" || !address.IsValid(addr) {
			stats.Rejected++
			log.Debug("Rejected ingest candidate", "event_id", eventID, "ip", cand.Address)
			continue
		}

		if _, known := knownAddrs[addr]; !known {
			knownAddrs[addr] = struct{}{}
			queued = append(queued, addr)
			stats.AddedAddresses++
		}

		if _, known := knownEvents[eventID]; known {
			stats.SkippedDuplicateEvent++
			continue
		}
		knownEvents[eventID] = struct{}{}

		rec := cand
		rec.EventID = eventID
		rec.Address = addr
		rec.IngestedAt = ingestedAt
		if rec.Country == "" && m.countries != nil {
			rec.Country = m.countries.Country(addr)
		}
		snap.Table = append(snap.Table, rec)
		stats.AddedRecords++
	}

	address.Sort(queued)
	snap.List = append(snap.List, queued...)

	if err := m.commit(ctx, snap, stats.AddedAddresses > 0, stats.AddedRecords > 0); err != nil {
		return stats, err
	}
	return stats, nil
}

// ClassCounts tallies one store during cleanup.
type ClassCounts struct {
	Public     int
	NonPublic  int
	Invalid    int
	Duplicates int
}

func (c ClassCounts) Total() int {
	return c.Public + c.NonPublic + c.Invalid + c.Duplicates
}

func (c ClassCounts) Removed() int {
	return c.NonPublic + c.Invalid
}

// CleanupStats reports both stores after a cleanup pass.
type CleanupStats struct {
	List  ClassCounts
	Table ClassCounts

	// Unlisted counts distinct public table addresses absent from the list.
	// Cleanup reports them but does not repair the list.
	Unlisted int
}

// Cleanup drops non-public and invalid addresses from both stores, removes
// duplicate list entries and sorts the list canonically. Repeat table rows
// for a public address are kept and only counted.
func (m *Manager) Cleanup(ctx context.Context) (CleanupStats, error) {
	var stats CleanupStats

	snap, err := m.Load(ctx)
	if err != nil {
		return stats, err
	}

	seen := make(map[string]struct{}, len(snap.List))
	list := make([]string, 0, len(snap.List))
	for _, addr := range snap.List {
		switch address.Classify(addr) {
		case domain.Public:
			if _, dup := seen[addr]; dup {
				stats.List.Duplicates++
				continue
			}
			seen[addr] = struct{}{}
			list = append(list, addr)
			stats.List.Public++
		case domain.NonPublic:
			stats.List.NonPublic++
		default:
			stats.List.Invalid++
		}
	}
	address.Sort(list)

	tableSeen := make(map[string]struct{})
	table := make([]domain.AddressRecord, 0, len(snap.Table))
	for _, rec := range snap.Table {
		addr := rec.AddressKey()
		switch address.Classify(addr) {
		case domain.Public:
			table = append(table, rec)
			if _, dup := tableSeen[addr]; dup {
				stats.Table.Duplicates++
				continue
			}
			tableSeen[addr] = struct{}{}
			stats.Table.Public++
			if _, listed := seen[addr]; !listed {
				stats.Unlisted++
			}
		case domain.NonPublic:
			stats.Table.NonPublic++
		default:
			stats.Table.Invalid++
		}
	}

	if stats.Unlisted > 0 {
		log.Warn("Table holds public addresses missing from the list", "count", stats.Unlisted)
	}

	snap.List = list
	snap.Table = table
	if err := m.commit(ctx, snap, snap.listExists, snap.tableExists); err != nil {
		return stats, err
	}
	return stats, nil
}

// RemovalStats reports an address-scoped removal.
type RemovalStats struct {
	// Checked is the number of records (criteria) or distinct addresses
	// (whitelist) that were examined.
	Checked int
	// Matched is the number of records or addresses that hit.
	Matched int
	// Addresses is the condemned address set, canonically sorted.
	Addresses []string

	ListRemoved  int
	TableRemoved int
}

// RemoveByCriteria removes every address that has at least one record whose
// field contains needle, together with all of that address's records.
// The field and needle are validated before any file is read.
func (m *Manager) RemoveByCriteria(ctx context.Context, fieldName, needle string) (RemovalStats, error) {
	var stats RemovalStats

	field, err := criteria.ParseField(fieldName)
	if err != nil {
		return stats, err
	}
	if needle == "" {
		return stats, criteria.ErrEmptyNeedle
	}

	snap, err := m.Load(ctx)
	if err != nil {
		return stats, err
	}

	res, err := criteria.Filter(snap.Table, field, needle)
	if err != nil {
		return stats, err
	}
	stats.Checked = len(snap.Table)
	stats.Matched = len(res.Matched)

	if len(res.Addresses) == 0 {
		log.Warn("No matching records", "field", field.String(), "needle", needle)
		return stats, nil
	}

	return m.removeAddresses(ctx, snap, toSet(res.Addresses), stats)
}

// RemoveWhitelisted removes every list entry and table address covered by the
// whitelist. An empty whitelist is a no-op that touches neither file.
func (m *Manager) RemoveWhitelisted(ctx context.Context, entries []string) (RemovalStats, error) {
	var stats RemovalStats

	wl := address.NewWhitelist(entries)
	if wl.Empty() {
		log.Warn("Whitelist is empty, nothing to remove")
		return stats, nil
	}
	if wl.Invalid() > 0 {
		log.Warn("Ignoring malformed whitelist entries", "count", wl.Invalid())
	}

	snap, err := m.Load(ctx)
	if err != nil {
		return stats, err
	}

	items := whitelist.Collect(snap.List, snap.Table)
	stats.Checked = len(items)
	log.Info("Checking addresses against whitelist", "addresses", len(items), "entries", wl.Len(), "workers", m.remover.Workers)

	removed, err := m.remover.Match(ctx, items, wl)
	if err != nil {
		return stats, err
	}
	stats.Matched = len(removed)

	if len(removed) == 0 {
		log.Warn("No whitelisted addresses found in the stores")
		return stats, nil
	}

	return m.removeAddresses(ctx, snap, removed, stats)
}

func (m *Manager) removeAddresses(ctx context.Context, snap Snapshot, condemned map[string]struct{}, stats RemovalStats) (RemovalStats, error) {
	list := make([]string, 0, len(snap.List))
	for _, addr := range snap.List {
		if _, drop := condemned[strings.TrimSpace(addr)]; drop {
			stats.ListRemoved++
			continue
		}
		list = append(list, addr)
	}

	table := make([]domain.AddressRecord, 0, len(snap.Table))
	for _, rec := range snap.Table {
		if _, drop := condemned[rec.AddressKey()]; drop {
			stats.TableRemoved++
			continue
		}
		table = append(table, rec)
	}

	stats.Addresses = make([]string, 0, len(condemned))
	for addr := range condemned {
		stats.Addresses = append(stats.Addresses, addr)
	}
	address.Sort(stats.Addresses)

	snap.List = list
	snap.Table = table
	if err := m.commit(ctx, snap, stats.ListRemoved > 0, stats.TableRemoved > 0); err != nil {
		return stats, err
	}
	return stats, nil
}

// commit writes the list first and the table second. Only a table failure
// after a successful list write is reported as a ConsistencyError.
func (m *Manager) commit(ctx context.Context, snap Snapshot, writeList, writeTable bool) error {
	if !writeList && !writeTable {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if writeList {
		if err := m.fs.WriteFile(m.listPath, EncodeList(snap.List)); err != nil {
			return fmt.Errorf("write %s: %w", m.listPath, err)
		}
		log.Debug("Wrote list", "path", m.listPath, "addresses", len(snap.List))
	}

	if writeTable {
		if err := m.fs.WriteFile(m.tablePath, EncodeTable(snap.Table)); err != nil {
			if writeList {
				return &ConsistencyError{Written: m.listPath, Failed: m.tablePath, Err: err}
			}
			return fmt.Errorf("write %s: %w", m.tablePath, err)
		}
		log.Debug("Wrote table", "path", m.tablePath, "records", len(snap.Table))
	}
	return nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
