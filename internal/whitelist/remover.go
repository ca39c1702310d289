// Package whitelist finds dataset addresses covered by a whitelist, fanning
// the membership checks out over a bounded set of workers.
package whitelist

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"ipwarden/internal/address"
	"ipwarden/internal/domain"
)

// cancelCheckEvery controls how often a worker looks at its context.
const cancelCheckEvery = 1024

// Remover partitions a dataset across Workers goroutines and aggregates the
// addresses each one flags.
type Remover struct {
	Workers int

	// check replaces Whitelist.Contains in tests.
	check func(wl *address.Whitelist, addr string) bool
}

// NewRemover returns a Remover with the given width. Non-positive widths use
// the available parallelism.
func NewRemover(workers int) *Remover {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}
	return &Remover{Workers: workers}
}

// Collect returns the union of list entries and table addresses, trimmed and
// deduplicated, list entries first.
func Collect(list []string, table []domain.AddressRecord) []string {
	seen := make(map[string]struct{}, len(list))
	items := make([]string, 0, len(list))

	add := func(raw string) {
		addr := strings.TrimSpace(raw)
		if addr == "" {
			return
		}
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		items = append(items, addr)
	}

	for _, addr := range list {
		add(addr)
	}
	for _, rec := range table {
		add(rec.Address)
	}
	return items
}

// Partition deals items round-robin into n chunks. Every item lands in
// exactly one chunk; chunks may be empty when n exceeds len(items).
func Partition(items []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	chunks := make([][]string, n)
	for i, item := range items {
		chunks[i%n] = append(chunks[i%n], item)
	}
	return chunks
}

// Match returns the subset of items covered by wl. An empty whitelist
// matches nothing and starts no workers. If any worker fails the whole call
// fails and no partial result is returned.
func (r *Remover) Match(ctx context.Context, items []string, wl *address.Whitelist) (map[string]struct{}, error) {
	removed := make(map[string]struct{})
	if wl.Empty() || len(items) == 0 {
		return removed, nil
	}

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	chunks := Partition(items, workers)
	results := make([][]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		i, chunk := i, chunk
		g.Go(func() error {
			matched, err := r.scan(gctx, i, chunk, wl)
			if err != nil {
				return err
			}
			results[i] = matched
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("whitelist: aborted, no removals applied: %w", err)
	}

	for i, matched := range results {
		log.Debug("Whitelist worker done", "worker", i, "checked", len(chunks[i]), "matched", len(matched))
		for _, addr := range matched {
			removed[addr] = struct{}{}
		}
	}
	return removed, nil
}

func (r *Remover) scan(ctx context.Context, worker int, chunk []string, wl *address.Whitelist) (matched []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			matched = nil
			err = fmt.Errorf("worker %d panicked: %v", worker, rec)
		}
	}()

	check := r.check
	if check == nil {
		check = (*address.Whitelist).Contains
	}

	for i, addr := range chunk {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("worker %d: %w", worker, err)
			}
		}
		if check(wl, addr) {
			matched = append(matched, addr)
		}
	}
	return matched, nil
}
