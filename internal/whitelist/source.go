package whitelist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"ipwarden/internal/support"
)

const maxResponseBytes = 10 << 20 // 10 MiB safety cap

// ErrResponseTooLarge is returned when a source body exceeds maxResponseBytes.
var ErrResponseTooLarge = errors.New("whitelist source exceeds size limit")

// Fetcher downloads whitelist sources. Requests are paced by Limiter and
// duplicate URLs in one call are fetched once.
type Fetcher struct {
	Client  *http.Client
	Limiter *rate.Limiter

	group singleflight.Group
}

// NewFetcher returns a Fetcher allowing perSecond requests per second.
// A non-positive rate disables pacing.
func NewFetcher(client *http.Client, perSecond float64) *Fetcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Fetcher{Client: client, Limiter: rate.NewLimiter(limit, 1)}
}

// FetchAll downloads every source concurrently and returns the merged,
// deduplicated entries in source order. Any failing source fails the call.
func (f *Fetcher) FetchAll(ctx context.Context, sources []string) ([]string, error) {
	results := make([][]string, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			v, err, _ := f.group.Do(src, func() (interface{}, error) {
				return f.fetch(gctx, src)
			})
			if err != nil {
				return fmt.Errorf("whitelist source %s: %w", src, err)
			}
			results[i] = v.([]string)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(results...)
	log.Info("Fetched whitelist sources", "sources", len(sources), "entries", len(merged))
	return merged, nil
}

func (f *Fetcher) fetch(ctx context.Context, source string) ([]string, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := support.NewGetRequest(ctx, source)
	if err != nil {
		return nil, err
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(content) > maxResponseBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, maxResponseBytes)
	}

	entries, err := ParsePayload(content)
	if err != nil {
		return nil, err
	}
	log.Debug("Fetched whitelist source", "source", source, "entries", len(entries))
	return entries, nil
}

// ReadFiles loads local whitelist files. A missing file is an error here:
// the operator named it explicitly.
func ReadFiles(paths []string) ([]string, error) {
	lists := make([][]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read whitelist file: %w", err)
		}
		entries, err := ParsePayload(data)
		if err != nil {
			return nil, fmt.Errorf("whitelist file %s: %w", path, err)
		}
		lists = append(lists, entries)
	}
	return Merge(lists...), nil
}
