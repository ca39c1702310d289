package geolite

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

// Resolver answers country lookups from a GeoLite2-Country database.
// A nil Resolver resolves every address to "".
type Resolver struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	path   string
}

// Open loads the database at path.
func Open(path string) (*Resolver, error) {
	reader, err := readerFromDisk(path)
	if err != nil {
		return nil, err
	}
	return &Resolver{reader: reader, path: path}, nil
}

// OpenOptional behaves like Open but returns a nil Resolver when path is empty
// or unreadable, logging the reason.
func OpenOptional(path string) *Resolver {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	resolver, err := Open(path)
	if err != nil {
		log.Warn("GeoLite country database unavailable, countries stay empty", "path", path, "error", err)
		return nil
	}
	return resolver
}

func readerFromDisk(path string) (*geoip2.Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geolite database: %w", err)
	}
	reader, err := geoip2.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("open geolite database %s: %w", path, err)
	}
	return reader, nil
}

// Country returns the ISO country code for ip, or "" when unknown.
func (r *Resolver) Country(ip string) string {
	if r == nil {
		return ""
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.reader == nil {
		return ""
	}

	record, err := r.reader.Country(addr.Unmap().WithZone("").AsSlice())
	if err != nil {
		log.Debug("GeoLite lookup failed", "ip", ip, "error", err)
		return ""
	}
	return record.Country.IsoCode
}

// Reload swaps in a fresh copy of the database file.
func (r *Resolver) Reload() error {
	if r == nil {
		return nil
	}
	reader, err := readerFromDisk(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	old := r.reader
	r.reader = reader
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}
