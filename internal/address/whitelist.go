package address

import (
	"net/netip"
	"strings"
)

// Whitelist is a deduplicated, pre-parsed set of literal and CIDR entries.
// It is immutable after construction and safe for concurrent readers.
type Whitelist struct {
	entries  []string
	exact    map[string]struct{}
	literals map[netip.Addr]struct{}
	prefixes []netip.Prefix
	invalid  int
}

// NewWhitelist builds a whitelist from raw entries. Blank entries are ignored,
// duplicates collapse, and malformed entries are counted but never match.
func NewWhitelist(entries []string) *Whitelist {
	wl := &Whitelist{
		exact:    make(map[string]struct{}, len(entries)),
		literals: make(map[netip.Addr]struct{}, len(entries)),
	}

	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if _, seen := wl.exact[entry]; seen {
			continue
		}
		wl.exact[entry] = struct{}{}
		wl.entries = append(wl.entries, entry)

		if strings.Contains(entry, "/") {
			prefix, ok := ParsePrefix(entry)
			if !ok {
				wl.invalid++
				continue
			}
			wl.prefixes = append(wl.prefixes, prefix)
			continue
		}

		addr, ok := Parse(entry)
		if !ok {
			wl.invalid++
			continue
		}
		wl.literals[addr] = struct{}{}
	}

	return wl
}

// Contains reports whether address matches any entry of the whitelist.
func (wl *Whitelist) Contains(address string) bool {
	if wl == nil || len(wl.entries) == 0 {
		return false
	}

	candidate, ok := Parse(address)
	if !ok {
		return false
	}

	if _, found := wl.exact[strings.TrimSpace(address)]; found {
		return true
	}
	if _, found := wl.literals[candidate]; found {
		return true
	}

	for _, prefix := range wl.prefixes {
		if prefixContains(prefix, candidate) {
			return true
		}
	}
	return false
}

// Entries returns the deduplicated entries in first-seen order.
func (wl *Whitelist) Entries() []string {
	if wl == nil {
		return nil
	}
	return append([]string(nil), wl.entries...)
}

func (wl *Whitelist) Len() int {
	if wl == nil {
		return 0
	}
	return len(wl.entries)
}

func (wl *Whitelist) Empty() bool {
	return wl.Len() == 0
}

// Invalid counts entries that could not be parsed as an address or prefix.
func (wl *Whitelist) Invalid() int {
	if wl == nil {
		return 0
	}
	return wl.invalid
}
