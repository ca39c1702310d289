package address

import (
	"net/netip"
	"strings"

	"ipwarden/internal/domain"
)

// Parse parses a textual IPv4 or IPv6 address after trimming surrounding whitespace.
func Parse(raw string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// IsValid reports whether raw is a syntactically valid address.
func IsValid(raw string) bool {
	_, ok := Parse(raw)
	return ok
}

// Range returns the special-purpose range raw belongs to. The second result is
// false for invalid input and for ordinary unicast space.
func Range(raw string) (string, bool) {
	addr, ok := Parse(raw)
	if !ok {
		return "", false
	}
	return lookupRange(addr)
}

// Classify labels raw as public, non-public or invalid.
func Classify(raw string) domain.Classification {
	addr, ok := Parse(raw)
	if !ok {
		return domain.Invalid
	}

	name, found := lookupRange(addr)
	if !found {
		return domain.Public
	}
	if _, nonPublic := NonPublicRanges[name]; nonPublic {
		return domain.NonPublic
	}
	return domain.Public
}
