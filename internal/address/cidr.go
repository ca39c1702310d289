package address

import (
	"net/netip"
	"strings"
)

// IsMember reports whether address is covered by a single whitelist entry.
// An entry without a slash is a literal and matches on equal text or equal
// parsed value. An entry with a slash is a prefix and only matches addresses
// of its own family. Unparseable candidates and malformed entries never match.
func IsMember(address, entry string) bool {
	candidate, ok := Parse(address)
	if !ok {
		return false
	}

	entry = strings.TrimSpace(entry)
	if !strings.Contains(entry, "/") {
		if strings.TrimSpace(address) == entry {
			return true
		}
		literal, ok := Parse(entry)
		return ok && literal == candidate
	}

	prefix, ok := ParsePrefix(entry)
	if !ok {
		return false
	}
	return prefixContains(prefix, candidate)
}

// ParsePrefix parses a CIDR entry and masks it to its network address.
func ParsePrefix(raw string) (netip.Prefix, bool) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(raw))
	if err != nil {
		return netip.Prefix{}, false
	}
	return prefix.Masked(), true
}

func prefixContains(prefix netip.Prefix, addr netip.Addr) bool {
	addr = addr.WithZone("")
	if addr.Is4() != prefix.Addr().Is4() {
		return false
	}
	return prefix.Contains(addr)
}
