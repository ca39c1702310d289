package address

import (
	"net/netip"
	"sort"
	"strings"
)

// Compare orders two addresses by their network-order bytes. IPv4 addresses
// contribute 4 bytes and IPv6 addresses 16; missing trailing bytes count as
// zero. Byte ties are broken by width and then by text so the order is total.
// When either side does not parse, the strings are compared directly.
func Compare(a, b string) int {
	addrA, okA := Parse(a)
	addrB, okB := Parse(b)
	if !okA || !okB {
		return strings.Compare(a, b)
	}

	bytesA := addrBytes(addrA)
	bytesB := addrBytes(addrB)

	n := max(len(bytesA), len(bytesB))
	for i := 0; i < n; i++ {
		x, y := byteOrZero(bytesA, i), byteOrZero(bytesB, i)
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	}

	switch {
	case len(bytesA) < len(bytesB):
		return -1
	case len(bytesA) > len(bytesB):
		return 1
	}
	return strings.Compare(a, b)
}

// Sort orders list in place using Compare.
func Sort(list []string) {
	sort.SliceStable(list, func(i, j int) bool {
		return Compare(list[i], list[j]) < 0
	})
}

func addrBytes(addr netip.Addr) []byte {
	if addr.Is4() {
		b := addr.As4()
		return b[:]
	}
	b := addr.As16()
	return b[:]
}

func byteOrZero(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}
