package address

import "net/netip"

type namedRange struct {
	name   string
	prefix netip.Prefix
}

// specialRanges are the IANA special-purpose blocks. Lookups pick the longest
// matching prefix, so nested blocks (teredo inside reserved) resolve to the
// narrower name.
var specialRanges = []namedRange{
	// IPv4
	{"unspecified", netip.MustParsePrefix("0.0.0.0/8")},
	{"broadcast", netip.MustParsePrefix("255.255.255.255/32")},
	{"multicast", netip.MustParsePrefix("224.0.0.0/4")},
	{"linkLocal", netip.MustParsePrefix("169.254.0.0/16")},
	{"loopback", netip.MustParsePrefix("127.0.0.0/8")},
	{"carrierGradeNat", netip.MustParsePrefix("100.64.0.0/10")},
	{"private", netip.MustParsePrefix("10.0.0.0/8")},
	{"private", netip.MustParsePrefix("172.16.0.0/12")},
	{"private", netip.MustParsePrefix("192.168.0.0/16")},
	{"reserved", netip.MustParsePrefix("192.0.0.0/24")},
	{"reserved", netip.MustParsePrefix("192.88.99.0/24")},
	{"reserved", netip.MustParsePrefix("240.0.0.0/4")},
	{"documentation", netip.MustParsePrefix("192.0.2.0/24")},
	{"documentation", netip.MustParsePrefix("198.51.100.0/24")},
	{"documentation", netip.MustParsePrefix("203.0.113.0/24")},
	{"benchmarking", netip.MustParsePrefix("198.18.0.0/15")},
	{"as112", netip.MustParsePrefix("192.175.48.0/24")},
	{"as112", netip.MustParsePrefix("192.31.196.0/24")},
	{"amt", netip.MustParsePrefix("192.52.193.0/24")},

	// IPv6
	{"unspecified", netip.MustParsePrefix("::/128")},
	{"loopback", netip.MustParsePrefix("::1/128")},
	{"linkLocal", netip.MustParsePrefix("fe80::/10")},
	{"multicast", netip.MustParsePrefix("ff00::/8")},
	{"uniqueLocal", netip.MustParsePrefix("fc00::/7")},
	{"ipv4Mapped", netip.MustParsePrefix("::ffff:0:0/96")},
	{"rfc6145", netip.MustParsePrefix("::ffff:0:0:0/96")},
	{"nat64", netip.MustParsePrefix("64:ff9b::/96")},
	{"discard", netip.MustParsePrefix("100::/64")},
	{"6to4", netip.MustParsePrefix("2002::/16")},
	{"teredo", netip.MustParsePrefix("2001::/32")},
	{"benchmarking", netip.MustParsePrefix("2001:2::/48")},
	{"amt", netip.MustParsePrefix("2001:3::/32")},
	{"as112v6", netip.MustParsePrefix("2001:4:112::/48")},
	{"as112v6", netip.MustParsePrefix("2620:4f:8000::/48")},
	{"deprecated", netip.MustParsePrefix("2001:10::/28")},
	{"orchid2", netip.MustParsePrefix("2001:20::/28")},
	{"droneRemoteIdProtocolEntityTags", netip.MustParsePrefix("2001:30::/28")},
	{"documentation", netip.MustParsePrefix("2001:db8::/32")},
	{"reserved", netip.MustParsePrefix("2001::/23")},
}

// NonPublicRanges names the special-purpose ranges that are dropped during cleanup.
// discard and deprecated are named but still treated as routable.
var NonPublicRanges = map[string]struct{}{
	"unspecified":                     {},
	"broadcast":                       {},
	"multicast":                       {},
	"linkLocal":                       {},
	"loopback":                        {},
	"carrierGradeNat":                 {},
	"private":                         {},
	"reserved":                        {},
	"documentation":                   {},
	"benchmarking":                    {},
	"as112":                           {},
	"amt":                             {},
	"uniqueLocal":                     {},
	"ipv4Mapped":                      {},
	"rfc6145":                         {},
	"nat64":                           {},
	"6to4":                            {},
	"teredo":                          {},
	"as112v6":                         {},
	"orchid2":                         {},
	"droneRemoteIdProtocolEntityTags": {},
}

// lookupRange returns the name of the narrowest special range holding addr.
func lookupRange(addr netip.Addr) (string, bool) {
	addr = addr.WithZone("")

	best := -1
	name := ""
	for _, r := range specialRanges {
		if r.prefix.Bits() <= best || !r.prefix.Contains(addr) {
			continue
		}
		best = r.prefix.Bits()
		name = r.name
	}
	return name, best >= 0
}
