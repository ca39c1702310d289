package domain

import (
	"strings"
	"time"
)

// TimestampLayout is the on-disk form of AddressRecord timestamps (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// TableHeader lists the AddressTable columns in their on-disk order.
var TableHeader = []string{"Added", "Date", "RayID", "IP", "Endpoint", "User-Agent", "Action taken", "Country"}

// AddressRecord is one observation of a malicious address.
type AddressRecord struct {
	// IngestedAt is set when the record is first appended to the table.
	IngestedAt time.Time
	// ObservedAt is the time the upstream source saw the request.
	ObservedAt time.Time

	// EventID is unique across the table and never reused.
	EventID string

	Address   string
	Endpoint  string
	UserAgent string
	Action    string
	Country   string
}

// AddressKey returns the trimmed address used for list lookups.
func (r AddressRecord) AddressKey() string {
	return strings.TrimSpace(r.Address)
}

// Row renders the record in TableHeader order. Zero timestamps become empty cells.
func (r AddressRecord) Row() []string {
	return []string{
		FormatTimestamp(r.IngestedAt),
		FormatTimestamp(r.ObservedAt),
		r.EventID,
		r.Address,
		r.Endpoint,
		r.UserAgent,
		r.Action,
		r.Country,
	}
}

func FormatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts RFC3339 with or without fractional seconds.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
