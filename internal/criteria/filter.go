// Package criteria selects AddressTable records by a field substring and
// derives the set of addresses whose records must all be purged.
package criteria

import (
	"errors"
	"fmt"
	"strings"

	"ipwarden/internal/domain"
)

var (
	ErrUnknownField = errors.New("criteria: unknown field")
	ErrEmptyNeedle  = errors.New("criteria: search term is empty")
)

// Field selects which AddressRecord value a search term is matched against.
type Field int

const (
	FieldAddress Field = iota
	FieldEndpoint
	FieldUserAgent
	FieldAction
	FieldCountry
	FieldEventID
)

var fieldNames = map[string]Field{
	"ip":        FieldAddress,
	"address":   FieldAddress,
	"endpoint":  FieldEndpoint,
	"useragent": FieldUserAgent,
	"action":    FieldAction,
	"country":   FieldCountry,
	"eventid":   FieldEventID,
	"rayid":     FieldEventID,
}

// ParseField resolves a field name. Names are matched case-insensitively
// (userAgent, user-agent and useragent are the same field).
func ParseField(name string) (Field, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", ""))
	field, ok := fieldNames[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return field, nil
}

func (f Field) String() string {
	switch f {
	case FieldAddress:
		return "ip"
	case FieldEndpoint:
		return "endpoint"
	case FieldUserAgent:
		return "userAgent"
	case FieldAction:
		return "action"
	case FieldCountry:
		return "country"
	case FieldEventID:
		return "eventId"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Value returns the record's value for the field.
func (f Field) Value(rec domain.AddressRecord) string {
	switch f {
	case FieldAddress:
		return rec.Address
	case FieldEndpoint:
		return rec.Endpoint
	case FieldUserAgent:
		return rec.UserAgent
	case FieldAction:
		return rec.Action
	case FieldCountry:
		return rec.Country
	case FieldEventID:
		return rec.EventID
	default:
		return ""
	}
}

// Result splits a table by a criteria match.
type Result struct {
	Matched   []domain.AddressRecord
	Remaining []domain.AddressRecord

	// Addresses holds the distinct trimmed addresses of Matched in first-seen
	// order. Every record carrying one of them is condemned, not only the
	// records that matched.
	Addresses []string
}

// Filter partitions records by case-sensitive substring containment of needle
// in the given field. Empty field values never match.
func Filter(records []domain.AddressRecord, field Field, needle string) (Result, error) {
	if needle == "" {
		return Result{}, ErrEmptyNeedle
	}

	var res Result
	seen := make(map[string]struct{})

	for _, rec := range records {
		value := field.Value(rec)
		if value == "" || !strings.Contains(value, needle) {
			res.Remaining = append(res.Remaining, rec)
			continue
		}

		res.Matched = append(res.Matched, rec)

		addr := rec.AddressKey()
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		res.Addresses = append(res.Addresses, addr)
	}

	return res, nil
}
