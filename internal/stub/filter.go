package stub

import (
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// ListFilter is the parsed query of a list endpoint.
// Multi-valued parameters arrive comma-joined with escaped commas inside values.
type ListFilter struct {
	Limit    int
	Offset   int
	Ordering string

	values map[string]mapset.Set[string]
	after  map[string]time.Time
	before map[string]time.Time
}

// ParseListFilter parses a raw query string. Parameters named <field>_after
// and <field>_before are read as RFC 3339 bounds.
func ParseListFilter(rawQuery string) (*ListFilter, error) {
	f := &ListFilter{
		values: make(map[string]mapset.Set[string]),
		after:  make(map[string]time.Time),
		before: make(map[string]time.Time),
	}

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("%w: query key %q", ErrInvalid, rawKey)
		}

		elems := strings.Split(rawValue, ",")
		for i, e := range elems {
			if elems[i], err = url.QueryUnescape(e); err != nil {
				return nil, fmt.Errorf("%w: query value %q", ErrInvalid, rawValue)
			}
		}
		first := elems[0]

		switch {
		case key == "limit" || key == "offset":
			n, err := strconv.Atoi(first)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalid, key)
			}
			if key == "limit" {
				f.Limit = n
			} else {
				f.Offset = n
			}
		case key == "ordering":
			f.Ordering = first
		case strings.HasSuffix(key, "_after"), strings.HasSuffix(key, "_before"):
			t, err := time.Parse(time.RFC3339Nano, first)
			if err != nil {
				return nil, fmt.Errorf("%w: %s is not RFC 3339", ErrInvalid, key)
			}
			if field, ok := strings.CutSuffix(key, "_after"); ok {
				f.after[field] = t
			} else {
				f.before[strings.TrimSuffix(key, "_before")] = t
			}
		default:
			f.values[key] = mapset.NewSet(elems...)
		}
	}

	return f, nil
}

// Value returns the first value of a single-valued parameter
func (f *ListFilter) Value(key string) string {
	set, ok := f.values[key]
	if !ok || set.Cardinality() != 1 {
		return ""
	}
	return set.ToSlice()[0]
}

// matchString reports whether v is among the values given for key.
// An absent key matches everything.
func (f *ListFilter) matchString(key, v string) bool {
	if f == nil {
		return true
	}
	set, ok := f.values[key]
	return !ok || set.Contains(v)
}

// matchAmount reports whether r equals one of the decimal amounts given.
// An absent amount filter matches everything.
func (f *ListFilter) matchAmount(r *big.Rat) bool {
	if f == nil {
		return true
	}
	set, ok := f.values["amount"]
	if !ok {
		return true
	}
	for _, v := range set.ToSlice() {
		if want, ok := new(big.Rat).SetString(v); ok && r != nil && want.Cmp(r) == 0 {
			return true
		}
	}
	return false
}

// matchTime checks t against the <field>_after and <field>_before bounds
func (f *ListFilter) matchTime(field string, t *time.Time) bool {
	if f == nil {
		return true
	}
	after, hasAfter := f.after[field]
	before, hasBefore := f.before[field]
	if !hasAfter && !hasBefore {
		return true
	}
	if t == nil {
		return false
	}
	if hasAfter && t.Before(after) {
		return false
	}
	if hasBefore && t.After(before) {
		return false
	}
	return true
}

// window returns the [start, end) slice bounds of the filter's page over n items
func (f *ListFilter) window(n int) (int, int) {
	start := f.Offset
	if start > n {
		start = n
	}
	end := n
	if f.Limit > 0 && start+f.Limit < n {
		end = start + f.Limit
	}
	return start, end
}
