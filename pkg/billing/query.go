package billing

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Filters are query parameters for list and detail calls.
// Slice values are sent comma-joined: {"ids": []int{1, 2}} encodes as ids=1,2.
type Filters map[string]any

// EncodeQuery encodes filters with sorted keys and comma-joined arrays.
// Nil values and empty slices are skipped.
func EncodeQuery(filters Filters) string {
	if len(filters) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		value, ok := encodeValue(filters[k])
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(value)
	}
	return b.String()
}

func encodeValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return "", false
	}
	// uuid.UUID and net.IP are arrays underneath but encode as their text
	if _, isTime := v.(time.Time); !isTime {
		if sv, ok := v.(fmt.Stringer); ok {
			return url.QueryEscape(sv.String()), true
		}
	}

	switch tv := v.(type) {
	case []string:
		if len(tv) == 0 {
			return "", false
		}
		parts := make([]string, len(tv))
		for i, s := range tv {
			parts[i] = url.QueryEscape(s)
		}
		return strings.Join(parts, ","), true
	case []byte:
		return url.QueryEscape(string(tv)), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return "", false
		}
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			s, ok := scalar(rv.Index(i).Interface())
			if !ok {
				continue
			}
			parts = append(parts, url.QueryEscape(s))
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, ","), true
	case reflect.Pointer:
		if rv.IsNil() {
			return "", false
		}
		return encodeValue(rv.Elem().Interface())
	}

	s, ok := scalar(v)
	if !ok {
		return "", false
	}
	return url.QueryEscape(s), true
}

func scalar(v any) (string, bool) {
	switch tv := v.(type) {
	case nil:
		return "", false
	case string:
		return tv, true
	case bool:
		return strconv.FormatBool(tv), true
	case int:
		return strconv.Itoa(tv), true
	case int32:
		return strconv.FormatInt(int64(tv), 10), true
	case int64:
		return strconv.FormatInt(tv, 10), true
	case uint:
		return strconv.FormatUint(uint64(tv), 10), true
	case uint64:
		return strconv.FormatUint(tv, 10), true
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), true
	case time.Time:
		return tv.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return tv.String(), true
	}
	return fmt.Sprint(v), true
}

// withQuery appends the encoded filters to path after a '?'.
// The '?' is kept even when there are no filters.
func withQuery(path string, filters Filters) string {
	return path + "?" + EncodeQuery(filters)
}
