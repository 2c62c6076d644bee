// SPDX-License-Identifier: GPL-3.0-or-later

package meter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tag is a single key/value label pair.
type Tag struct {
	Key   string
	Value string
}

// TagSet is a canonical, key-sorted sequence of tag pairs. It identifies one
// aggregation series under an instrument: two measurements resolving to equal
// sets belong to the same series.
type TagSet []Tag

// Len returns the number of pairs in the set.
func (s TagSet) Len() int { return len(s) }

// Get returns the value for key and whether the key is present.
func (s TagSet) Get(key string) (string, bool) {
	for _, t := range s {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Map returns the set as a freshly allocated map. The map is never nil.
func (s TagSet) Map() map[string]string {
	m := make(map[string]string, len(s))
	for _, t := range s {
		m[t.Key] = t.Value
	}
	return m
}

// canonicalTags sorts the input by key and packs it into an identity string
// usable as an aggregation map key. Keys are assumed validated.
func canonicalTags(input map[string]string) (TagSet, string) {
	if len(input) == 0 {
		return nil, ""
	}

	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	set := make(TagSet, 0, len(keys))
	var b strings.Builder
	for _, k := range keys {
		v := input[k]
		set = append(set, Tag{Key: k, Value: v})
		b.WriteString(k)
		b.WriteByte('\xff')
		b.WriteString(v)
		b.WriteByte('\xff')
	}
	return set, b.String()
}

func validateTagKeys(tags map[string]string) error {
	for k := range tags {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidTagValue)
		}
	}
	return nil
}

// mergeTags merges src into dst, right-biased: src entries override dst
// entries sharing a key.
func mergeTags(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

func cloneTags(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	mergeTags(dst, src)
	return dst
}

// TagValue renders an arbitrary value as tag text. It accepts strings,
// booleans, integer and float kinds, and fmt.Stringer implementations;
// anything else fails with ErrInvalidTagValue.
func TagValue(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: no text rendering for %T", ErrInvalidTagValue, v)
	}
}
