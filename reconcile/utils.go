package reconcile

import (
	"sort"
	"strconv"
	"strings"
)

// ToBoolean accepts a bool, a string or a single element list of either.
func ToBoolean(intf any) (result bool, ok bool) {
	if intf == nil {
		return
	}
	var supportedValue any
	switch fv := intf.(type) {
	case bool, string:
		supportedValue = fv
	case []any:
		if len(fv) > 0 {
			switch fv[0].(type) {
			case bool, string:
				supportedValue = fv[0]
			}
		}
	}
	if supportedValue != nil {
		switch fv := supportedValue.(type) {
		case bool:
			result = fv
			ok = true
		case string:
			switch strings.ToLower(strings.TrimSpace(fv)) {
			case "1", "true", "ok", "yes":
				result = true
				ok = true
			case "0", "false", "no", "":
				result = false
				ok = true
			}
		}
	}
	return
}

// isTruthy reports whether a stored attribute value counts as enabled. Values that do not
// parse as a boolean are truthy when non-empty.
func isTruthy(value any) bool {
	if b, ok := ToBoolean(value); ok {
		return b
	}
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return len(v) > 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return true
}

func ToString(intf any) (result string, ok bool) {
	if intf == nil {
		return
	}
	result, ok = intf.(string)
	return
}

func ToInt64(intf any) (result int64, ok bool) {
	if intf == nil {
		return
	}
	ok = true
	switch iv := intf.(type) {
	case int:
		result = int64(iv)
	case int32:
		result = int64(iv)
	case int64:
		result = iv
	case uint32:
		result = int64(iv)
	case uint64:
		result = int64(iv)
	case float32:
		result = int64(iv)
	case float64:
		result = int64(iv)
	case string:
		if irv, err := strconv.ParseInt(iv, 10, 64); err == nil {
			result = irv
		} else {
			ok = false
		}
	default:
		ok = false
	}
	return
}

type Set[K comparable] map[K]struct{}

func NewSet[K comparable]() Set[K] {
	return make(Set[K])
}
func MakeSet[K comparable](keys []K) Set[K] {
	var ns = NewSet[K]()
	for _, k := range keys {
		ns.Add(k)
	}
	return ns
}
func (s Set[K]) Has(key K) (ok bool) {
	_, ok = s[key]
	return
}
func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}
func (s Set[K]) Delete(key K) {
	delete(s, key)
}
func (s Set[K]) ToArray() (result []K) {
	for k := range s {
		result = append(result, k)
	}
	return
}
func (s Set[K]) Copy() Set[K] {
	var ns = NewSet[K]()
	for k := range s {
		ns.Add(k)
	}
	return ns
}

// Intersects reports whether s and other share at least one key.
func (s Set[K]) Intersects(other Set[K]) bool {
	var small, large = s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for k := range small {
		if large.Has(k) {
			return true
		}
	}
	return false
}

// Difference returns the keys of s that are not in other.
func (s Set[K]) Difference(other Set[K]) Set[K] {
	var ns = NewSet[K]()
	for k := range s {
		if !other.Has(k) {
			ns.Add(k)
		}
	}
	return ns
}

// Sorted returns the keys of a string set in ascending order.
func Sorted(s Set[string]) []string {
	var result = s.ToArray()
	sort.Strings(result)
	return result
}
