package snmp

import (
	"strconv"
	"strings"
)

// HasPrefix reports whether oid lies strictly below root. Comparison is by
// arc, so 1.3.6.1.2.1.2.2.1.10 is not below 1.3.6.1.2.1.2.2.1.1.
func HasPrefix(oid, root string) bool {
	if len(oid) <= len(root)+1 || !strings.HasPrefix(oid, root) {
		return false
	}
	return oid[len(root)] == '.'
}

// Suffix returns the instance part of oid below root, or "" when oid is not below root.
func Suffix(oid, root string) string {
	if !HasPrefix(oid, root) {
		return ""
	}
	return oid[len(root)+1:]
}

// Compare orders two dotted OIDs arc by arc, returning -1, 0 or 1.
// Arcs that are not numbers compare as strings.
func Compare(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		x, errX := strconv.ParseUint(as[i], 10, 64)
		y, errY := strconv.ParseUint(bs[i], 10, 64)
		if errX != nil || errY != nil {
			return strings.Compare(as[i], bs[i])
		}
		if x < y {
			return -1
		}
		return 1
	}

	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	default:
		return 0
	}
}
