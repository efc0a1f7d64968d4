package snmp_test

import (
	"testing"

	"beacon/internal/snmp"
)

func TestHasPrefix(t *testing.T) {
	tests := []struct {
		oid, root string
		want      bool
	}{
		{"1.3.6.1.2.1.2.2.1.10.1", "1.3.6.1.2.1.2.2.1.10", true},
		{"1.3.6.1.2.1.2.2.1.10.1", "1.3.6.1.2.1.2.2.1.1", false},
		{"1.3.6.1.2.1.2.2.1.10", "1.3.6.1.2.1.2.2.1.10", false},
		{"1.3.6.1.2.1.2.2.1.11.1", "1.3.6.1.2.1.2.2.1.10", false},
	}

	for _, tt := range tests {
		if got := snmp.HasPrefix(tt.oid, tt.root); got != tt.want {
			t.Errorf("HasPrefix(%q, %q) = %v, want %v", tt.oid, tt.root, got, tt.want)
		}
	}
}

func TestSuffix(t *testing.T) {
	if got := snmp.Suffix("1.3.6.1.2.1.4.22.1.2.5.10.0.0.1", "1.3.6.1.2.1.4.22.1.2"); got != "5.10.0.0.1" {
		t.Errorf("Suffix() = %q", got)
	}
	if got := snmp.Suffix("1.3.6.1.2.1.1.5.0", "1.3.6.1.2.1.1.1"); got != "" {
		t.Errorf("Suffix() outside root = %q", got)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.3.6.1.2", "1.3.6.1.10", -1},
		{"1.3.6.1.10", "1.3.6.1.2", 1},
		{"1.3.6", "1.3.6.1", -1},
		{"1.3.6.1", "1.3.6.1", 0},
	}

	for _, tt := range tests {
		if got := snmp.Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
