package cache

import (
	"strings"
	"testing"
)

func TestKeyString(t *testing.T) {
	base := Key{Path: "/hr/v2/workers", Query: "$top=100&$skip=0", Masked: true}

	t.Run("has namespace prefix", func(t *testing.T) {
		if !strings.HasPrefix(base.String(), keyPrefix) {
			t.Errorf("key = %q, want %q prefix", base.String(), keyPrefix)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		same := Key{Path: "/hr/v2/workers", Query: "$top=100&$skip=0", Masked: true}
		if base.String() != same.String() {
			t.Errorf("identical keys hash differently: %q vs %q", base.String(), same.String())
		}
	})

	tests := []struct {
		name  string
		other Key
	}{
		{
			name:  "different path",
			other: Key{Path: "/hr/v2/workers/123", Query: "$top=100&$skip=0", Masked: true},
		},
		{
			name:  "different query",
			other: Key{Path: "/hr/v2/workers", Query: "$top=100&$skip=100", Masked: true},
		},
		{
			name:  "different masking",
			other: Key{Path: "/hr/v2/workers", Query: "$top=100&$skip=0", Masked: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if base.String() == tt.other.String() {
				t.Errorf("keys collide: %+v and %+v", base, tt.other)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("New(nil, ...) did not panic")
		}
	}()
	New(nil, 0)
}
