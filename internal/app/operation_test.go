package app

import (
	"testing"
	"time"
)

func TestOperation_ID(t *testing.T) {
	started := time.Date(2024, 1, 15, 17, 30, 0, 0, time.FixedZone("WIB", 7*3600))

	tests := []struct {
		name string
		op   string
		want string
	}{
		{name: "named", op: "sync", want: "20240115T103000Z-sync"},
		{name: "unnamed", op: "", want: "20240115T103000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewOperation(tt.op, started).ID(); got != tt.want {
				t.Errorf("ID() = %q, want %q", got, tt.want)
			}
		})
	}
}
