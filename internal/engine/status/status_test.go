package status

import (
	"testing"

	"colabora/internal/domain"
)

func ptr(v int64) *int64 { return &v }

func TestRecompute(t *testing.T) {
	tests := []struct {
		name      string
		target    *int64
		reserved  int64
		fulfilled int64
		want      string
	}{
		{name: "all zero no target", target: nil, want: domain.RequestOpen},
		{name: "all zero with target", target: ptr(10), want: domain.RequestOpen},
		{name: "zero target completes immediately", target: ptr(0), want: domain.RequestCompleted},
		{name: "reserved only", target: ptr(10), reserved: 5, want: domain.RequestReserved},
		{name: "fulfilled below target", target: ptr(10), fulfilled: 5, want: domain.RequestReserved},
		{name: "fulfilled at target", target: ptr(10), fulfilled: 10, want: domain.RequestCompleted},
		{name: "fulfilled over target", target: ptr(10), fulfilled: 12, want: domain.RequestCompleted},
		{name: "fulfilled without target never completes", target: nil, fulfilled: 100, want: domain.RequestReserved},
		{name: "reserved and fulfilled mixed", target: ptr(10), reserved: 3, fulfilled: 4, want: domain.RequestReserved},
		{name: "completed even with leftover reserved", target: ptr(10), reserved: 2, fulfilled: 10, want: domain.RequestCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recompute(tt.target, tt.reserved, tt.fulfilled)
			if got != tt.want {
				t.Fatalf("Recompute(%v,%d,%d) = %s, want %s", tt.target, tt.reserved, tt.fulfilled, got, tt.want)
			}
			// pure: repeated calls agree
			if again := Recompute(tt.target, tt.reserved, tt.fulfilled); again != got {
				t.Fatalf("not idempotent: %s then %s", got, again)
			}
		})
	}
}
