package clock_test

import (
	"testing"
	"time"

	"secdigest/internal/pkg/clock"
)

func TestNextRunUTC(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hhmm string
		want time.Time
	}{
		{
			name: "before today's target",
			now:  time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC),
			hhmm: "08:00",
			want: time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "after today's target rolls to tomorrow",
			now:  time.Date(2026, 7, 30, 8, 0, 1, 0, time.UTC),
			hhmm: "08:00",
			want: time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at target returns today",
			now:  time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC),
			hhmm: "08:00",
			want: time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "unparseable time falls back to midnight",
			now:  time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC),
			hhmm: "garbage",
			want: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clock.NextRunUTC(tt.now, tt.hhmm)
			if !got.Equal(tt.want) {
				t.Errorf("NextRunUTC(%v, %q) = %v, want %v", tt.now, tt.hhmm, got, tt.want)
			}
		})
	}
}

func TestParseHHMM(t *testing.T) {
	h, m, err := clock.ParseHHMM("23:59")
	if err != nil || h != 23 || m != 59 {
		t.Errorf("ParseHHMM(23:59) = %d, %d, %v", h, m, err)
	}

	if _, _, err := clock.ParseHHMM("24:00"); err == nil {
		t.Error("expected error for hour 24")
	}
	if _, _, err := clock.ParseHHMM("08:60"); err == nil {
		t.Error("expected error for minute 60")
	}
	if _, _, err := clock.ParseHHMM("0800"); err == nil {
		t.Error("expected error for missing colon")
	}
}
