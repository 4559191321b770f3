package cadence

import "testing"

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		wantKind Kind
		wantN    uint64
		wantErr  bool
	}{
		{"", KindNever, 0, false},
		{"off", KindNever, 0, false},
		{"0", KindNever, 0, false},
		{"50", KindInterval, 50, false},
		{"every:25", KindInterval, 25, false},
		{"every:30s", KindInterval, 30, false},
		{"interval:2m", KindInterval, 120, false},
		{"@every 10s", KindInterval, 10, false},
		{"*/15 * * * * *", KindCron, 0, false},
		{"cron:0 * * * *", KindCron, 0, false},
		{"@hourly", KindCron, 0, false},
		{"banana", KindNever, 0, true},
		{"every:", KindNever, 0, true},
		{"every:100ms", KindNever, 0, true},
		{"cron:", KindNever, 0, true},
		{"61 * * * *", KindNever, 0, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) err = nil, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) err = %v", tc.in, err)
			}
			if got.Kind() != tc.wantKind {
				t.Fatalf("Parse(%q).Kind() = %v, want %v", tc.in, got.Kind(), tc.wantKind)
			}
			if got.Interval() != tc.wantN {
				t.Fatalf("Parse(%q).Interval() = %d, want %d", tc.in, got.Interval(), tc.wantN)
			}
		})
	}
}

func TestDueInterval(t *testing.T) {
	t.Parallel()

	c := Every(5)
	var fired []uint64
	for tick := uint64(0); tick <= 20; tick++ {
		if c.Due(tick) {
			fired = append(fired, tick)
		}
	}
	want := []uint64{5, 10, 15, 20}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired = %v, want %v", fired, want)
		}
	}
	if (Cadence{}).Due(5) {
		t.Fatalf("zero cadence fired")
	}
}

func TestDueCronMatchesTickClock(t *testing.T) {
	t.Parallel()

	c := MustParse("*/15 * * * * *")
	count := 0
	for tick := uint64(1); tick <= 60; tick++ {
		if c.Due(tick) {
			count++
			if tick%15 != 0 {
				t.Fatalf("fired on tick %d", tick)
			}
		}
	}
	if count != 4 {
		t.Fatalf("fired %d times in 60 ticks, want 4", count)
	}

	next, ok := c.Next(16, 100)
	if !ok || next != 30 {
		t.Fatalf("Next(16) = %d, %v, want 30, true", next, ok)
	}
}

func TestHourlyDescriptor(t *testing.T) {
	t.Parallel()

	c := MustParse("@hourly")
	if !c.Due(3600) || c.Due(1800) {
		t.Fatalf("@hourly should fire on tick 3600 only")
	}
}
