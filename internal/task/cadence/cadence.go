// Package cadence evaluates low-frequency schedules against the tick counter.
//
// Ticks are mapped onto a synthetic clock (one tick per TickLength from the
// Unix epoch, UTC) so ordinary cron expressions can describe tick cadences.
package cadence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TickLength is the synthetic duration of one tick.
const TickLength = time.Second

var epoch = time.Unix(0, 0).UTC()

// Clock maps a tick onto the synthetic clock.
func Clock(tick uint64) time.Time { return epoch.Add(time.Duration(tick) * TickLength) }

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Kind int

const (
	KindNever Kind = iota
	KindInterval
	KindCron
)

// Cadence says on which ticks a periodic action runs.
// The zero value is never due.
type Cadence struct {
	kind  Kind
	every uint64
	sched cron.Schedule
	src   string
}

// Every returns an interval cadence; n == 0 is never due.
func Every(n uint64) Cadence {
	if n == 0 {
		return Cadence{}
	}
	return Cadence{kind: KindInterval, every: n, src: strconv.FormatUint(n, 10)}
}

// Parse accepts:
//   - "" / "0" / "off" / "never": never due
//   - "50", "every:50", "every:50s": every 50 ticks
//   - "@every 50s": every 50 ticks (robfig descriptor)
//   - "cron:<expr>" or any cron expression with spaces, seconds optional
func Parse(raw string) (Cadence, error) {
	s := strings.TrimSpace(raw)
	low := strings.ToLower(s)
	switch low {
	case "", "0", "off", "never":
		return Cadence{}, nil
	}

	if strings.HasPrefix(low, "every:") || strings.HasPrefix(low, "interval:") {
		v := strings.TrimSpace(s[strings.IndexByte(s, ':')+1:])
		n, err := parseTicks(v)
		if err != nil {
			return Cadence{}, err
		}
		c := Every(n)
		c.src = s
		return c, nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Every(n), nil
	}

	expr := s
	if strings.HasPrefix(low, "cron:") {
		expr = strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Cadence{}, fmt.Errorf("cron expression required after 'cron:'")
		}
	} else if !strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, "@") {
		return Cadence{}, fmt.Errorf("invalid cadence %q (use a tick count like '50', 'every:50s' or a cron expression)", raw)
	}
	if !strings.HasPrefix(expr, "TZ=") && !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "@every") {
		expr = "CRON_TZ=UTC " + expr
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return Cadence{}, fmt.Errorf("invalid cadence %q: %w", raw, err)
	}
	if cd, ok := sched.(cron.ConstantDelaySchedule); ok {
		n := uint64(cd.Delay / TickLength)
		if n == 0 {
			n = 1
		}
		c := Every(n)
		c.src = s
		return c, nil
	}
	return Cadence{kind: KindCron, sched: sched, src: s}, nil
}

// MustParse panics on error. For constants in code and tests.
func MustParse(raw string) Cadence {
	c, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func parseTicks(v string) (uint64, error) {
	if v == "" {
		return 0, fmt.Errorf("interval required")
	}
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use a tick count or a duration like '30s')", v)
	}
	if d < TickLength {
		return 0, fmt.Errorf("interval %q shorter than one tick", v)
	}
	return uint64(d / TickLength), nil
}

func (c Cadence) Kind() Kind { return c.kind }

// Interval returns the tick period for interval cadences, 0 otherwise.
func (c Cadence) Interval() uint64 {
	if c.kind != KindInterval {
		return 0
	}
	return c.every
}

// Due reports whether the cadence fires on tick. Tick 0 never fires.
func (c Cadence) Due(tick uint64) bool {
	if tick == 0 {
		return false
	}
	switch c.kind {
	case KindInterval:
		return tick%c.every == 0
	case KindCron:
		next := c.sched.Next(Clock(tick - 1))
		return !next.After(Clock(tick))
	default:
		return false
	}
}

// Next returns the first tick after `after` on which the cadence fires, or
// false if it never does within horizon ticks.
func (c Cadence) Next(after, horizon uint64) (uint64, bool) {
	switch c.kind {
	case KindInterval:
		return (after/c.every + 1) * c.every, true
	case KindCron:
		t := c.sched.Next(Clock(after))
		if t.IsZero() {
			return 0, false
		}
		n := uint64(t.Sub(epoch) / TickLength)
		if n-after > horizon {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func (c Cadence) String() string {
	if c.kind == KindNever {
		return "never"
	}
	return c.src
}
