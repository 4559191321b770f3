package sim

import (
	"errors"
	"fmt"

	"hivemind/internal/task/cadence"
)

// Config describes the demo world. It must stay comparable: the config layer
// diffs it with ==.
type Config struct {
	Seed         int64 `json:"seed"`
	Width        int   `json:"width"`
	Height       int   `json:"height"`
	WallPermille int   `json:"wall_permille"`

	Sources    int `json:"sources"`
	Sites      int `json:"sites"`
	Structures int `json:"structures"`
	Workers    int `json:"workers"`

	WorkerTTL     int `json:"worker_ttl"`
	SourceEnergy  int `json:"source_energy"`
	SourceRegen   int `json:"source_regen"`
	SpawnEnergy   int `json:"spawn_energy"`
	SpawnCapacity int `json:"spawn_capacity"`

	// RaidEvery and SiteEvery are cadence strings; "off" disables them.
	RaidEvery string `json:"raid_every"`
	SiteEvery string `json:"site_every"`

	// TickInterval is the wall-clock length of one tick (Go duration).
	TickInterval string `json:"tick_interval"`
	// MaxTicks stops the host after this many ticks; 0 runs forever.
	MaxTicks uint64 `json:"max_ticks"`

	// RecycleBelow sends workers with fewer ticks to live back to a spawn.
	RecycleBelow int `json:"recycle_below"`
	// ZoneSlots caps the standing positions around sources and the controller.
	ZoneSlots int `json:"zone_slots"`
}

func (c Config) withDefaults() Config {
	if c.Width == 0 {
		c.Width = 32
	}
	if c.Height == 0 {
		c.Height = 24
	}
	if c.Sources == 0 {
		c.Sources = 2
	}
	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.WorkerTTL == 0 {
		c.WorkerTTL = 1500
	}
	if c.SourceEnergy == 0 {
		c.SourceEnergy = 3000
	}
	if c.SourceRegen == 0 {
		c.SourceRegen = 10
	}
	if c.SpawnEnergy == 0 {
		c.SpawnEnergy = 300
	}
	if c.SpawnCapacity == 0 {
		c.SpawnCapacity = 550
	}
	if c.RaidEvery == "" {
		c.RaidEvery = "300"
	}
	if c.SiteEvery == "" {
		c.SiteEvery = "200"
	}
	if c.RecycleBelow == 0 {
		c.RecycleBelow = 50
	}
	if c.ZoneSlots == 0 {
		c.ZoneSlots = 3
	}
	return c
}

// Validate reports every problem with c after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	var errs []error
	if c.Width < 8 || c.Width > 256 || c.Height < 8 || c.Height > 256 {
		errs = append(errs, fmt.Errorf("grid %dx%d out of range 8..256", c.Width, c.Height))
	}
	if c.WallPermille < 0 || c.WallPermille > 400 {
		errs = append(errs, fmt.Errorf("wall_permille %d out of range 0..400", c.WallPermille))
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"sources", c.Sources}, {"sites", c.Sites}, {"structures", c.Structures}, {"workers", c.Workers},
		{"worker_ttl", c.WorkerTTL}, {"source_energy", c.SourceEnergy}, {"source_regen", c.SourceRegen},
		{"spawn_energy", c.SpawnEnergy}, {"recycle_below", c.RecycleBelow}, {"zone_slots", c.ZoneSlots},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", f.name))
		}
	}
	if c.SpawnCapacity < c.SpawnEnergy {
		errs = append(errs, fmt.Errorf("spawn_capacity %d below spawn_energy %d", c.SpawnCapacity, c.SpawnEnergy))
	}
	if c.ZoneSlots > 8 {
		errs = append(errs, fmt.Errorf("zone_slots %d above 8", c.ZoneSlots))
	}
	if _, err := cadence.Parse(c.RaidEvery); err != nil {
		errs = append(errs, fmt.Errorf("raid_every: %w", err))
	}
	if _, err := cadence.Parse(c.SiteEvery); err != nil {
		errs = append(errs, fmt.Errorf("site_every: %w", err))
	}
	return errors.Join(errs...)
}
