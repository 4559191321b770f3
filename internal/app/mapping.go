package app

import (
	"fmt"
	"net"
	"strings"
	"time"

	"hivemind/internal/config"
	"hivemind/internal/observability/debugsrv"
	"hivemind/internal/storage"
	"hivemind/internal/task/cadence"
	logx "hivemind/pkg/logx"
)

func mapLogging(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, true, nil
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// persistCadence reads storage.persist_every. Empty means every tick; "off"
// saves only on shutdown.
func persistCadence(cfg *config.Config) (cadence.Cadence, error) {
	if cfg.Storage == nil || strings.TrimSpace(cfg.Storage.PersistEvery) == "" {
		return cadence.Every(1), nil
	}
	return config.ParseCadenceField("storage.persist_every", cfg.Storage.PersistEvery)
}

// mapDebugConfig validates and converts the JSON config into the server
// config. It never starts the server.
func mapDebugConfig(dc config.DebugConfig) (debugsrv.Config, error) {
	out := debugsrv.Config{
		Enabled:       dc.Enabled,
		AllowInsecure: dc.AllowInsecure,
		Token:         strings.TrimSpace(dc.Token),
		Addr:          strings.TrimSpace(dc.Addr),
		Prefix:        strings.TrimSpace(dc.Prefix),
	}
	if out.Addr == "" {
		out.Addr = "127.0.0.1:6060"
	}
	if out.Prefix == "" {
		out.Prefix = "/debug/pprof/"
	}

	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("debug.read_timeout", dc.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	// 0 keeps /profile usable.
	if out.WriteTimeout, err = config.ParseDurationField("debug.write_timeout", dc.WriteTimeout); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("debug.idle_timeout", dc.IdleTimeout, 120*time.Second); err != nil {
		return out, err
	}

	if dc.MutexProfileFraction < 0 {
		return out, fmt.Errorf("debug.mutex_profile_fraction must be >= 0")
	}
	if dc.BlockProfileRate < 0 {
		return out, fmt.Errorf("debug.block_profile_rate must be >= 0")
	}
	out.MutexProfileFraction = dc.MutexProfileFraction
	out.BlockProfileRate = dc.BlockProfileRate

	if out.Enabled {
		host, _, err := net.SplitHostPort(out.Addr)
		if err != nil {
			return out, fmt.Errorf("debug.addr: invalid %q (expected host:port): %w", out.Addr, err)
		}
		if !out.AllowInsecure && out.Token == "" && !loopbackHost(host) {
			return out, fmt.Errorf("debug: binding to non-loopback addr requires token or allow_insecure=true")
		}
	}
	return out, nil
}

func loopbackHost(h string) bool {
	h = strings.TrimSpace(h)
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
