package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "hivemind/pkg/logx"
)

// Outside systemd NOTIFY_SOCKET is unset and every call here is a no-op.

func notifyReady(log logx.Logger) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("app.sd_notify_failed", logx.String("state", "ready"), logx.Err(err))
	} else if ok {
		log.Debug("app.sd_notified", logx.String("state", "ready"))
	}
}

func notifyStopping(log logx.Logger, reason StopReason) {
	state := daemon.SdNotifyStopping + "\nSTATUS=" + string(reason)
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Warn("app.sd_notify_failed", logx.String("state", "stopping"), logx.Err(err))
	}
}

// watchdogInterval returns how often to ping the systemd watchdog, or 0.
func watchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// watchdog pings systemd while the tick loop is healthy. A stalled loop stops
// the pings so systemd restarts the unit.
func (a *App) watchdog(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if err := a.health(); err != nil {
			a.log.Warn("app.watchdog_skipped", logx.Err(err))
			continue
		}
		status := fmt.Sprintf("%s\nSTATUS=tick %d", daemon.SdNotifyWatchdog, a.lastTick.Load())
		if _, err := daemon.SdNotify(false, status); err != nil {
			a.log.Warn("app.sd_notify_failed", logx.String("state", "watchdog"), logx.Err(err))
		}
	}
}
