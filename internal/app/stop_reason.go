package app

// StopReason explains why the host shut down. It is logged and sent to
// systemd as the STATUS line.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopMaxTicks   StopReason = "max_ticks"
	StopFatalError StopReason = "fatal_error"
)
