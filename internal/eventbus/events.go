package eventbus

// Event types published by the scheduler.
const (
	TaskSubmitted    = "task.submitted"
	TaskAssigned     = "task.assigned"
	TaskUnassigned   = "task.unassigned"
	TaskCompleted    = "task.completed"
	TaskAbandoned    = "task.abandoned"
	TaskEscalated    = "task.escalated"
	WorkersRequested = "workers.requested"
	WorkerIdle       = "worker.idle"
	TickCompleted    = "tick.completed"
)

// TaskEvent is the payload for task.* events.
type TaskEvent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Destination string `json:"destination"`
	Worker      string `json:"worker,omitempty"`
	Priority    int    `json:"priority"`
	Label       string `json:"label,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// DemandEvent is the payload for workers.requested.
type DemandEvent struct {
	Capabilities []string `json:"capabilities"`
	Tasks        int      `json:"tasks"`
}
