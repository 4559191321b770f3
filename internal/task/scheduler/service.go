package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"hivemind/internal/eventbus"
	"hivemind/internal/metrics"
	"hivemind/internal/task"
	"hivemind/internal/task/cadence"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus
	met *metrics.Metrics

	escalate cadence.Cadence

	reg     *task.Registry
	gate    Gate
	router  Router
	prov    Provisioner
	sources []WorkSource
	metric  world.Metric

	// Live set in admission (Seq) order.
	tasks []*task.Instance
	byID  map[string]*task.Instance

	seq  uint64
	tick uint64

	circuits circuitStore
	history  []TickReport

	idleLog *logx.Throttle
	capLog  *logx.Throttle
}

func New(cfg Config, reg *task.Registry, deps Deps, log logx.Logger) *Service {
	if reg == nil {
		reg = task.NewRegistry()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log.With(logx.String("comp", "scheduler")),
		bus:     deps.Bus,
		met:     deps.Metrics,
		reg:     reg,
		gate:    deps.Gate,
		router:  deps.Router,
		prov:    deps.Provisioner,
		sources: append([]WorkSource(nil), deps.Sources...),
		metric:  deps.Metric,
		byID:    make(map[string]*task.Instance),
	}
	if s.gate == nil {
		s.gate = unlimitedGate{}
	}
	if s.router == nil {
		s.router = stationaryRouter{}
	}
	if s.metric == nil {
		s.metric = world.Chebyshev
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps the configuration. Safe between ticks.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	esc, err := cadence.Parse(cfg.EscalateEvery)
	if err != nil {
		s.log.Warn("scheduler.bad_escalate_cadence", logx.String("value", cfg.EscalateEvery), logx.Err(err))
		esc = cadence.Every(50)
	}
	s.cfg = cfg
	s.escalate = esc
	s.idleLog = &logx.Throttle{Every: cfg.IdleLogEvery}
	s.capLog = &logx.Throttle{Every: cfg.IdleLogEvery}
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// AddSource appends an idle-work source. Registration order is offer order.
func (s *Service) AddSource(src WorkSource) {
	if src == nil {
		return
	}
	s.mu.Lock()
	s.sources = append(s.sources, src)
	s.mu.Unlock()
}

func (s *Service) Registry() *task.Registry { return s.reg }

// CreateTask instantiates a registered template without submitting it.
func (s *Service) CreateTask(name string, dest world.ID, ov task.Overrides) (*task.Instance, bool) {
	return s.reg.Create(name, dest, ov)
}

// Submit admits t into the live set. It is refused when t has no
// destination, is already live, or duplicates a live (name, destination)
// pair beyond the destination's capacity.
func (s *Service) Submit(t *task.Instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admit(t, s.tick) == nil
}

// SubmitBatch admits each task in order and returns the accepted ones.
func (s *Service) SubmitBatch(ts []*task.Instance) []*task.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Instance, 0, len(ts))
	for _, t := range ts {
		if s.admit(t, s.tick) == nil {
			out = append(out, t)
		}
	}
	return out
}

// Enqueue creates and submits in one step, reporting why a refusal happened.
func (s *Service) Enqueue(name string, dest world.ID, ov task.Overrides) (*task.Instance, error) {
	t, ok := s.reg.Create(name, dest, ov)
	if !ok {
		return nil, fmt.Errorf("%w: %q", task.ErrUnknownTemplate, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.admit(t, s.tick); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) admit(t *task.Instance, tick uint64) error {
	if t == nil || t.Template == nil {
		return task.ErrUnknownTemplate
	}
	if t.Destination.IsNone() {
		return task.ErrNoDestination
	}
	if t.ID != "" {
		if _, ok := s.byID[t.ID]; ok {
			return task.ErrDuplicate
		}
	}
	if n := s.liveCount(t.Key()); n > 0 {
		limit, limited := s.gate.Capacity(t.Destination)
		if !limited {
			return task.ErrDuplicate
		}
		if n >= limit || s.gate.IsFull(t.Destination) {
			return task.ErrCapacityExhausted
		}
	}

	s.seq++
	t.Seq = s.seq
	if t.ID == "" {
		t.ID = fmt.Sprintf("tsk-%d-%d", tick, t.Seq)
	}
	t.CreatedTick = tick
	t.Worker = world.None
	t.Reserved = false
	t.InRange = false
	t.State = task.PendingState(t.Template)

	s.tasks = append(s.tasks, t)
	s.byID[t.ID] = t

	s.log.Debug("task.submitted", logx.String("task", t.ID), logx.String("name", t.Name()),
		logx.String("dest", string(t.Destination)), logx.Int("priority", t.Priority))
	s.publish(eventbus.TaskSubmitted, tick, t, "")
	return nil
}

func (s *Service) liveCount(key string) int {
	n := 0
	for _, t := range s.tasks {
		if !t.State.Terminal() && t.Key() == key {
			n++
		}
	}
	return n
}

// Tasks returns copies of the live set in admission order.
func (s *Service) Tasks() []*task.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Instance, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Task looks up one live instance by ID.
func (s *Service) Task(id string) (*task.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Owner returns the task that holds worker w.
func (s *Service) Owner(w world.ID) (*task.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Worker == w && !w.IsNone() {
			return t.Clone(), true
		}
	}
	return nil, false
}

// Records is the durable form of the live set, in admission order.
func (s *Service) Records() []task.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsLocked()
}

func (s *Service) recordsLocked() []task.Record {
	out := make([]task.Record, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Record())
	}
	return out
}

// Restore replaces the live set with recs. Records of unknown templates,
// finished tasks or repeated IDs are skipped. Capacity reservations held by restored tasks are
// re-taken from the gate; a task whose slot cannot be re-taken goes back to
// pending. It returns the number of restored tasks.
func (s *Service) Restore(tick uint64, recs []task.Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.Reserved {
			s.gate.Release(t.Worker)
		}
	}
	s.tasks = s.tasks[:0]
	s.byID = make(map[string]*task.Instance, len(recs))
	s.circuits = circuitStore{}

	sorted := append([]task.Record(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	owned := make(map[world.ID]bool)
	var maxSeq uint64
	for _, rec := range sorted {
		t, err := s.reg.FromRecord(rec)
		if err != nil {
			s.log.Warn("scheduler.restore_skip", logx.String("task", rec.ID), logx.Err(err))
			continue
		}
		if t.State.Terminal() {
			s.log.Warn("scheduler.restore_skip", logx.String("task", rec.ID), logx.String("reason", "terminal"))
			continue
		}
		if _, dup := s.byID[t.ID]; dup {
			s.log.Warn("scheduler.restore_skip", logx.String("task", rec.ID), logx.String("reason", "duplicate id"))
			continue
		}
		if t.Assigned() {
			switch {
			case owned[t.Worker]:
				s.demote(t)
			case t.Reserved && !s.gate.Reserve(t.Destination, t.Worker):
				t.Reserved = false
				s.demote(t)
			}
			if t.Assigned() {
				owned[t.Worker] = true
			}
		}
		maxSeq = max(maxSeq, t.Seq)
		s.tasks = append(s.tasks, t)
		s.byID[t.ID] = t
	}
	if maxSeq > s.seq {
		s.seq = maxSeq
	}
	if tick > s.tick {
		s.tick = tick
	}
	s.log.Info("scheduler.restored", logx.Int("tasks", len(s.tasks)), logx.Int("records", len(recs)), logx.Tick(tick))
	return len(s.tasks)
}

func (s *Service) demote(t *task.Instance) {
	t.Worker = world.None
	t.Reserved = false
	t.InRange = false
	t.State = task.PendingState(t.Template)
}

// Snapshot returns a diagnostic copy of the service state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, open := s.circuits.counts(s.tick)
	return Snapshot{
		Tick:          s.tick,
		Config:        s.cfg,
		Tasks:         s.recordsLocked(),
		History:       append([]TickReport(nil), s.history...),
		CircuitsTotal: total,
		CircuitsOpen:  open,
	}
}

func (s *Service) recordHistory(r TickReport) {
	s.history = append(s.history, r)
	if n := s.cfg.HistorySize; len(s.history) > n {
		s.history = s.history[len(s.history)-n:]
	}
}

// sortedLocked orders by priority descending, then admission order.
func (s *Service) sortedLocked() []*task.Instance {
	out := append([]*task.Instance(nil), s.tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (s *Service) publish(typ string, tick uint64, t *task.Instance, reason task.Reason) {
	if s.bus == nil || t == nil {
		return
	}
	ev := eventbus.TaskEvent{
		ID:          t.ID,
		Name:        t.Name(),
		Destination: string(t.Destination),
		Worker:      string(t.Worker),
		Priority:    t.Priority,
		Reason:      string(reason),
	}
	if typ == eventbus.TaskAssigned && t.Template != nil {
		ev.Label = t.Template.Label()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Tick: tick, Data: ev})
}
