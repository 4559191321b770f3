package scheduler

import (
	"context"
	"time"

	"hivemind/internal/eventbus"
	"hivemind/internal/task"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

// Tick runs one scheduling pass over snap. It never returns an error: every
// fault is contained to the task that raised it. A cancelled ctx skips the
// pass entirely.
func (s *Service) Tick(ctx context.Context, snap world.Snapshot) TickReport {
	start := time.Now()
	if ctx.Err() != nil || snap == nil {
		return TickReport{Skipped: true}
	}

	s.mu.Lock()
	if t := snap.Tick(); t > s.tick {
		s.tick = t
	}
	p := newPass(snap, s.tasks)

	s.sweep(p)
	p.sorted = s.sortedLocked()

	s.matchQueued(p)
	s.handleTriggered(p)
	s.escalateStarved(p)
	s.offerIdle(p)
	s.advanceAll(p)
	s.sweep(p)
	s.collect()

	demand := s.demand(p)
	p.rep.Live = len(s.tasks)
	p.rep.Duration = time.Since(start)
	s.recordHistory(p.rep)
	s.observe(p)
	prov := s.prov
	s.mu.Unlock()

	if demand != nil && prov != nil {
		s.requestWorkers(prov, *demand)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TickCompleted, Tick: p.tick, Data: p.rep})
	}
	if p.rep.Assigned+p.rep.Completed+p.rep.Abandoned+p.rep.Unassigned > 0 {
		s.log.Debug("scheduler.tick", logx.Tick(p.tick),
			logx.Int("assigned", p.rep.Assigned), logx.Int("completed", p.rep.Completed),
			logx.Int("abandoned", p.rep.Abandoned), logx.Int("unassigned", p.rep.Unassigned),
			logx.Int("unmet", p.rep.Unmet), logx.Int("live", p.rep.Live),
			logx.Duration("dur", p.rep.Duration))
	}
	return p.rep
}

// sweep abandons tasks whose handles no longer resolve and drops tasks with
// no destination at all.
func (s *Service) sweep(p *pass) {
	for _, t := range s.tasks {
		if t.State.Terminal() {
			continue
		}
		if t.Destination.IsNone() {
			s.abandon(p, t, task.ReasonInvalidDestination)
			continue
		}
		if _, ok := p.snap.Entity(t.Destination); !ok {
			s.abandon(p, t, task.ReasonStaleReference)
			continue
		}
		if t.Assigned() {
			if _, ok := p.snap.Worker(t.Worker); !ok {
				s.abandon(p, t, task.ReasonStaleReference)
			}
		}
	}
}

// collect drops terminal instances from the live set along with their
// log throttling state.
func (s *Service) collect() {
	kept := s.tasks[:0]
	var gone []string
	for _, t := range s.tasks {
		if t.State.Terminal() {
			delete(s.byID, t.ID)
			gone = append(gone, t.Key())
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = kept
	for _, key := range gone {
		if s.liveCount(key) == 0 {
			s.capLog.Forget(key)
		}
	}
}

// withdraw removes a never-assigned task from the live set.
func (s *Service) withdraw(t *task.Instance) {
	delete(s.byID, t.ID)
	for i, live := range s.tasks {
		if live == t {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
}

func (s *Service) matchQueued(p *pass) {
	for _, t := range p.sorted {
		if t.Template.Triggered() || t.State != task.StateQueued {
			continue
		}
		s.match(p, t, 0)
	}
}

// match tries to bind the nearest capable idle worker to a queued task. When
// capable workers exist but none can execute, the best one's prerequisites
// are submitted instead.
func (s *Service) match(p *pass, t *task.Instance, depth int) bool {
	dest, ok := p.snap.Entity(t.Destination)
	if !ok {
		return false
	}
	if s.circuitOpen(t.Key(), p.tick) {
		return false
	}
	if s.gate.IsFull(t.Destination) {
		s.capacityBlocked(p, t)
		return false
	}

	cands := s.eligible(p, t, dest)
	if len(cands) == 0 {
		p.addUnmet(t)
		return false
	}
	for _, w := range cands {
		if s.canExecute(p, t, w, dest) {
			return s.assign(p, t, w, dest)
		}
	}

	for _, req := range s.prerequisites(p, t, cands[0], dest) {
		pre, ok := s.reg.Create(req.Name, req.Destination, req.Overrides)
		if !ok {
			s.log.Warn("scheduler.unknown_prerequisite", logx.String("task", t.ID), logx.String("name", req.Name))
			continue
		}
		if err := s.admit(pre, p.tick); err != nil {
			continue
		}
		p.rep.Prerequisites++
		s.log.Debug("task.prerequisite", logx.String("task", t.ID), logx.String("pre", pre.ID),
			logx.String("name", pre.Name()), logx.String("worker", string(cands[0].ID)))
		if s.cfg.RecursePrerequisites && depth < s.cfg.MaxPrerequisiteDepth && pre.State == task.StateQueued {
			s.match(p, pre, depth+1)
		}
	}
	return false
}

// eligible lists idle workers passing the capability gate, nearest first.
func (s *Service) eligible(p *pass, t *task.Instance, dest world.Entity) []world.Worker {
	var out []world.Worker
	for _, w := range p.workers {
		if p.idle(w.ID) && t.Template.Eligible(w) {
			out = append(out, w)
		}
	}
	byDistance(s.metric, out, dest.Pos)
	return out
}

func (s *Service) handleTriggered(p *pass) {
	for _, t := range p.sorted {
		if !t.Template.Triggered() || t.State.Terminal() {
			continue
		}
		dest, ok := p.snap.Entity(t.Destination)
		if !ok {
			continue
		}
		active := s.triggerCondition(p, t, dest)

		if t.Assigned() {
			if !active {
				s.unassign(p, t, task.ReasonTriggerCleared)
			}
			continue
		}
		if !active {
			continue
		}
		if s.circuitOpen(t.Key(), p.tick) {
			continue
		}
		if s.gate.IsFull(t.Destination) {
			s.capacityBlocked(p, t)
			continue
		}

		cands := s.triggerCandidates(p, t, dest)
		if len(cands) == 0 {
			p.addUnmet(t)
			continue
		}
		for _, w := range cands {
			if !s.canExecute(p, t, w, dest) {
				continue
			}
			if victim, owned := p.owner[w.ID]; owned {
				s.unassign(p, victim, task.ReasonPreempted)
				p.rep.Preempted++
			}
			s.assign(p, t, w, dest)
			break
		}
	}
}

// triggerCandidates are idle capable workers plus, unless disabled, capable
// workers on queued tasks that were not bound earlier in this pass.
func (s *Service) triggerCandidates(p *pass, t *task.Instance, dest world.Entity) []world.Worker {
	var out []world.Worker
	for _, w := range p.workers {
		if !t.Template.Eligible(w) || p.claimed[w.ID] {
			continue
		}
		if owner, owned := p.owner[w.ID]; owned && (s.cfg.NoPreempt || owner.Template.Triggered()) {
			continue
		}
		out = append(out, w)
	}
	byDistance(s.metric, out, dest.Pos)
	return out
}

// escalateStarved bumps the lowest-priority queued task by one on the
// escalation cadence. Ties go to the oldest task.
func (s *Service) escalateStarved(p *pass) {
	if !s.escalate.Due(p.tick) {
		return
	}
	var low *task.Instance
	for _, t := range s.tasks {
		if t.State != task.StateQueued || t.Template.Triggered() {
			continue
		}
		if low == nil || t.Priority < low.Priority || (t.Priority == low.Priority && t.Seq < low.Seq) {
			low = t
		}
	}
	if low == nil {
		return
	}
	low.Priority++
	p.rep.Escalated++
	s.met.IncEscalations()
	s.log.Debug("task.escalated", logx.String("task", low.ID), logx.Int("priority", low.Priority), logx.Tick(p.tick))
	s.publish(eventbus.TaskEscalated, p.tick, low, "")
}

// offerIdle hands each still-idle worker to the work sources in order.
func (s *Service) offerIdle(p *pass) {
	s.idleLog.Retain(func(key string) bool {
		_, ok := p.snap.Worker(world.ID(key))
		return ok
	})
	b := &passBinder{s: s, p: p}
	for _, w := range p.idleWorkers() {
		if !p.idle(w.ID) {
			continue
		}
		taken := false
		for i, src := range s.sources {
			if s.offer(p, i, src, w, b) {
				taken = true
				break
			}
		}
		key := string(w.ID)
		if taken {
			s.idleLog.Forget(key)
			continue
		}
		p.rep.Idle++
		s.idleLog.Do(key, func() {
			s.log.Debug("worker.idle", logx.String("worker", key), logx.Tick(p.tick))
		})
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.WorkerIdle, Tick: p.tick, Data: key})
		}
	}
}

func (s *Service) capacityBlocked(p *pass, t *task.Instance) {
	p.rep.CapacityBlocked++
	s.capLog.Do(t.Key(), func() {
		s.log.Debug("task.capacity_blocked", logx.String("task", t.ID), logx.String("dest", string(t.Destination)), logx.Tick(p.tick))
	})
}

// demand builds the provisioning signal from tasks still unassigned at the
// end of the pass.
func (s *Service) demand(p *pass) *Demand {
	var tasks []UnmetTask
	var caps [][]world.Capability
	for _, t := range p.unmet {
		if t.Assigned() || t.State.Terminal() {
			continue
		}
		req := t.Template.Requires()
		caps = append(caps, req)
		tasks = append(tasks, UnmetTask{
			ID:          t.ID,
			Name:        t.Name(),
			Destination: t.Destination,
			Priority:    t.Priority,
			Requires:    req,
		})
	}
	p.rep.Unmet = len(tasks)
	if len(tasks) == 0 {
		return nil
	}
	return &Demand{Tick: p.tick, Capabilities: task.UnionCapabilities(caps...), Tasks: tasks}
}

func (s *Service) observe(p *pass) {
	if s.met == nil {
		return
	}
	counts := make(map[string]int)
	for _, t := range s.tasks {
		counts[t.State.String()]++
	}
	s.met.SetTaskStates(stateNames, counts)
	s.met.SetUnmet(p.rep.Unmet)
	s.met.SetIdle(p.rep.Idle)
	_, open := s.circuits.counts(p.tick)
	s.met.SetCircuitsOpen(open)
	s.met.ObserveTick(p.tick, p.rep.Duration)
}

var stateNames = []string{
	task.StateQueued.String(),
	task.StateTriggerPending.String(),
	task.StateApproaching.String(),
	task.StateInRange.String(),
}

type passBinder struct {
	s *Service
	p *pass
}

func (b *passBinder) Create(name string, dest world.ID, ov task.Overrides) (*task.Instance, bool) {
	return b.s.reg.Create(name, dest, ov)
}

func (b *passBinder) Submit(t *task.Instance) bool {
	if b.s.admit(t, b.p.tick) != nil {
		return false
	}
	b.p.rep.Submitted++
	return true
}

func (b *passBinder) Bind(t *task.Instance, w world.Worker) bool {
	s, p := b.s, b.p
	if t == nil || t.Template == nil || t.Template.Triggered() || t.Assigned() {
		return false
	}
	if !p.idle(w.ID) || !t.Template.Eligible(w) {
		return false
	}
	dest, ok := p.snap.Entity(t.Destination)
	if !ok {
		return false
	}
	if s.gate.IsFull(t.Destination) || !s.canExecute(p, t, w, dest) {
		return false
	}
	submitted := false
	if live, ok := s.byID[t.ID]; !ok || live != t {
		if !b.Submit(t) {
			return false
		}
		submitted = true
	}
	if s.assign(p, t, w, dest) {
		return true
	}
	if submitted {
		s.withdraw(t)
		p.rep.Submitted--
	}
	return false
}
