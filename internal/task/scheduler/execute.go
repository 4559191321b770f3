package scheduler

import (
	"fmt"
	"runtime/debug"

	"hivemind/internal/eventbus"
	"hivemind/internal/task"
	"hivemind/internal/world"
	logx "hivemind/pkg/logx"
)

// assign binds w to t after taking a capacity slot.
func (s *Service) assign(p *pass, t *task.Instance, w world.Worker, dest world.Entity) bool {
	if !s.gate.Reserve(t.Destination, w.ID) {
		s.capacityBlocked(p, t)
		return false
	}
	t.Worker = w.ID
	t.Reserved = true
	t.InRange = w.Pos.InRange(dest.Pos, t.Range)
	if t.InRange {
		t.State = task.StateInRange
	} else {
		t.State = task.StateApproaching
	}
	p.bind(t, w.ID)
	p.rep.Assigned++

	s.met.IncAssigned(t.Name())
	s.log.Debug("task.assigned", logx.String("task", t.ID), logx.String("name", t.Name()),
		logx.String("worker", string(w.ID)), logx.String("dest", string(t.Destination)),
		logx.Int("priority", t.Priority), logx.Bool("in_range", t.InRange), logx.Tick(p.tick))
	s.publish(eventbus.TaskAssigned, p.tick, t, "")
	return true
}

// release frees t's capacity slot exactly once.
func (s *Service) release(p *pass, t *task.Instance) {
	if !t.Reserved {
		return
	}
	s.gate.Release(t.Worker)
	t.Reserved = false
	p.rep.Released++
}

// unassign returns t to its pending state; the worker becomes idle for the
// remaining passes of this tick.
func (s *Service) unassign(p *pass, t *task.Instance, reason task.Reason) {
	if !t.Assigned() {
		return
	}
	w := t.Worker
	s.release(p, t)
	s.publish(eventbus.TaskUnassigned, p.tick, t, reason)
	t.Worker = world.None
	t.InRange = false
	t.State = task.PendingState(t.Template)
	p.unbind(w, t)
	p.rep.Unassigned++

	s.met.IncUnassigned(string(reason))
	s.log.Debug("task.unassigned", logx.String("task", t.ID), logx.String("name", t.Name()),
		logx.String("worker", string(w)), logx.String("reason", string(reason)), logx.Tick(p.tick))
}

func (s *Service) abandon(p *pass, t *task.Instance, reason task.Reason) {
	p.rep.Abandoned++
	s.log.Debug("task.abandoned", logx.String("task", t.ID), logx.String("name", t.Name()),
		logx.String("worker", string(t.Worker)), logx.String("reason", string(reason)), logx.Tick(p.tick))
	s.publish(eventbus.TaskAbandoned, p.tick, t, reason)
	s.finish(p, t, task.StateAbandoned, reason)
}

func (s *Service) complete(p *pass, t *task.Instance) {
	s.circuitSuccess(t.Key())
	p.rep.Completed++
	s.log.Debug("task.completed", logx.String("task", t.ID), logx.String("name", t.Name()),
		logx.String("worker", string(t.Worker)), logx.Tick(p.tick))
	s.publish(eventbus.TaskCompleted, p.tick, t, task.ReasonCompleted)
	s.finish(p, t, task.StateComplete, task.ReasonCompleted)
}

// finish marks t terminal and gives up its worker. The instance leaves the
// live set in collect.
func (s *Service) finish(p *pass, t *task.Instance, st task.State, reason task.Reason) {
	s.release(p, t)
	if t.Assigned() {
		p.unbind(t.Worker, t)
		t.Worker = world.None
	}
	t.State = st
	t.InRange = false
	s.met.IncRemoved(string(reason))
}

// advanceAll drives every assigned task through one step, highest priority
// first.
func (s *Service) advanceAll(p *pass) {
	for _, t := range s.sortedLocked() {
		if t.Assigned() && t.State.Active() {
			s.advance(p, t)
		}
	}
}

// advance runs one step of the execution state machine for t. A panic in any
// behavior call is contained here and handled like a rejected execution.
func (s *Service) advance(p *pass, t *task.Instance) {
	defer func() {
		if r := recover(); r != nil {
			p.rep.Faults++
			s.met.IncFault("execute")
			s.log.Error("task.panic", logx.String("task", t.ID), logx.String("name", t.Name()),
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			if t.Assigned() && !t.State.Terminal() {
				s.unassign(p, t, task.ReasonExecutionFault)
			}
			s.circuitFailure(t.Key(), p.tick)
		}
	}()

	w, ok := p.snap.Worker(t.Worker)
	if !ok {
		s.abandon(p, t, task.ReasonStaleReference)
		return
	}
	dest, ok := p.snap.Entity(t.Destination)
	if !ok {
		s.abandon(p, t, task.ReasonStaleReference)
		return
	}
	b := t.Template.Behavior()

	if b.IsComplete(p.c, w, dest) {
		s.complete(p, t)
		return
	}
	if !t.Template.Eligible(w) || !b.CanExecute(p.c, w, dest) {
		s.unassign(p, t, task.ReasonRequirementNotMet)
		return
	}

	if !t.InRange {
		if !w.Pos.InRange(dest.Pos, t.Range) {
			t.State = task.StateApproaching
			if s.router.Approach(w, dest) {
				t.InRange = true
				t.State = task.StateInRange
			}
			return
		}
		t.InRange = true
	}
	t.State = task.StateInRange

	switch res := b.Execute(p.c, w, dest); res {
	case task.ResultOK:
	case task.ResultNotInRange:
		t.InRange = false
		t.State = task.StateApproaching
	default:
		s.unassign(p, t, task.ReasonExecutionRejected)
		if s.circuitFailure(t.Key(), p.tick) {
			s.log.Warn("task.circuit_open", logx.String("key", t.Key()), logx.Tick(p.tick))
		}
	}
}

func (s *Service) fault(p *pass, site string, t *task.Instance, r any) {
	p.rep.Faults++
	s.met.IncFault(site)
	id := ""
	if t != nil {
		id = t.ID
	}
	s.log.Error("scheduler.fault", logx.String("site", site), logx.String("task", id),
		logx.Any("panic", r), logx.Stack(string(debug.Stack())))
}

func (s *Service) canExecute(p *pass, t *task.Instance, w world.Worker, dest world.Entity) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.fault(p, "can_execute", t, r)
			ok = false
		}
	}()
	return t.Template.Behavior().CanExecute(p.c, w, dest)
}

func (s *Service) triggerCondition(p *pass, t *task.Instance, dest world.Entity) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.fault(p, "trigger", t, r)
			ok = false
		}
	}()
	return t.Template.Behavior().TriggerCondition(p.c, dest)
}

func (s *Service) prerequisites(p *pass, t *task.Instance, w world.Worker, dest world.Entity) (reqs []task.Request) {
	defer func() {
		if r := recover(); r != nil {
			s.fault(p, "prerequisites", t, r)
			reqs = nil
		}
	}()
	return t.Template.Behavior().Prerequisites(p.c, w, dest)
}

func (s *Service) offer(p *pass, idx int, src WorkSource, w world.Worker, b Binder) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.fault(p, fmt.Sprintf("work_source[%d]", idx), nil, r)
			ok = false
		}
	}()
	return src.OfferWork(p.c, w, b)
}

// requestWorkers runs outside the service lock so a provisioner may submit
// tasks of its own.
func (s *Service) requestWorkers(prov Provisioner, d Demand) {
	defer func() {
		if r := recover(); r != nil {
			s.met.IncFault("provisioner")
			s.log.Error("scheduler.fault", logx.String("site", "provisioner"),
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	caps := make([]string, len(d.Capabilities))
	for i, c := range d.Capabilities {
		caps[i] = string(c)
	}
	s.met.IncWorkerRequests()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.WorkersRequested, Tick: d.Tick,
			Data: eventbus.DemandEvent{Capabilities: caps, Tasks: len(d.Tasks)}})
	}
	prov.RequestWorkers(d)
}
