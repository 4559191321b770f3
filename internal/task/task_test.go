package task

import (
	"errors"
	"testing"

	"hivemind/internal/world"
)

func worker(parts ...world.Part) world.Worker { return world.Worker{ID: "w", Parts: parts} }

func TestHasCapabilities(t *testing.T) {
	t.Parallel()

	ok := world.Part{Hits: 100}
	broken := world.Part{Hits: 0}
	part := func(p world.Part, c world.Capability) world.Part { p.Type = c; return p }

	cases := []struct {
		name     string
		w        world.Worker
		required []world.Capability
		want     bool
	}{
		{"no requirements", worker(), nil, true},
		{"exact", worker(part(ok, world.Work), part(ok, world.Carry)), []world.Capability{world.Work, world.Carry}, true},
		{"superset", worker(part(ok, world.Work), part(ok, world.Carry), part(ok, world.Move)), []world.Capability{world.Work}, true},
		{"missing", worker(part(ok, world.Carry)), []world.Capability{world.Work}, false},
		{"damaged only", worker(part(broken, world.Work), part(ok, world.Carry)), []world.Capability{world.Work}, false},
		{"damaged and healthy", worker(part(broken, world.Work), part(ok, world.Work)), []world.Capability{world.Work}, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := HasCapabilities(tc.w, tc.required); got != tc.want {
				t.Fatalf("HasCapabilities() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRegistryCreate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("harvest", Definition{Requires: []world.Capability{world.Work, world.Carry, world.Work}, Priority: 2, Range: 1})
	r.Register("defend", Definition{Requires: []world.Capability{world.Attack}, Triggered: true, Priority: 9})

	if _, ok := r.Create("nope", "x", Overrides{}); ok {
		t.Fatalf("Create(unknown) ok = true")
	}

	inst, ok := r.Create("harvest", "src1", Overrides{})
	if !ok {
		t.Fatalf("Create(harvest) ok = false")
	}
	if inst.Priority != 2 || inst.Range != 1 || inst.State != StateQueued {
		t.Fatalf("instance = %+v", inst)
	}
	if got := inst.Template.Requires(); len(got) != 2 {
		t.Fatalf("Requires() = %v, want deduplicated pair", got)
	}

	inst, _ = r.Create("harvest", "src1", WithPriority(7))
	if inst.Priority != 7 {
		t.Fatalf("override priority = %d, want 7", inst.Priority)
	}

	d, _ := r.Create("defend", "spawn", Overrides{})
	if d.State != StateTriggerPending {
		t.Fatalf("triggered state = %s, want trigger_pending", d.State)
	}

	// Overwrite keeps the name, replaces the definition.
	r.Register("harvest", Definition{Priority: 5})
	inst, _ = r.Create("harvest", "src1", Overrides{})
	if inst.Priority != 5 {
		t.Fatalf("after overwrite priority = %d, want 5", inst.Priority)
	}
	if names := r.Names(); len(names) != 2 || names[0] != "defend" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("build", Definition{Range: 3, Priority: 1})

	inst, _ := r.Create("build", "site", Overrides{})
	inst.ID = "tsk-4-1"
	inst.Seq = 1
	inst.CreatedTick = 4
	inst.Worker = "w9"
	inst.State = StateInRange
	inst.InRange = true
	inst.Reserved = true
	inst.Priority = 3

	rec := inst.Record()
	back, err := r.FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord() error = %v", err)
	}
	if back.Record() != rec {
		t.Fatalf("round trip = %+v, want %+v", back.Record(), rec)
	}
}

func TestFromRecordErrorsAndNormalization(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("build", Definition{})

	if _, err := r.FromRecord(Record{ID: "a", Name: "gone", State: "queued"}); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("unknown template err = %v", err)
	}
	if _, err := r.FromRecord(Record{ID: "a", Name: "build", State: "flying"}); !errors.Is(err, ErrBadRecord) {
		t.Fatalf("bad state err = %v", err)
	}

	// Active without a worker falls back to queued.
	inst, err := r.FromRecord(Record{ID: "a", Name: "build", State: "in_range", InRange: true, Reserved: true})
	if err != nil {
		t.Fatalf("FromRecord() error = %v", err)
	}
	if inst.State != StateQueued || inst.InRange || inst.Reserved {
		t.Fatalf("normalized = %+v", inst)
	}
}

func TestReasonRetryable(t *testing.T) {
	t.Parallel()

	if ReasonStaleReference.Retryable() {
		t.Fatalf("stale_reference should not be retryable")
	}
	if !ReasonExecutionFault.Retryable() {
		t.Fatalf("execution_fault should be retryable")
	}
}
