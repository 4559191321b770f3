package world

import "testing"

func TestRange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b Position
		want int
	}{
		{"same", Position{"W1N1", 5, 5}, Position{"W1N1", 5, 5}, 0},
		{"diagonal", Position{"W1N1", 1, 1}, Position{"W1N1", 4, 3}, 3},
		{"straight", Position{"W1N1", 0, 9}, Position{"W1N1", 0, 2}, 7},
		{"other room", Position{"W1N1", 1, 1}, Position{"W2N1", 1, 1}, FarAway},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.a.Range(tc.b); got != tc.want {
				t.Fatalf("Range() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWorkerCapabilitiesSkipsBrokenParts(t *testing.T) {
	t.Parallel()

	w := Worker{Parts: []Part{
		{Type: Work, Hits: 0},
		{Type: Carry, Hits: 100},
		{Type: Move, Hits: 100},
		{Type: Carry, Hits: 50},
	}}
	got := w.Capabilities()
	want := []Capability{Carry, Move}
	if len(got) != len(want) {
		t.Fatalf("Capabilities() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Capabilities() = %v, want %v", got, want)
		}
	}
	if w.Has(Work) {
		t.Fatalf("Has(work) = true for broken part")
	}
	if n := w.Count(Carry); n != 2 {
		t.Fatalf("Count(carry) = %d, want 2", n)
	}
}

func TestIndexResolvesAbsent(t *testing.T) {
	t.Parallel()

	ix := NewIndex(7,
		[]Worker{{ID: "w1"}, {ID: "w2"}},
		[]Entity{{ID: "src", Kind: "source"}},
	)
	if ix.Tick() != 7 {
		t.Fatalf("Tick() = %d, want 7", ix.Tick())
	}
	if _, ok := ix.Worker("gone"); ok {
		t.Fatalf("Worker(gone) ok = true")
	}
	if _, ok := ix.Entity(None); ok {
		t.Fatalf("Entity(None) ok = true")
	}
	if e, ok := ix.Entity("src"); !ok || e.Kind != "source" {
		t.Fatalf("Entity(src) = %+v, %v", e, ok)
	}
	ws := ix.Workers()
	if len(ws) != 2 || ws[0].ID != "w1" || ws[1].ID != "w2" {
		t.Fatalf("Workers() order = %+v", ws)
	}
	var nilIx *Index
	if _, ok := nilIx.Worker("w1"); ok {
		t.Fatalf("nil index resolved a worker")
	}
}

func TestMemoCachesSymmetric(t *testing.T) {
	t.Parallel()

	calls := 0
	inner := MetricFunc(func(a, b Position) int {
		calls++
		return a.Range(b)
	})
	m := NewMemo(inner, 8)
	a := Position{"R", 1, 1}
	b := Position{"R", 4, 2}

	if d := m.Distance(a, b); d != 3 {
		t.Fatalf("Distance = %d, want 3", d)
	}
	if d := m.Distance(b, a); d != 3 {
		t.Fatalf("Distance reversed = %d, want 3", d)
	}
	if calls != 1 {
		t.Fatalf("inner calls = %d, want 1", calls)
	}
	hits, misses := m.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("Stats() = %d/%d, want 1/1", hits, misses)
	}
	m.Purge()
	m.Distance(a, b)
	if calls != 2 {
		t.Fatalf("inner calls after purge = %d, want 2", calls)
	}
}
