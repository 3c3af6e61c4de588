package status

import (
	"errors"
	"testing"
)

var all = []Status{NotProcessed, Pending, Processing, Completed, Failed, Skipped}

// allowed mirrors the full transition table; every ordered pair not listed
// here must be rejected.
var allowed = map[Status]map[Status]bool{
	NotProcessed: {Pending: true, Skipped: true},
	Pending:      {Processing: true, Failed: true, Skipped: true},
	Processing:   {Completed: true, Failed: true},
	Completed:    {},
	Failed:       {Pending: true},
	Skipped:      {Pending: true},
}

func TestCanTransitionTo_FullTable(t *testing.T) {
	for _, from := range all {
		for _, to := range all {
			got := from.CanTransitionTo(to)
			want := allowed[from][to]
			if got != want {
				t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCompletedHasNoOutgoingEdges(t *testing.T) {
	for _, to := range all {
		if Completed.CanTransitionTo(to) {
			t.Errorf("COMPLETED -> %s should be rejected", to)
		}
	}
}

// FAILED and SKIPPED are flagged terminal yet still allow the requeue edge
// back to PENDING. Both facts must hold at once.
func TestTerminalStatusesKeepRequeueEdge(t *testing.T) {
	for _, s := range []Status{Failed, Skipped} {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
		if !s.CanTransitionTo(Pending) {
			t.Errorf("%s.CanTransitionTo(PENDING) = false, want true", s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[Status]bool{Completed: true, Failed: true, Skipped: true}
	for _, s := range all {
		if got := s.IsTerminal(); got != terminal[s] {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, terminal[s])
		}
	}
}

func TestDefault(t *testing.T) {
	if got := Default(); got != NotProcessed {
		t.Errorf("Default() = %s, want %s", got, NotProcessed)
	}
}

func TestParse(t *testing.T) {
	for _, s := range all {
		got, err := Parse(string(s))
		if err != nil {
			t.Errorf("Parse(%q) error: %v", s, err)
		}
		if got != s {
			t.Errorf("Parse(%q) = %s, want %s", s, got, s)
		}
	}

	if _, err := Parse("DONE"); err == nil {
		t.Error("Parse(\"DONE\") succeeded, want error")
	}
}

func TestCheck(t *testing.T) {
	if err := Check(Pending, Processing); err != nil {
		t.Errorf("Check(PENDING, PROCESSING) = %v, want nil", err)
	}

	err := Check(Completed, Pending)
	if err == nil {
		t.Fatal("Check(COMPLETED, PENDING) = nil, want error")
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("Check error type = %T, want *InvalidTransitionError", err)
	}
	if ite.From != Completed || ite.To != Pending {
		t.Errorf("InvalidTransitionError = %s -> %s, want COMPLETED -> PENDING", ite.From, ite.To)
	}
}
