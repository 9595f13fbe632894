package crashtest

import "testing"

func TestAtReturnsFalseWhenNothingArmed(t *testing.T) {
	h := New()
	if h.At("list", 0) {
		t.Fatal("expected no crash with nothing armed")
	}
	if got := h.Probes("list"); got != 1 {
		t.Fatalf("expected 1 probe, got %d", got)
	}
}

func TestArmedPointTriggersOnce(t *testing.T) {
	h := New()
	h.Arm("tx_loop", 3)

	if h.At("tx_loop", 2) {
		t.Fatal("point 2 should not trigger when 3 is armed")
	}
	if !h.At("tx_loop", 3) {
		t.Fatal("expected point 3 to trigger")
	}
	// Arm does not self-disarm: a second hit at the same point still fires,
	// matching original_source's set_crash_point! (a plain store, not a
	// one-shot).
	if !h.At("tx_loop", 3) {
		t.Fatal("expected point 3 to trigger again until disarmed")
	}
}

func TestDisarmStopsTriggering(t *testing.T) {
	h := New()
	h.Arm("list", 1)
	h.Disarm("list")
	if h.At("list", 1) {
		t.Fatal("expected disarmed point to never trigger")
	}
}

func TestDomainsAreIndependent(t *testing.T) {
	h := New()
	h.Arm("list", 1)
	if h.At("tx_loop", 1) {
		t.Fatal("arming one domain must not affect another")
	}
}

func TestResetClearsArmedAndProbes(t *testing.T) {
	h := New()
	h.Arm("list", 1)
	h.At("list", 1)
	h.Reset()
	if h.At("list", 1) {
		t.Fatal("expected reset to clear armed points")
	}
	if got := h.Probes("list"); got != 1 {
		t.Fatalf("expected probes to restart at 1 after reset, got %d", got)
	}
}

func TestPackageLevelDefaultHarness(t *testing.T) {
	Reset()
	defer Reset()

	Arm("timer_list", 5)
	if !At("timer_list", 5) {
		t.Fatal("expected package-level At to see package-level Arm")
	}
}
