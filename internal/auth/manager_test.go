package auth

import "testing"

func TestNotLockedOutByDefault(t *testing.T) {
	m := NewManager()
	if m.IsLockedOut("1.2.3.4") {
		t.Error("fresh manager should not report any address locked out")
	}
}

func TestLocksOutAfterMaxFailures(t *testing.T) {
	m := NewManager()
	addr := "1.2.3.4:5555"
	for i := 0; i < maxAuthFailures-1; i++ {
		m.RecordAuthFailure(addr)
		if m.IsLockedOut(addr) {
			t.Fatalf("should not be locked out after %d failures", i+1)
		}
	}
	m.RecordAuthFailure(addr)
	if !m.IsLockedOut(addr) {
		t.Error("expected lockout after reaching maxAuthFailures")
	}
}

func TestSuccessClearsFailureCount(t *testing.T) {
	m := NewManager()
	addr := "1.2.3.4:5555"
	for i := 0; i < maxAuthFailures-1; i++ {
		m.RecordAuthFailure(addr)
	}
	m.RecordAuthSuccess(addr)

	m.RecordAuthFailure(addr)
	if m.IsLockedOut(addr) {
		t.Error("failure count should have reset after a recorded success")
	}
}

func TestLockoutIsPerAddress(t *testing.T) {
	m := NewManager()
	victim := "1.2.3.4:5555"
	other := "9.9.9.9:1111"
	for i := 0; i < maxAuthFailures; i++ {
		m.RecordAuthFailure(victim)
	}
	if !m.IsLockedOut(victim) {
		t.Fatal("victim should be locked out")
	}
	if m.IsLockedOut(other) {
		t.Error("lockout should not leak across remote addresses")
	}
}
