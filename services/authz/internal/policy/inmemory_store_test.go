package policy

import (
	"testing"
	"time"
)

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestInMemoryStoreErrors(t *testing.T) {
	exerciseStoreErrors(t, NewInMemoryStore())
}

func TestInMemoryStoreStats(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	later := now.Add(time.Hour)

	_ = s.SetMode("a", ModeRestricted)
	_ = s.Grant("a", operator, now, nil)
	_ = s.Grant("a", stranger, now, &later)
	_ = s.SetLockedTypes("b", []string{"push_file"})

	st := s.Stats()
	want := InMemoryStats{Devices: 2, RestrictedDevices: 1, PermanentGrants: 1, ExpiringGrants: 1, LockedTypes: 1}
	if st != want {
		t.Fatalf("stats=%+v, want %+v", st, want)
	}

	_ = s.SetLockedTypes("b", nil)
	if st := s.Stats(); st.Devices != 1 {
		t.Fatalf("empty device policy kept: %+v", st)
	}
}

func TestInMemoryGrantReplacesKind(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	soon := now.Add(time.Minute)

	_ = s.SetMode(deviceID, ModeRestricted)
	_ = s.Grant(deviceID, operator, now, nil)
	_ = s.Grant(deviceID, operator, now, &soon)

	if d, _ := s.Decide(deviceID, operator, "touch", now.Add(2*time.Minute)); d.Allowed {
		t.Fatalf("expiring grant did not replace permanent one")
	}
	if st := s.Stats(); st.PermanentGrants != 0 || st.ExpiringGrants != 1 {
		t.Fatalf("stats=%+v", st)
	}
}
