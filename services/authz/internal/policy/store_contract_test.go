package policy

import (
	"errors"
	"testing"
	"time"
)

const (
	deviceID = "Pixel 7"
	operator = "8f14e45f-ceea-467f-a8a5-7d4c3e1f2a90"
	stranger = "c9f0f895-fb98-4b91-9f3a-2b1c7d0a6e11"
)

func mustDecide(t *testing.T, s Store, dev, op, typeName string, now time.Time) Decision {
	t.Helper()
	d, err := s.Decide(dev, op, typeName, now)
	if err != nil {
		t.Fatalf("Decide(%q, %q, %q): %v", dev, op, typeName, err)
	}
	return d
}

// exerciseStore runs the behavior every Store implementation shares.
func exerciseStore(t *testing.T, s Store) {
	now := time.Now()

	if d := mustDecide(t, s, deviceID, stranger, "touch", now); !d.Allowed {
		t.Fatalf("unknown device should be open, got %+v", d)
	}

	if err := s.SetMode(deviceID, ModeRestricted); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if d := mustDecide(t, s, deviceID, stranger, "touch", now); d.Allowed || d.Reason != ReasonNotGranted {
		t.Fatalf("restricted without grant: %+v", d)
	}
	if d := mustDecide(t, s, deviceID, "", "touch", now); d.Allowed {
		t.Fatalf("restricted with no operator: %+v", d)
	}

	if err := s.Grant(deviceID, operator, now, nil); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if d := mustDecide(t, s, deviceID, operator, "touch", now); !d.Allowed {
		t.Fatalf("granted operator denied: %+v", d)
	}

	if err := s.SetLockedTypes(deviceID, []string{"push_file", "keycode"}); err != nil {
		t.Fatalf("SetLockedTypes: %v", err)
	}
	if d := mustDecide(t, s, deviceID, operator, "keycode", now); d.Allowed || d.Reason != ReasonTypeLocked {
		t.Fatalf("locked type allowed: %+v", d)
	}
	if d := mustDecide(t, s, deviceID, operator, "touch", now); !d.Allowed {
		t.Fatalf("unlocked type denied: %+v", d)
	}
	if err := s.SetLockedTypes(deviceID, nil); err != nil {
		t.Fatalf("SetLockedTypes(nil): %v", err)
	}
	if d := mustDecide(t, s, deviceID, operator, "keycode", now); !d.Allowed {
		t.Fatalf("unlocked keycode denied: %+v", d)
	}

	if err := s.Revoke(deviceID, operator); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if d := mustDecide(t, s, deviceID, operator, "touch", now); d.Allowed {
		t.Fatalf("revoked operator allowed: %+v", d)
	}

	expireAt := now.Add(10 * time.Minute)
	if err := s.Grant(deviceID, operator, now, &expireAt); err != nil {
		t.Fatalf("Grant(expiring): %v", err)
	}
	if d := mustDecide(t, s, deviceID, operator, "touch", now.Add(5*time.Minute)); !d.Allowed {
		t.Fatalf("expiring grant denied before expiry: %+v", d)
	}
	if d := mustDecide(t, s, deviceID, operator, "touch", now.Add(11*time.Minute)); d.Allowed {
		t.Fatalf("expiring grant allowed after expiry: %+v", d)
	}

	if err := s.SetMode(deviceID, ModeOpen); err != nil {
		t.Fatalf("SetMode(open): %v", err)
	}
	if d := mustDecide(t, s, deviceID, stranger, "touch", now); !d.Allowed {
		t.Fatalf("open device denied: %+v", d)
	}
}

func exerciseStoreErrors(t *testing.T, s Store) {
	if err := s.SetMode(deviceID, Mode("public")); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("SetMode(public) err=%v", err)
	}
	if err := s.SetMode("", ModeOpen); !errors.Is(err, ErrMissingField) {
		t.Fatalf("SetMode(\"\") err=%v", err)
	}
	if err := s.Grant(deviceID, "", time.Now(), nil); !errors.Is(err, ErrMissingField) {
		t.Fatalf("Grant without operator err=%v", err)
	}
	now := time.Now()
	before := now.Add(-time.Minute)
	if err := s.Grant(deviceID, operator, now, &before); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Grant with inverted range err=%v", err)
	}
	if err := s.Revoke("", operator); !errors.Is(err, ErrMissingField) {
		t.Fatalf("Revoke without device err=%v", err)
	}
}
