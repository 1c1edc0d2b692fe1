package policy

import (
	"sync"
	"time"
)

type devicePolicy struct {
	mode      Mode
	permanent map[string]struct{}
	expiring  map[string]time.Time
	locked    map[string]struct{}
}

func (p *devicePolicy) empty() bool {
	return p.mode != ModeRestricted && len(p.permanent) == 0 && len(p.expiring) == 0 && len(p.locked) == 0
}

type InMemoryStore struct {
	mu      sync.RWMutex
	devices map[string]*devicePolicy
}

var _ Store = (*InMemoryStore)(nil)

type InMemoryStats struct {
	Devices           int `json:"devices"`
	RestrictedDevices int `json:"restricted_devices"`
	PermanentGrants   int `json:"permanent_grants"`
	ExpiringGrants    int `json:"expiring_grants"`
	LockedTypes       int `json:"locked_types"`
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{devices: make(map[string]*devicePolicy)}
}

func (s *InMemoryStore) SetMode(deviceID string, m Mode) error {
	if m != ModeOpen && m != ModeRestricted {
		return ErrInvalidMode
	}
	if deviceID == "" {
		return ErrMissingField
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.deviceLocked(deviceID)
	p.mode = m
	s.dropIfEmptyLocked(deviceID, p)
	return nil
}

func (s *InMemoryStore) Grant(deviceID, operatorID string, validFrom time.Time, validTo *time.Time) error {
	if err := validateGrantArgs(deviceID, operatorID, validFrom, validTo); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.deviceLocked(deviceID)
	if validTo == nil {
		p.permanent[operatorID] = struct{}{}
		delete(p.expiring, operatorID)
		return nil
	}
	p.expiring[operatorID] = *validTo
	delete(p.permanent, operatorID)
	return nil
}

func (s *InMemoryStore) Revoke(deviceID, operatorID string) error {
	if deviceID == "" || operatorID == "" {
		return ErrMissingField
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.devices[deviceID]
	if p == nil {
		return nil
	}
	delete(p.permanent, operatorID)
	delete(p.expiring, operatorID)
	s.dropIfEmptyLocked(deviceID, p)
	return nil
}

func (s *InMemoryStore) SetLockedTypes(deviceID string, types []string) error {
	if deviceID == "" {
		return ErrMissingField
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.deviceLocked(deviceID)
	p.locked = make(map[string]struct{}, len(types))
	for _, t := range types {
		if t != "" {
			p.locked[t] = struct{}{}
		}
	}
	s.dropIfEmptyLocked(deviceID, p)
	return nil
}

func (s *InMemoryStore) Decide(deviceID, operatorID, typeName string, now time.Time) (Decision, error) {
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.devices[deviceID]
	if p == nil {
		return Decision{Allowed: true}, nil
	}
	if _, ok := p.locked[typeName]; ok {
		return Decision{Reason: ReasonTypeLocked}, nil
	}
	if p.mode != ModeRestricted {
		return Decision{Allowed: true}, nil
	}
	if _, ok := p.permanent[operatorID]; ok && operatorID != "" {
		return Decision{Allowed: true}, nil
	}
	if validTo, ok := p.expiring[operatorID]; ok && now.Before(validTo) {
		return Decision{Allowed: true}, nil
	}
	return Decision{Reason: ReasonNotGranted}, nil
}

func (s *InMemoryStore) Stats() InMemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := InMemoryStats{Devices: len(s.devices)}
	for _, p := range s.devices {
		if p.mode == ModeRestricted {
			st.RestrictedDevices++
		}
		st.PermanentGrants += len(p.permanent)
		st.ExpiringGrants += len(p.expiring)
		st.LockedTypes += len(p.locked)
	}
	return st
}

func (s *InMemoryStore) deviceLocked(deviceID string) *devicePolicy {
	p := s.devices[deviceID]
	if p == nil {
		p = &devicePolicy{
			mode:      ModeOpen,
			permanent: make(map[string]struct{}),
			expiring:  make(map[string]time.Time),
			locked:    make(map[string]struct{}),
		}
		s.devices[deviceID] = p
	}
	return p
}

func (s *InMemoryStore) dropIfEmptyLocked(deviceID string, p *devicePolicy) {
	if p.empty() {
		delete(s.devices, deviceID)
	}
}
