package power

import (
	"fmt"
	"sync"

	"github.com/kilianp07/chargesim/core/model"
)

// PointStore holds the power attributes the controller writes back for each
// charging point. The simulation engine reads Power and applies it.
type PointStore interface {
	DesiredPower(id model.StationID) (float64, error)
	SetDesiredPower(id model.StationID, watts float64) error
	Factor(id model.StationID) (float64, error)
	SetFactor(id model.StationID, f float64) error
	Power(id model.StationID) (float64, error)
	SetPower(id model.StationID, watts float64) error
}

type pointState struct {
	desired float64
	factor  float64
	power   float64
}

// MemoryStore is an in-memory PointStore. Unknown points read as idle:
// no desired power and a factor of 1.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[model.StationID]*pointState
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[model.StationID]*pointState)}
}

func (m *MemoryStore) get(id model.StationID) pointState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.points[id]; ok {
		return *p
	}
	return pointState{factor: 1}
}

func (m *MemoryStore) update(id model.StationID, fn func(*pointState)) error {
	if id.IsZero() {
		return fmt.Errorf("power store: empty station id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		p = &pointState{factor: 1}
		m.points[id] = p
	}
	fn(p)
	return nil
}

func (m *MemoryStore) DesiredPower(id model.StationID) (float64, error) { return m.get(id).desired, nil }
func (m *MemoryStore) Factor(id model.StationID) (float64, error)       { return m.get(id).factor, nil }
func (m *MemoryStore) Power(id model.StationID) (float64, error)        { return m.get(id).power, nil }

func (m *MemoryStore) SetDesiredPower(id model.StationID, w float64) error {
	return m.update(id, func(p *pointState) { p.desired = w })
}

func (m *MemoryStore) SetFactor(id model.StationID, f float64) error {
	return m.update(id, func(p *pointState) { p.factor = f })
}

func (m *MemoryStore) SetPower(id model.StationID, w float64) error {
	return m.update(id, func(p *pointState) { p.power = w })
}
