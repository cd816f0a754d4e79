package power

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargesim/core/model"
)

func group(id model.GroupID, capW float64, rating float64, n int) model.Group {
	g := model.Group{ID: id, Cap: capW}
	for i := 0; i < n; i++ {
		g.Points = append(g.Points, model.Point{ID: model.StationID{Group: id, Index: i}, Rating: rating})
	}
	return g
}

// occupant returns a vehicle whose taper and intake ceilings exceed rating.
func occupant(vehicle string, station string, rating, capW float64) model.ChargingOccupant {
	return model.ChargingOccupant{
		Vehicle:       vehicle,
		Station:       model.MustStationID(station),
		CurrentEnergy: 0,
		MaxEnergy:     100000,
		MaxIntake:     1e9,
		Rating:        rating,
		GroupCap:      capW,
	}
}

func TestBasePower(t *testing.T) {
	o := model.ChargingOccupant{CurrentEnergy: 500, MaxEnergy: 1000, MaxIntake: 5000, Rating: 3000}
	base, limit := BasePower(o)
	assert.Equal(t, 2000.0, base)
	assert.Equal(t, LimitSoC, limit)

	o.Rating = 1500
	base, limit = BasePower(o)
	assert.Equal(t, 1500.0, base)
	assert.Equal(t, LimitPoint, limit)

	o.MaxIntake = 700
	base, limit = BasePower(o)
	assert.Equal(t, 700.0, base)
	assert.Equal(t, LimitVehicle, limit)
}

func TestFactor(t *testing.T) {
	assert.Equal(t, 1.0, Factor(100, 0))
	assert.Equal(t, 1.0, Factor(100, 80))
	assert.Equal(t, 1.0, Factor(100, 100))
	assert.InDelta(t, 2.0/3, Factor(100, 150), 1e-12)
	assert.Equal(t, 0.0, Factor(0, 10))
}

func TestOverCapGroupSharesFairly(t *testing.T) {
	store := NewMemoryStore()
	g := group("e1", 100, 75, 3)
	c := NewController(store, []model.Group{g}, nil)
	occ := []model.ChargingOccupant{
		occupant("a", "cs_e1_0", 75, 100),
		occupant("b", "cs_e1_1", 75, 100),
	}
	for _, o := range occ {
		require.NoError(t, c.Admit(o.Station))
	}

	for tick := 0; tick < 3; tick++ {
		res := c.Step(occ)
		require.Empty(t, res.Errors)
		require.Len(t, res.Allocations, 2)
		for _, a := range res.Allocations {
			assert.Equal(t, 75.0, a.Base)
			assert.InDelta(t, 50.0, a.Delivered, 1e-9, "tick %d", tick)
		}
		load := res.Groups["e1"]
		assert.InDelta(t, 100.0, load.Delivered, 1e-9)
		assert.True(t, load.Throttled())

		desired, _ := store.DesiredPower(model.MustStationID("cs_e1_0"))
		assert.Equal(t, 75.0, desired, "unscaled base must be written back")
		idle, _ := store.Factor(model.MustStationID("cs_e1_2"))
		assert.InDelta(t, 2.0/3, idle, 1e-12, "idle points carry the group factor")
		p, _ := store.Power(model.MustStationID("cs_e1_1"))
		assert.InDelta(t, 50.0, p, 1e-9)
	}
}

func TestUnderCapGroupDeliversBase(t *testing.T) {
	store := NewMemoryStore()
	c := NewController(store, []model.Group{group("e1", 500, 100, 2)}, nil)
	occ := []model.ChargingOccupant{occupant("a", "cs_e1_0", 100, 500), occupant("b", "cs_e1_1", 100, 500)}
	res := c.Step(occ)
	for _, a := range res.Allocations {
		assert.Equal(t, 1.0, a.Factor)
		assert.Equal(t, a.Base, a.Delivered)
	}
	assert.False(t, res.Groups["e1"].Throttled())
}

func TestGroupsAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	c := NewController(store, []model.Group{group("a", 100, 80, 2), group("b", 1000, 80, 2)}, nil)
	occ := []model.ChargingOccupant{
		occupant("x", "cs_a_0", 80, 100),
		occupant("y", "cs_a_1", 80, 100),
		occupant("z", "cs_b_0", 80, 1000),
	}
	res := c.Step(occ)
	assert.InDelta(t, 100.0, res.Groups["a"].Delivered, 1e-9)
	assert.Equal(t, 80.0, res.Groups["b"].Delivered)
}

func TestInvalidOccupantDoesNotBlockOthers(t *testing.T) {
	store := NewMemoryStore()
	c := NewController(store, []model.Group{group("e1", 100, 60, 2)}, nil)
	bad := occupant("bad", "cs_e1_0", 60, 100)
	bad.MaxEnergy = 0
	good := occupant("good", "cs_e1_1", 60, 100)
	res := c.Step([]model.ChargingOccupant{bad, good})
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors["bad"], model.ErrZeroCapacity))
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, "good", res.Allocations[0].Vehicle)
	assert.Equal(t, 60.0, res.Allocations[0].Delivered)
}

func TestNewArrivalNeverExceedsCap(t *testing.T) {
	store := NewMemoryStore()
	c := NewController(store, []model.Group{group("e1", 100, 80, 2)}, nil)
	first := occupant("a", "cs_e1_0", 80, 100)
	require.NoError(t, c.Admit(first.Station))
	res := c.Step([]model.ChargingOccupant{first})
	assert.Equal(t, 80.0, res.Groups["e1"].Delivered)

	second := occupant("b", "cs_e1_1", 80, 100)
	require.NoError(t, c.Admit(second.Station))
	res = c.Step([]model.ChargingOccupant{first, second})
	assert.LessOrEqual(t, res.Groups["e1"].Delivered, 100.0+1e-9)
	for _, a := range res.Allocations {
		assert.InDelta(t, 50.0, a.Delivered, 1e-9)
	}
}

type failingStore struct {
	*MemoryStore
	failOn model.StationID
}

func (f failingStore) SetPower(id model.StationID, w float64) error {
	if id == f.failOn {
		return errors.New("engine unavailable")
	}
	return f.MemoryStore.SetPower(id, w)
}

func TestStoreErrorIsolated(t *testing.T) {
	store := failingStore{MemoryStore: NewMemoryStore(), failOn: model.MustStationID("cs_e1_0")}
	c := NewController(store, []model.Group{group("e1", 1000, 50, 2)}, nil)
	res := c.Step([]model.ChargingOccupant{occupant("a", "cs_e1_0", 50, 1000), occupant("b", "cs_e1_1", 50, 1000)})
	assert.Contains(t, res.Errors, "a")
	p, _ := store.Power(model.MustStationID("cs_e1_1"))
	assert.Equal(t, 50.0, p)
}
