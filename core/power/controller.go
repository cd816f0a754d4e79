// Package power shares the capped power budget of each charging group among
// the vehicles currently charging in it.
//
// Every tick runs two phases. Phase one derives a fair-share factor per group
// from the base power its occupants requested on the previous tick. Phase two
// computes each occupant's new base power from its physical ceilings, stores
// it unscaled for the next tick and delivers base x factor.
package power

import (
	"fmt"
	"sort"

	"github.com/kilianp07/chargesim/core/logger"
	"github.com/kilianp07/chargesim/core/model"
)

// Limit names the ceiling that bounded an occupant's base power.
type Limit string

const (
	LimitSoC     Limit = "soc"
	LimitPoint   Limit = "point"
	LimitVehicle Limit = "vehicle"
)

// Allocation is the outcome for one occupant.
type Allocation struct {
	Vehicle   string
	Station   model.StationID
	Base      float64
	Factor    float64
	Delivered float64
	Limit     Limit
}

// GroupLoad is the outcome for one group.
type GroupLoad struct {
	Group     model.GroupID
	Cap       float64
	Demand    float64
	Factor    float64
	Delivered float64
	Occupants int
}

// Throttled reports whether the group ran below its occupants' demand.
func (g GroupLoad) Throttled() bool { return g.Factor < 1 }

// Result collects one tick of allocation. Errors is keyed by vehicle id; an
// erroneous occupant never blocks the others.
type Result struct {
	Allocations []Allocation
	Groups      map[model.GroupID]GroupLoad
	Errors      map[string]error
}

// Controller computes power allocations. It keeps no state across ticks
// beyond what it writes to the PointStore.
type Controller struct {
	points PointStore
	groups map[model.GroupID][]model.StationID
	log    logger.Logger
}

// NewController returns a Controller writing to points. groups lists every
// point of every group so that idle points receive the group factor too.
func NewController(points PointStore, groups []model.Group, log logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop{}
	}
	c := &Controller{points: points, groups: make(map[model.GroupID][]model.StationID, len(groups)), log: log}
	for _, g := range groups {
		ids := make([]model.StationID, len(g.Points))
		for i, p := range g.Points {
			ids[i] = p.ID
		}
		c.groups[g.ID] = ids
	}
	return c
}

// Admit resets a point when a vehicle starts charging at it.
func (c *Controller) Admit(id model.StationID) error {
	if err := c.points.SetDesiredPower(id, 0); err != nil {
		return err
	}
	return c.points.SetFactor(id, 1)
}

// BasePower returns the unscaled power an occupant may draw and the ceiling
// that bounds it.
func BasePower(o model.ChargingOccupant) (float64, Limit) {
	base, limit := o.TaperCeiling(), LimitSoC
	if o.Rating < base {
		base, limit = o.Rating, LimitPoint
	}
	if o.MaxIntake < base {
		base, limit = o.MaxIntake, LimitVehicle
	}
	if base < 0 {
		base = 0
	}
	return base, limit
}

// Factor returns the fair-share factor of a group with the given cap and
// summed demand. No demand, or demand within the cap, yields 1.
func Factor(capW, demand float64) float64 {
	if demand <= 0 || demand <= capW {
		return 1
	}
	if capW <= 0 {
		return 0
	}
	return capW / demand
}

type member struct {
	occ    model.ChargingOccupant
	demand float64
}

// Step allocates power to the given occupants.
func (c *Controller) Step(occupants []model.ChargingOccupant) Result {
	res := Result{Groups: make(map[model.GroupID]GroupLoad), Errors: make(map[string]error)}

	byGroup := make(map[model.GroupID][]member)
	for _, o := range occupants {
		if err := o.Validate(); err != nil {
			res.Errors[o.Vehicle] = err
			continue
		}
		prev, err := c.points.DesiredPower(o.Station)
		if err != nil {
			res.Errors[o.Vehicle] = fmt.Errorf("read desired power: %w", err)
			continue
		}
		// A freshly admitted point has no previous request yet.
		if prev <= 0 {
			prev, _ = BasePower(o)
		}
		byGroup[o.Station.Group] = append(byGroup[o.Station.Group], member{occ: o, demand: prev})
	}

	groupIDs := make([]model.GroupID, 0, len(byGroup))
	for g := range byGroup {
		groupIDs = append(groupIDs, g)
	}
	sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })

	for _, g := range groupIDs {
		members := byGroup[g]
		load := c.phaseOne(g, members)
		load = c.phaseTwo(load, members, &res)
		res.Groups[g] = load
	}
	return res
}

func (c *Controller) phaseOne(g model.GroupID, members []member) GroupLoad {
	load := GroupLoad{Group: g, Cap: members[0].occ.GroupCap, Occupants: len(members)}
	for _, m := range members {
		load.Demand += m.demand
	}
	load.Factor = Factor(load.Cap, load.Demand)

	targets := c.groups[g]
	for _, m := range members {
		if !contains(targets, m.occ.Station) {
			targets = append(targets, m.occ.Station)
		}
	}
	for _, id := range targets {
		if err := c.points.SetFactor(id, load.Factor); err != nil {
			c.log.Warnf("set factor on %s: %v", id, err)
		}
	}
	return load
}

func (c *Controller) phaseTwo(load GroupLoad, members []member, res *Result) GroupLoad {
	start := len(res.Allocations)
	for _, m := range members {
		o := m.occ
		base, limit := BasePower(o)
		if err := c.points.SetDesiredPower(o.Station, base); err != nil {
			res.Errors[o.Vehicle] = fmt.Errorf("write desired power: %w", err)
			continue
		}
		factor, err := c.points.Factor(o.Station)
		if err != nil {
			res.Errors[o.Vehicle] = fmt.Errorf("read factor: %w", err)
			continue
		}
		res.Allocations = append(res.Allocations, Allocation{
			Vehicle: o.Vehicle, Station: o.Station, Base: base, Factor: factor, Delivered: base * factor, Limit: limit,
		})
		load.Delivered += base * factor
	}

	// Ceilings of a charging vehicle only fall over time, so the previous
	// demand bounds the current one. Guard anyway against an engine that
	// raised a limit between ticks.
	if load.Cap > 0 && load.Delivered > load.Cap*(1+1e-9) {
		scale := load.Cap / load.Delivered
		c.log.Warnf("group %s over cap (%.1f > %.1f), rescaling by %.4f", load.Group, load.Delivered, load.Cap, scale)
		load.Delivered = 0
		for i := start; i < len(res.Allocations); i++ {
			a := &res.Allocations[i]
			a.Factor *= scale
			a.Delivered *= scale
			load.Delivered += a.Delivered
			if err := c.points.SetFactor(a.Station, a.Factor); err != nil {
				c.log.Warnf("set factor on %s: %v", a.Station, err)
			}
		}
		load.Factor *= scale
	}

	for i := start; i < len(res.Allocations); i++ {
		a := res.Allocations[i]
		if err := c.points.SetPower(a.Station, a.Delivered); err != nil {
			res.Errors[a.Vehicle] = fmt.Errorf("write power: %w", err)
		}
	}
	return load
}

func contains(ids []model.StationID, id model.StationID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
