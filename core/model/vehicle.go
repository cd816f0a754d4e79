package model

import (
	"errors"
	"fmt"
)

// ErrZeroCapacity is returned for an occupant whose battery capacity is not
// positive. Such occupants never reach the power controller.
var ErrZeroCapacity = errors.New("battery capacity must be positive")

// ChargingOccupant is a vehicle currently stopped at a charging point, as
// seen by the power controller during one tick.
type ChargingOccupant struct {
	Vehicle string
	Station StationID
	// CurrentEnergy and MaxEnergy are the battery contents and capacity in Wh.
	CurrentEnergy float64
	MaxEnergy     float64
	// MaxIntake is the highest power the vehicle accepts in W.
	MaxIntake float64
	// Rating is the rated output of the occupied point in W.
	Rating float64
	// GroupCap is the aggregate power cap of the point's group in W.
	GroupCap float64
}

// Validate checks that the occupant can be fed to the power controller.
func (o ChargingOccupant) Validate() error {
	if o.MaxEnergy <= 0 {
		return fmt.Errorf("vehicle %s: %w", o.Vehicle, ErrZeroCapacity)
	}
	if o.CurrentEnergy < 0 || o.MaxIntake < 0 || o.Rating < 0 {
		return fmt.Errorf("vehicle %s: negative battery or power attribute", o.Vehicle)
	}
	if o.Station.IsZero() {
		return fmt.Errorf("vehicle %s: no charging point", o.Vehicle)
	}
	return nil
}

// SoC returns the state of charge in [0,1]. Validate must succeed first.
func (o ChargingOccupant) SoC() float64 {
	return o.CurrentEnergy / o.MaxEnergy
}

// TaperCeiling is the state-of-charge based power limit: it falls linearly
// as the battery fills and reaches 0.1 x capacity x 1.1 / 0.33 at full charge.
func (o ChargingOccupant) TaperCeiling() float64 {
	return 1.1 * o.MaxEnergy * (110 - 100*o.SoC()) / 33
}
