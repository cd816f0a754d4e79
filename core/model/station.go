package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidStationID is returned when a charging point id cannot be split
// into a group id and a per-group index.
var ErrInvalidStationID = errors.New("invalid charging station id")

// NoStation is the value reported by the engine when a vehicle has no
// assigned charging point.
const NoStation = "NULL"

const stationPrefix = "cs_"

// GroupID identifies a set of charging points sharing one power cap.
type GroupID string

// StationID is a validated charging point identifier of the form
// cs_<group>_<index>. The group part may itself contain underscores.
type StationID struct {
	Group GroupID
	Index int
}

// ParseStationID decomposes raw into its group and index.
func ParseStationID(raw string) (StationID, error) {
	if !strings.HasPrefix(raw, stationPrefix) {
		return StationID{}, fmt.Errorf("%w: %q", ErrInvalidStationID, raw)
	}
	body := raw[len(stationPrefix):]
	i := strings.LastIndex(body, "_")
	if i <= 0 || i == len(body)-1 {
		return StationID{}, fmt.Errorf("%w: %q", ErrInvalidStationID, raw)
	}
	idx, err := strconv.Atoi(body[i+1:])
	if err != nil || idx < 0 {
		return StationID{}, fmt.Errorf("%w: %q", ErrInvalidStationID, raw)
	}
	return StationID{Group: GroupID(body[:i]), Index: idx}, nil
}

// MustStationID parses raw and panics on failure. Intended for tests and
// static fixtures only.
func MustStationID(raw string) StationID {
	id, err := ParseStationID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// IsNone reports whether raw denotes "no charging point".
func IsNone(raw string) bool {
	return raw == "" || raw == NoStation
}

func (s StationID) String() string {
	return fmt.Sprintf("%s%s_%d", stationPrefix, s.Group, s.Index)
}

// IsZero reports whether s is the zero value.
func (s StationID) IsZero() bool { return s.Group == "" }

// Lane returns the dedicated lane of the charging point.
func (s StationID) Lane() string {
	return fmt.Sprintf("cs_lanes_%s_%d", s.Group, s.Index)
}

// AccessLane returns the lane leading into the charging area of group g.
func AccessLane(g GroupID) string {
	return fmt.Sprintf("to_cs_%s_0", g)
}

// QueueLanes returns the lanes forming the waiting zone in front of the
// points of group g: the access lane plus one lane per point.
func QueueLanes(g GroupID, points int) map[string]struct{} {
	if points < 1 {
		points = 1
	}
	lanes := make(map[string]struct{}, points+1)
	lanes[AccessLane(g)] = struct{}{}
	for i := 0; i < points; i++ {
		lanes[StationID{Group: g, Index: i}.Lane()] = struct{}{}
	}
	return lanes
}

// Group describes a set of charging points on one split edge.
type Group struct {
	ID GroupID
	// Cap is the aggregate power available to all points of the group.
	Cap    float64
	Points []Point
}

// Point is a single charging bay and its rated output.
type Point struct {
	ID     StationID
	Rating float64
}
