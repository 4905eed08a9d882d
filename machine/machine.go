package machine

import (
	"strings"
	"time"

	"github.com/probelab/dockprobe/coord"
)

// Position is a full toolhead position including the extruder axis.
type Position struct{ X, Y, Z, E float64 }

// Point returns the x/y/z portion of the position.
func (p Position) Point() coord.Point {
	return coord.Point{X: p.X, Y: p.Y, Z: p.Z}
}

// ToolheadStatus is a snapshot of the toolhead's homing bookkeeping.
type ToolheadStatus struct {
	// HomedAxes lists the axes with a valid origin, e.g. "xyz".
	HomedAxes string
}

// Homed reports whether the given axis has a valid origin.
func (s ToolheadStatus) Homed(axis byte) bool {
	return strings.IndexByte(s.HomedAxes, axis) >= 0
}

// A Toolhead represents the minimal motion interface the prober needs. The
// motion planner behind it is external; every move is synchronous and
// returns once physical motion is done.
type Toolhead interface {
	Position() Position

	// ManualMove moves to the requested coordinates at speed (mm/s). Nil
	// axes in the move are left unchanged.
	ManualMove(m coord.Move, speed float64) error

	Status(now time.Time) ToolheadStatus

	// SetPosition forces the toolhead's internal coordinates to pos,
	// marking the listed axes (0=x, 1=y, 2=z) as homed at that value.
	SetPosition(pos Position, homingAxes []int)

	// NoteZNotHomed clears the z axis from the homing bookkeeping without
	// moving anything.
	NoteZNotHomed()
}

// An EndstopQuerier reads the current trigger state of a digital input.
type EndstopQuerier interface {
	Query(now time.Time) bool
}

// An Endstop is a homing-capable digital input. HomeStart arms the trigger
// and returns a one-shot completion future; HomeWait blocks until the
// trigger fires (or the move completes) and reports the trigger time.
type Endstop interface {
	EndstopQuerier

	HomeStart(printTime, sampleTime float64, sampleCount int, restTime float64, triggered bool) <-chan struct{}
	HomeWait(homeEndTime float64) (float64, error)
}

// QuerierFunc adapts a function to the EndstopQuerier interface.
type QuerierFunc func(now time.Time) bool

func (f QuerierFunc) Query(now time.Time) bool { return f(now) }
