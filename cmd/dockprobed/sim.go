package main

import (
	"time"

	"github.com/probelab/dockprobe/coord"
	"github.com/probelab/dockprobe/dock"
	"github.com/probelab/dockprobe/machine"
)

// simSensors derives attachment state for a Sim toolhead from its recorded
// motion. The probe counts as picked up once the toolhead has driven through
// the end of the attach route, and as stowed once it has driven through the
// end of the dock route. A fresh Sim starts docked.
type simSensors struct {
	sim    *machine.Sim
	attach coord.Route
	dock   coord.Route
}

func newSimSensors(sim *machine.Sim, cfg dock.Config) *simSensors {
	return &simSensors{sim: sim, attach: cfg.AttachRoute, dock: cfg.DockRoute}
}

func (s *simSensors) attachQuerier() machine.EndstopQuerier {
	return machine.QuerierFunc(func(now time.Time) bool { return s.attached() })
}

func (s *simSensors) dockQuerier() machine.EndstopQuerier {
	return machine.QuerierFunc(func(now time.Time) bool { return !s.attached() })
}

func (s *simSensors) attached() bool {
	attachIdx := -1
	dockIdx := -1
	var curX, curY float64
	for i, m := range s.sim.Moves() {
		prevX, prevY := curX, curY
		if m.Move.X != nil {
			curX = *m.Move.X
		}
		if m.Move.Y != nil {
			curY = *m.Move.Y
		}
		if routeEndsAt(s.attach, prevX, prevY, curX, curY) {
			attachIdx = i
		}
		if routeEndsAt(s.dock, prevX, prevY, curX, curY) {
			dockIdx = i
		}
	}
	return attachIdx > dockIdx
}

// routeEndsAt reports whether a move from (prevX,prevY) to (x,y) completes
// the final leg of the route. Matching the last two waypoints keeps mirrored
// attach and dock routes apart, since they share single positions.
func routeEndsAt(r coord.Route, prevX, prevY, x, y float64) bool {
	last := r[len(r)-1]
	if x != last.X || y != last.Y {
		return false
	}
	if len(r) == 1 {
		return true
	}
	from := r[len(r)-2]
	return prevX == from.X && prevY == from.Y
}
