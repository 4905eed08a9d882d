package coord

import (
	"fmt"
)

// A Waypoint is one stop along an attach or dock route. The Z component is
// optional; a waypoint without Z leaves the z axis wherever it is.
type Waypoint struct {
	X, Y float64

	Z    float64
	HasZ bool
}

// MakeWaypoint builds a Waypoint from a 2 or 3 element coordinate list.
func MakeWaypoint(coords []float64) (Waypoint, error) {
	var w Waypoint
	switch len(coords) {
	case 2:
		w.X, w.Y = coords[0], coords[1]
	case 3:
		w.X, w.Y, w.Z = coords[0], coords[1], coords[2]
		w.HasZ = true
	default:
		return w, fmt.Errorf("invalid number of coordinates: %d", len(coords))
	}
	return w, nil
}

// Move returns the move request for this waypoint. Z is left nil for 2D
// waypoints so the axis is untouched.
func (w Waypoint) Move() Move {
	m := Move{X: &w.X, Y: &w.Y}
	if w.HasZ {
		m.Z = &w.Z
	}
	return m
}

// A Route is the ordered waypoint sequence the toolhead follows to couple or
// decouple the probe.
type Route []Waypoint

// ParseRoute converts raw coordinate lists into a Route.
func ParseRoute(vals [][]float64) (Route, error) {
	r := make(Route, 0, len(vals))
	for i, coords := range vals {
		w, err := MakeWaypoint(coords)
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		r = append(r, w)
	}
	return r, nil
}

// RequiresZ reports whether any waypoint carries a Z component.
func (r Route) RequiresZ() bool {
	for _, w := range r {
		if w.HasZ {
			return true
		}
	}
	return false
}

// A Move is a partial position request; nil axes are left unchanged.
type Move struct {
	X, Y, Z *float64
}

// MoveXY returns a Move targeting only the x and y axes.
func MoveXY(x, y float64) Move {
	return Move{X: &x, Y: &y}
}

// MoveZ returns a Move targeting only the z axis.
func MoveZ(z float64) Move {
	return Move{Z: &z}
}
