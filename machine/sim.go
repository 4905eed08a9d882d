package machine

import (
	"strings"
	"sync"
	"time"

	"github.com/probelab/dockprobe/coord"
)

// SimMove is one recorded move request.
type SimMove struct {
	Move  coord.Move
	Speed float64
}

// Sim is an in-memory Toolhead. It tracks position and homing state the way
// a real controller would and records every move it is asked to make. The
// daemon uses it for dry runs; tests use it to assert motion sequences.
type Sim struct {
	mx sync.Mutex

	pos   Position
	homed string
	moves []SimMove
}

var _ Toolhead = &Sim{}

func NewSim() *Sim {
	return &Sim{homed: "xyz"}
}

func (s *Sim) Position() Position {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.pos
}

func (s *Sim) ManualMove(m coord.Move, speed float64) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if m.X != nil {
		s.pos.X = *m.X
	}
	if m.Y != nil {
		s.pos.Y = *m.Y
	}
	if m.Z != nil {
		s.pos.Z = *m.Z
	}
	s.moves = append(s.moves, SimMove{Move: m, Speed: speed})
	return nil
}

func (s *Sim) Status(now time.Time) ToolheadStatus {
	s.mx.Lock()
	defer s.mx.Unlock()
	return ToolheadStatus{HomedAxes: s.homed}
}

func (s *Sim) SetPosition(pos Position, homingAxes []int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.pos = pos
	for _, ax := range homingAxes {
		if ax < 0 || ax > 2 {
			continue
		}
		name := "xyz"[ax : ax+1]
		if !strings.Contains(s.homed, name) {
			s.homed += name
		}
	}
}

func (s *Sim) NoteZNotHomed() {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]byte, 0, len(s.homed))
	for i := 0; i < len(s.homed); i++ {
		if s.homed[i] == 'z' {
			continue
		}
		out = append(out, s.homed[i])
	}
	s.homed = string(out)
}

// SetHomed overrides the homed axes set.
func (s *Sim) SetHomed(axes string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.homed = axes
}

// MoveTo jumps the simulated position without recording a move.
func (s *Sim) MoveTo(pos Position) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.pos = pos
}

// Moves returns all recorded move requests.
func (s *Sim) Moves() []SimMove {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]SimMove(nil), s.moves...)
}

// ResetMoves clears the recorded move log.
func (s *Sim) ResetMoves() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.moves = nil
}
