package dock

import (
	"github.com/rs/zerolog"

	"github.com/probelab/dockprobe/machine"
)

// multiMode tracks where a multi-point probing session is in its lifecycle.
type multiMode int

const (
	multiOff multiMode = iota
	multiFirst
	multiOn
)

// A Session amortizes attach/dock motion across a multi-point probing
// session: the probe attaches once before the first point, stays attached
// for every subsequent point, and docks once at session end.
type Session struct {
	ctrl *Controller
	log  zerolog.Logger

	mode      multiMode
	returnPos *machine.Position

	triggerDone <-chan struct{}
}

func NewSession(ctrl *Controller, log zerolog.Logger) *Session {
	return &Session{ctrl: ctrl, log: log}
}

// Begin starts a multi-point session: the current toolhead position is
// recorded as the session return position and the probe is attached.
func (s *Session) Begin() error {
	s.mode = multiFirst

	// The return position is captured now so the final dock can move
	// back to where probing started rather than finishing next to the
	// dock.
	pos := s.ctrl.th.Position()
	s.returnPos = &pos

	return s.ctrl.AutoAttach(nil)
}

// Prepare is called once before each individual probe measurement. The
// attach check runs only for the first point of a session; later points
// skip it entirely.
func (s *Session) Prepare() error {
	if s.mode == multiOff || s.mode == multiFirst {
		if s.returnPos == nil {
			pos := s.ctrl.th.Position()
			s.returnPos = &pos
		}
		if err := s.ctrl.AutoAttach(nil); err != nil {
			return err
		}
	}
	if s.mode == multiFirst {
		s.mode = multiOn
	}
	return nil
}

// SetTriggerComplete hands the session the one-shot future the homing
// subsystem resolves when the probe trigger measurement is done. Finish
// blocks on it exactly once.
func (s *Session) SetTriggerComplete(done <-chan struct{}) {
	s.triggerDone = done
}

// Finish is paired with each Prepare. It waits for the trigger measurement
// to complete; docking happens only when no session is in progress, i.e.
// once at session end rather than after every point.
func (s *Session) Finish() error {
	if s.triggerDone != nil {
		<-s.triggerDone
		s.triggerDone = nil
	}
	if s.mode != multiOff {
		return nil
	}
	// Move to the z hop first so the probe isn't left triggered if
	// there's no probe/dock sensor to verify docking.
	if err := s.ctrl.alignZ(); err != nil {
		return err
	}
	return s.ctrl.AutoDock(s.returnPos)
}

// End closes the session: the mode drops back to off and the probe docks,
// returning to the recorded session position.
func (s *Session) End() error {
	s.mode = multiOff

	if err := s.ctrl.alignZ(); err != nil {
		return err
	}
	err := s.ctrl.AutoDock(s.returnPos)
	s.returnPos = nil
	return err
}
