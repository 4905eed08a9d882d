package main

import (
	"sync"

	"github.com/probelab/dockprobe/dock"
	"github.com/probelab/dockprobe/machine"
	"github.com/probelab/dockprobe/sense"
)

// probeService serializes access to the docking controller. The controller
// and verifier keep their state on a single control flow with no internal
// locking, so every daemon entry point (HTTP handlers, the status loop, the
// policy watcher) goes through this mutex.
type probeService struct {
	mx   sync.Mutex
	ctrl *dock.Controller
}

func newProbeService(ctrl *dock.Controller) *probeService {
	return &probeService{ctrl: ctrl}
}

// run executes fn with exclusive controller access, holding the lock for
// the whole operation including any attach/dock motion inside it.
func (s *probeService) run(fn func(ctrl *dock.Controller) error) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return fn(s.ctrl)
}

func (s *probeService) queryStatus() sense.Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.ctrl.QueryStatus()
}

func (s *probeService) lastStatus() sense.Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.ctrl.LastStatus()
}

func (s *probeService) attach(pos *machine.Position) error {
	return s.run(func(ctrl *dock.Controller) error { return ctrl.Attach(pos) })
}

func (s *probeService) dock(pos *machine.Position) error {
	return s.run(func(ctrl *dock.Controller) error { return ctrl.Dock(pos) })
}

func (s *probeService) autoAttachDock() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.ctrl.AutoAttachDock()
}

func (s *probeService) setAutoAttachDock(v bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.ctrl.AutoAttachDock() != v {
		s.ctrl.SetAutoAttachDock(v)
	}
}

func (s *probeService) handleReady() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.ctrl.HandleReady()
}
