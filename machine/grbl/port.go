package grbl

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/probelab/dockprobe/coord"
	"github.com/probelab/dockprobe/machine"
)

// pollInterval is how often the port asks the controller for a status
// report.
const pollInterval = 100 * time.Millisecond

// Port implements the machine.Toolhead contract over a grbl controller.
// One Port owns one controller connection; all motion is synchronous, a
// move returns once the controller reports Idle again.
type Port struct {
	conn *Conn
	log  zerolog.Logger

	mx     sync.Mutex
	last   Status
	homed  string
	offset machine.Position // provisional origin from SetPosition
	probes []ProbeReport
	idleCh chan struct{}

	subMx sync.Mutex
	subs  []chan Status
}

var _ machine.Toolhead = &Port{}

// NewPort creates a Port over rw and starts its status polling.
func NewPort(rw io.ReadWriter, log zerolog.Logger) *Port {
	p := &Port{
		conn: NewConn(rw),
		log:  log,
	}
	go p.pushLoop()
	go func() {
		for range time.NewTicker(pollInterval).C {
			if err := p.conn.Realtime('?'); err != nil {
				return
			}
		}
	}()
	return p
}

// Close shuts down the controller connection.
func (p *Port) Close() error { return p.conn.Close() }

func (p *Port) pushLoop() {
	for line := range p.conn.Push() {
		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case '<':
			stat, err := parseStatus(p.lastStatus(), line)
			if err != nil {
				p.log.Error().Err(err).Str("line", line).Msg("parse status")
				continue
			}
			p.setStatus(*stat)
		case '[':
			prb, err := parseProbe(line)
			if err != nil {
				p.log.Debug().Str("line", line).Msg("ignoring push message")
				continue
			}
			p.mx.Lock()
			p.probes = append(p.probes, *prb)
			p.mx.Unlock()
		}
	}
}

func (p *Port) lastStatus() Status {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.last
}

func (p *Port) setStatus(stat Status) {
	p.mx.Lock()
	p.last = stat
	if stat.State == "Idle" && p.idleCh != nil {
		close(p.idleCh)
		p.idleCh = nil
	}
	p.mx.Unlock()

	p.subMx.Lock()
	for _, ch := range p.subs {
		select {
		case ch <- stat:
		default:
		}
	}
	p.subMx.Unlock()
}

// Subscribe returns a channel of status reports. Slow receivers miss
// intermediate reports rather than blocking the port.
func (p *Port) Subscribe() <-chan Status {
	ch := make(chan Status, 8)
	p.subMx.Lock()
	p.subs = append(p.subs, ch)
	p.subMx.Unlock()
	return ch
}

// waitIdle blocks until the next Idle status report.
func (p *Port) waitIdle() {
	p.mx.Lock()
	if p.last.State == "Idle" {
		p.mx.Unlock()
		return
	}
	if p.idleCh == nil {
		p.idleCh = make(chan struct{})
	}
	ch := p.idleCh
	p.mx.Unlock()
	<-ch
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// FormatMove renders a partial move as a machine-coordinate G-code line.
// Nil axes are omitted so the controller leaves them unchanged.
func FormatMove(m coord.Move, speed float64) string {
	var b strings.Builder
	b.WriteString("G53 G1")
	if m.X != nil {
		b.WriteString(" X" + fmtFloat(*m.X))
	}
	if m.Y != nil {
		b.WriteString(" Y" + fmtFloat(*m.Y))
	}
	if m.Z != nil {
		b.WriteString(" Z" + fmtFloat(*m.Z))
	}
	// grbl feed rates are mm/min
	b.WriteString(" F" + fmtFloat(speed*60))
	return b.String()
}

// Position returns the last reported machine position.
func (p *Port) Position() machine.Position {
	p.mx.Lock()
	defer p.mx.Unlock()
	return machine.Position{
		X: p.last.MPos.X + p.offset.X,
		Y: p.last.MPos.Y + p.offset.Y,
		Z: p.last.MPos.Z + p.offset.Z,
	}
}

// ManualMove issues a move and blocks until physical motion completes.
func (p *Port) ManualMove(m coord.Move, speed float64) error {
	if err := p.conn.Run(FormatMove(m, speed)); err != nil {
		return err
	}
	p.waitIdle()
	return nil
}

// Status reports the homing bookkeeping. grbl does not report homed axes,
// so the port tracks them: a successful Home marks all axes, a reset or
// NoteZNotHomed clears them.
func (p *Port) Status(now time.Time) machine.ToolheadStatus {
	p.mx.Lock()
	defer p.mx.Unlock()
	return machine.ToolheadStatus{HomedAxes: p.homed}
}

// Home runs the controller homing cycle and marks all axes homed.
func (p *Port) Home() error {
	if err := p.conn.Run("$H"); err != nil {
		return err
	}
	p.waitIdle()
	p.mx.Lock()
	p.homed = "xyz"
	p.offset = machine.Position{}
	p.mx.Unlock()
	return nil
}

// SetPosition forces a provisional origin for the listed axes. grbl has no
// direct position override, so the port keeps the offset in its own
// bookkeeping and treats the listed axes as homed at that value.
func (p *Port) SetPosition(pos machine.Position, homingAxes []int) {
	p.mx.Lock()
	defer p.mx.Unlock()
	for _, ax := range homingAxes {
		switch ax {
		case 0:
			p.offset.X = pos.X - p.last.MPos.X
			p.homed = addAxis(p.homed, "x")
		case 1:
			p.offset.Y = pos.Y - p.last.MPos.Y
			p.homed = addAxis(p.homed, "y")
		case 2:
			p.offset.Z = pos.Z - p.last.MPos.Z
			p.homed = addAxis(p.homed, "z")
		}
	}
}

// NoteZNotHomed drops z from the homing bookkeeping without moving.
func (p *Port) NoteZNotHomed() {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.homed = strings.ReplaceAll(p.homed, "z", "")
}

func addAxis(homed, ax string) string {
	if strings.Contains(homed, ax) {
		return homed
	}
	return homed + ax
}

// PinQuerier returns a querier for one controller input, identified by its
// Pn: report letter (P for the probe input, D for a door/sense input). The
// pin reads true while the controller reports it active.
func (p *Port) PinQuerier(letter byte) machine.EndstopQuerier {
	return machine.QuerierFunc(func(now time.Time) bool {
		p.mx.Lock()
		defer p.mx.Unlock()
		return strings.IndexByte(p.last.Pins, letter) >= 0
	})
}

// ProbeZ performs a straight z probing move and returns the trigger
// position.
func (p *Port) ProbeZ(maxTravel, feedRate float64) (machine.Position, error) {
	p.mx.Lock()
	p.probes = nil
	p.mx.Unlock()

	line := fmt.Sprintf("G38.2 G91 Z%s F%s", fmtFloat(-maxTravel), fmtFloat(feedRate*60))
	if err := p.conn.Run(line); err != nil {
		return machine.Position{}, err
	}
	p.waitIdle()

	p.mx.Lock()
	defer p.mx.Unlock()
	if len(p.probes) == 0 {
		return machine.Position{}, errors.New("no probe data returned")
	}
	prb := p.probes[0]
	if !prb.Valid {
		return machine.Position{}, errors.New("probe move did not trigger")
	}
	return machine.Position{X: prb.X, Y: prb.Y, Z: prb.Z + p.offset.Z}, nil
}
