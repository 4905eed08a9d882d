package spjs

import (
	"io"
	"strconv"
	"sync"
)

// PortRW bridges one SPJS-managed serial port to an io.ReadWriter, so a
// controller connection can run unchanged over the network. Reads deliver
// the port's data frames; writes are sent with `send`.
type PortRW struct {
	sp   *SPJS
	name string
	baud string

	mx     sync.Mutex
	buf    []byte
	notify chan struct{}
}

var _ io.ReadWriter = &PortRW{}

// OpenPort registers interest in the named port. The client asks the
// server to open it (and re-open it after reconnects) when it shows up in
// the port list.
func (sp *SPJS) OpenPort(name string, baud int) *PortRW {
	p := &PortRW{
		sp:     sp,
		name:   name,
		baud:   strconv.Itoa(baud),
		notify: make(chan struct{}, 1),
	}
	sp.mx.Lock()
	sp.ports[name] = p
	sp.mx.Unlock()

	go sp.WriteString("list")
	return p
}

func (p *PortRW) deliver(data string) {
	p.mx.Lock()
	p.buf = append(p.buf, data...)
	p.mx.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Read blocks until the port has delivered data.
func (p *PortRW) Read(b []byte) (int, error) {
	for {
		p.mx.Lock()
		if len(p.buf) > 0 {
			n := copy(b, p.buf)
			p.buf = p.buf[n:]
			p.mx.Unlock()
			return n, nil
		}
		p.mx.Unlock()
		<-p.notify
	}
}

// Write sends data to the port via the server.
func (p *PortRW) Write(b []byte) (int, error) {
	p.sp.WriteString("send " + p.name + " " + string(b))
	return len(b), nil
}
