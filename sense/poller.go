// Package sense resolves noisy digital sensor inputs into a reliable
// probe attachment status.
package sense

import (
	"time"

	"github.com/probelab/dockprobe/machine"
)

// PollInterval is how long a sampled pin state stays valid. Attachment
// status derived from the pins shares the same lifetime.
const PollInterval = 100 * time.Millisecond

// A Poller is a rate-limited, cached reader of one digital input. Repeated
// reads within PollInterval return the same sample without touching the
// underlying pin.
type Poller struct {
	query machine.EndstopQuerier

	sampled    bool
	lastSample bool
	lastTime   time.Time
}

func NewPoller(q machine.EndstopQuerier) *Poller {
	return &Poller{query: q}
}

// Read returns the pin state at now, sampling the underlying input only
// when no sample exists or the last one is older than PollInterval.
func (p *Poller) Read(now time.Time) bool {
	if !p.sampled || now.After(p.lastTime.Add(PollInterval)) {
		p.lastTime = now
		p.lastSample = p.query.Query(now)
		p.sampled = true
	}
	return p.lastSample
}

// ReadInverted is the logical negation of Read, sharing the same cache.
func (p *Poller) ReadInverted(now time.Time) bool {
	return !p.Read(now)
}
