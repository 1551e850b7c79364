// internal/reach/reach.go
package reach

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Checker reports whether the network currently looks reachable.
type Checker interface {
	Reachable() bool
}

// Static is a fixed answer, used when probing cannot be set up. The core
// fails open: blocking all polling on a missing reachability signal would be
// worse than occasionally polling while offline.
type Static bool

func (s Static) Reachable() bool { return bool(s) }

// Prober derives reachability by periodically dialing a well-known host.
type Prober struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	reachable atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewProber builds a prober against addr (host:port). It starts optimistic
// and begins probing only when Start is called.
func NewProber(addr string, interval time.Duration, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	p := &Prober{
		addr:     addr,
		interval: interval,
		timeout:  5 * time.Second,
		log:      log,
		stopCh:   make(chan struct{}),
	}
	p.reachable.Store(true)
	return p
}

// Start launches the probe loop.
func (p *Prober) Start() {
	go p.loop()
}

// Stop halts the probe loop. The last observed state remains visible.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Prober) Reachable() bool {
	return p.reachable.Load()
}

func (p *Prober) loop() {
	p.probe()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.probe()
		}
	}
}

func (p *Prober) probe() {
	conn, err := net.DialTimeout("tcp", p.addr, p.timeout)
	if err != nil {
		if p.reachable.CompareAndSwap(true, false) {
			p.log.Warn("network looks unreachable", "addr", p.addr, "error", err)
		}
		return
	}
	_ = conn.Close()
	if p.reachable.CompareAndSwap(false, true) {
		p.log.Info("network reachable again", "addr", p.addr)
	}
}

var _ Checker = (*Prober)(nil)
var _ Checker = Static(true)
