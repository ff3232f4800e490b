package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"gist/internal/ma"
	"gist/internal/secret"
	"gist/internal/statemachine"
)

// sweeper is anything with a periodic time-driven cleanup pass (natfw
// and qos Managers both implement this).
type sweeper interface {
	Sweep(now time.Time)
}

// Timer is the Timer module of §5's cooperative concurrency model: a
// single goroutine loop that periodically drives every time-based
// state transition in the system — the state machine's retry/refresh/
// eviction policy (C6), MA idle eviction (C2's arena), and secret-key
// rotation (C4) — rather than scattering individual time.AfterFunc
// timers across those packages. Tick granularity is configurable; a
// smaller tick trades CPU for more precise timer firing.
type Timer struct {
	machine  *statemachine.Machine
	mas      *ma.Arena
	secrets  *secret.Manager
	sweepers []sweeper
	tick     time.Duration
	log      *logrus.Entry

	lastRotate time.Time
}

// NewTimer constructs a Timer driving machine/mas/secrets and any
// additional NSLP sweepers (natfw.Manager, qos.Manager) at the given
// tick interval.
func NewTimer(machine *statemachine.Machine, mas *ma.Arena, secrets *secret.Manager, tick time.Duration, log *logrus.Entry, sweepers ...sweeper) *Timer {
	return &Timer{
		machine:  machine,
		mas:      mas,
		secrets:  secrets,
		sweepers: sweepers,
		tick:     tick,
		log:      log,
	}
}

// Run blocks, firing the Timer module's loop until stop is closed.
func (t *Timer) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	t.lastRotate = time.Now()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			t.fire(now)
		}
	}
}

func (t *Timer) fire(now time.Time) {
	t.machine.Tick(now)

	if evicted := t.mas.Sweep(now); len(evicted) > 0 {
		t.log.WithField("count", len(evicted)).Debug("swept idle messaging associations")
	}

	if now.Sub(t.lastRotate) >= t.secrets.RotateEvery() {
		if err := t.secrets.Rotate(); err != nil {
			t.log.WithError(err).Warn("secret rotation failed")
		}
		t.lastRotate = now
	}

	for _, s := range t.sweepers {
		s.Sweep(now)
	}
}
