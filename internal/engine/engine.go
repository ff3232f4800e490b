// Package engine wires together §5's four cooperative modules — Timer,
// Signaling (C1+C2), StateMachine (C6), API (C7) — into one running
// gistd process. Each module owns a single processing loop
// communicating by typed channels/queues; nothing here holds a lock
// across a blocking call.
package engine

import (
	"context"
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"gist/internal/api"
	"gist/internal/config"
	"gist/internal/ma"
	"gist/internal/metrics"
	"gist/internal/routing"
	"gist/internal/secret"
	"gist/internal/statemachine"
	"gist/internal/telemetry"
	"gist/internal/transport"
	"gist/internal/wire"
	"gist/internal/wireid"
)

// Engine owns every long-lived component of a running gistd instance:
// the routing table, MA arena, secret manager, transports, the state
// machine, the API dispatcher, and the Timer module driving them all.
type Engine struct {
	cfg *config.Config

	table   *routing.Table
	mas     *ma.Arena
	secrets *secret.Manager

	qmode     *transport.QModeSocket
	mux       *transport.Multiplexer
	listeners []*transport.Listener

	machine *statemachine.Machine
	timer   *Timer

	dispatcher *api.Dispatcher
	uds        *api.UDSServer

	metrics *metrics.Metrics
	log     *logrus.Entry

	stop   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs an Engine from cfg. It binds the Q-mode socket and
// TCP/SCTP C-mode listeners on QModePort+1 (no TLS listener is bound)
// but does not yet start any processing
// loop; call Run for that.
func New(cfg *config.Config, log *logrus.Entry, reg prometheus.Registerer) (*Engine, error) {
	localPeerID := wireid.New()
	localAddr, err := resolveLocalAddr(cfg.GIST.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("engine: resolving local address: %w", err)
	}

	qmodeAddr := fmt.Sprintf("%s:%d", cfg.GIST.ListenAddr, cfg.GIST.QModePort)
	qmode, err := transport.ListenQMode(qmodeAddr)
	if err != nil {
		return nil, fmt.Errorf("engine: binding Q-mode socket: %w", err)
	}

	mux := transport.NewMultiplexer(qmode)

	var listeners []*transport.Listener
	for _, proto := range []wire.MAProtocol{wire.MAProtoTCP, wire.MAProtoSCTP} {
		l, err := transport.Listen(proto, net.JoinHostPort(cfg.GIST.ListenAddr, fmt.Sprint(cfg.GIST.QModePort+1)), nil)
		if err != nil {
			log.WithError(err).WithField("protocol", proto).Warn("engine: C-mode listener unavailable, continuing without it")
			continue
		}
		listeners = append(listeners, l)
	}

	secrets, err := secret.NewManager(cfg.GIST.SecretGenerationCount, cfg.GIST.SecretRotationInterval())
	if err != nil {
		return nil, fmt.Errorf("engine: constructing secret manager: %w", err)
	}

	table := routing.NewTable()
	mas := ma.NewArena()

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	dispatcher := api.NewDispatcher(log)

	machine := statemachine.New(&cfg.GIST, table, mas, secrets, mux, qmode, localPeerID, localAddr, dispatcher, log, m)
	dispatcher.AttachMachine(machine)

	timer := NewTimer(machine, mas, secrets, cfg.GIST.RefreshInterval/4, log)

	var uds *api.UDSServer
	if cfg.API.UDSPath != "" {
		l, err := transport.ListenUDS(cfg.API.UDSPath)
		if err != nil {
			log.WithError(err).Warn("engine: UDS API socket unavailable, external NSLP daemons cannot attach")
		} else {
			uds = api.NewUDSServer(l, dispatcher, log)
			dispatcher.AttachUDS(uds)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		table:      table,
		mas:        mas,
		secrets:    secrets,
		qmode:      qmode,
		mux:        mux,
		listeners:  listeners,
		machine:    machine,
		timer:      timer,
		dispatcher: dispatcher,
		uds:        uds,
		metrics:    m,
		log:        log,
		stop:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Dispatcher exposes the API dispatcher so NSLP managers (natfw, qos)
// can register against this Engine's machine.
func (e *Engine) Dispatcher() *api.Dispatcher { return e.dispatcher }

// AddSweeper registers an additional time-driven cleanup pass (e.g. an
// NSLP Manager's session-expiry sweep) with the Timer module.
func (e *Engine) AddSweeper(s sweeper) {
	e.timer.sweepers = append(e.timer.sweepers, s)
}

// Run starts every module's processing loop: the Timer module, the
// Q-mode datagram reader, each C-mode listener's accept loop, the
// Multiplexer's inbound/event fan-in, and (if configured) the UDS API
// server. It blocks until Stop is called.
func (e *Engine) Run() {
	go e.timer.Run(e.stop)
	go e.readQMode()
	for _, l := range e.listeners {
		go e.acceptLoop(l)
	}
	go e.fanInMultiplexer()
	if e.uds != nil {
		go func() {
			if err := e.uds.Serve(); err != nil {
				e.log.WithError(err).Warn("engine: UDS API server stopped")
			}
		}()
	}
	<-e.stop
}

// Stop signals every running module loop to exit.
func (e *Engine) Stop() {
	close(e.stop)
	e.cancel()
	e.qmode.Close()
	for _, l := range e.listeners {
		_ = l.Close()
	}
}

func (e *Engine) readQMode() {
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		dg, err := e.qmode.Receive(e.ctx)
		if err != nil {
			return
		}
		pdu, perr := wire.DecodeQMode(dg.Payload)
		if perr != nil {
			continue // malformed Q-mode traffic: drop, no state change (§7)
		}
		e.machine.HandleInbound(transport.Inbound{
			PDU:           pdu,
			Encapsulation: transport.EncapQMode,
			PeerAddr:      dg.From,
			ObservedTTL:   dg.TTL,
		})
	}
}

func (e *Engine) acceptLoop(l *transport.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-e.stop:
				return
			default:
				e.log.WithError(err).Warn("engine: C-mode accept failed")
				return
			}
		}
		assoc := ma.New(wireid.Nil, wireid.Nil, conn.RemoteAddr().String(), wire.Profile{protocolFor(conn)}, e.cfg.GIST.MAHoldTime)
		e.mas.Put(assoc)
		e.mux.RegisterConn(assoc.IDString(), conn)
	}
}

func protocolFor(c transport.Conn) wire.MAProtocol { return c.Protocol() }

func (e *Engine) fanInMultiplexer() {
	for {
		select {
		case <-e.stop:
			return
		case in := <-e.mux.Inbound:
			e.machine.HandleInbound(in)
		case ev := <-e.mux.Events:
			e.handleTransportEvent(ev)
		}
	}
}

func (e *Engine) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.ConnDown, transport.ConnError:
		e.machine.DropQueue(ev.MAID)
		e.mas.Remove(ev.MAID)
		e.log.WithField("ma_id", ev.MAID).WithError(ev.Err).Debug("engine: messaging association connection went down")
	}
}

func resolveLocalAddr(listenAddr string) (net.IP, error) {
	if listenAddr == "" || listenAddr == "0.0.0.0" {
		return net.IPv4zero, nil
	}
	ip := net.ParseIP(listenAddr)
	if ip == nil {
		return nil, fmt.Errorf("invalid listen address %q", listenAddr)
	}
	return ip, nil
}

// WithJournal turns on the opt-in benchmark journal fixture on the
// underlying state machine (Design Note §9), returning the Engine for
// chaining.
func (e *Engine) WithJournal(j *telemetry.Journal) *Engine {
	e.machine = e.machine.WithJournal(j)
	return e
}
