package statemachine

import (
	"time"

	"gist/internal/routing"
)

// Tick is driven by the Timer module (§5) on its own periodic wakeup.
// It retries or abandons Awaiting-Response/Awaiting-Refresh entries
// (§4.6 step 2/4) and refreshes or evicts Established entries (§4.3).
// routing.Table.Tick never mutates entries itself, so all of that
// policy lives here.
func (m *Machine) Tick(now time.Time) {
	for _, exp := range m.table.Tick(now) {
		e := exp.Entry
		switch e.State {
		case routing.AwaitingResponse:
			m.retry(e, false)
		case routing.AwaitingRefresh:
			m.retry(e, true)
		case routing.Established:
			m.refreshOrEvict(e, exp.Event)
		}
	}
}

// retry re-sends a Query for an in-flight handshake (initial or
// refresh) and, past NoResponseMaxAttempts, abandons it (§4.6 step 4).
// A failed initial handshake surfaces MessageStatus; a failed refresh
// surfaces NetworkNotification, since the NSLP previously believed
// routing state existed.
func (m *Machine) retry(e *routing.Entry, isRefresh bool) {
	if e.NoResponseRetries >= m.cfg.NoResponseMaxAttempts {
		if isRefresh {
			m.deliverer.NetworkNotification(e.SID, NotifyRoutingStateChange)
		} else {
			m.deliverer.MessageStatus(e.NSLPMessageHandle, StatusUnableToEstablishRoutingState)
		}
		if m.metrics != nil {
			m.metrics.IncHandshakeFailure("no_response")
		}
		m.releaseMA(e.MAID)
		m.table.Delete(e.Key)
		return
	}
	_ = m.issueQuery(e, e.NoResponseRetries+1)
}

// refreshOrEvict fires on an Established entry's periodic timer
// (§4.3): a refresh-interval expiry re-opens the handshake; an
// RS-validity expiry without ever completing one declares the flow
// dead.
func (m *Machine) refreshOrEvict(e *routing.Entry, event routing.ExpiryEvent) {
	if event == routing.RSValidityFired {
		m.deliverer.NetworkNotification(e.SID, NotifyRoutingStateChange)
		m.releaseMA(e.MAID)
		m.table.Delete(e.Key)
		return
	}
	e.State = routing.AwaitingRefresh
	m.table.Insert(e)
	_ = m.issueQuery(e, 0)
}
