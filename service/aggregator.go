package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/layer-3/clearview/core"
	"github.com/layer-3/clearview/ports"
	"github.com/sirupsen/logrus"
)

// StatusSource reports the current session status
type StatusSource interface {
	Status() core.Status
}

// View is what the presentation layer renders
type View struct {
	Status   core.Status
	Snapshot core.BalanceSnapshot
}

// Aggregator keeps the latest four-tier balance snapshot of the
// authenticated session
type Aggregator struct {
	status StatusSource
	log    logrus.FieldLogger
	now    func() time.Time

	snapshot atomic.Pointer[core.BalanceSnapshot]

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAggregator creates an aggregator and registers it with auth
func NewAggregator(auth *Authenticator, log logrus.FieldLogger) *Aggregator {
	agg := newAggregator(auth, log)
	auth.AddListener(agg)
	return agg
}

func newAggregator(status StatusSource, log logrus.FieldLogger) *Aggregator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Aggregator{
		status: status,
		log:    log.WithField("component", "aggregator"),
		now:    time.Now,
	}
}

// View returns the status and the snapshot to display. The snapshot is
// unknown unless the session is authenticated.
func (a *Aggregator) View() View {
	st := a.status.Status()
	if st != core.StatusAuthenticated {
		return View{Status: st, Snapshot: core.UnknownSnapshot()}
	}

	snap := a.snapshot.Load()
	if snap == nil {
		return View{Status: st, Snapshot: core.UnknownSnapshot()}
	}
	return View{Status: st, Snapshot: *snap}
}

// SessionStarted begins consuming balance updates from conn
func (a *Aggregator) SessionStarted(conn ports.Conn, session core.Session) {
	a.mu.Lock()
	prev := a.stopLocked()
	a.gen++
	gen := a.gen
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	if prev != nil {
		<-prev
	}

	go a.watch(ctx, gen, conn, session, done)
}

// SessionEnded stops the watcher and reverts to the unknown snapshot
func (a *Aggregator) SessionEnded() {
	a.mu.Lock()
	done := a.stopLocked()
	a.gen++
	a.snapshot.Store(nil)
	a.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (a *Aggregator) stopLocked() chan struct{} {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	done := a.done
	a.done = nil
	return done
}

func (a *Aggregator) watch(ctx context.Context, gen uint64, conn ports.Conn, session core.Session, done chan struct{}) {
	defer close(done)

	log := a.log.WithField("wallet", session.Wallet.Hex())

	tiers, err := conn.Balances(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("failed to fetch initial balances")
	} else {
		a.apply(gen, tiers)
	}

	err = conn.Watch(ctx, func(t core.Tiers) {
		a.apply(gen, t)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("balance watch stopped")
	}
}

// apply substitutes the whole snapshot if gen is still current
func (a *Aggregator) apply(gen uint64, tiers core.Tiers) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.gen {
		return
	}
	snap := core.NewBalanceSnapshot(tiers, a.now())
	a.snapshot.Store(&snap)
}
