package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/layer-3/clearview/core"
	"github.com/layer-3/clearview/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultStepTimeout bounds each suspending step of an attempt
	DefaultStepTimeout = 30 * time.Second

	// DefaultCleanupTimeout bounds best-effort teardown of a connection
	DefaultCleanupTimeout = 5 * time.Second

	attemptKey = "connect"
)

// Listener is notified when an authenticated session starts and ends
type Listener interface {
	SessionStarted(conn ports.Conn, session core.Session)
	SessionEnded()
}

// SessionState is a consistent read of the authenticator
type SessionState struct {
	Status  core.Status
	Error   string
	Wallet  common.Address
	Session *core.Session
}

// Authenticator drives the ClearNode authentication lifecycle
type Authenticator struct {
	wallet ports.Wallet
	dialer ports.Dialer
	keys   ports.KeyStore
	events ports.EventPublisher
	log    logrus.FieldLogger

	stepTimeout    time.Duration
	cleanupTimeout time.Duration

	group singleflight.Group

	// lifecycle serializes handle installation and teardown so listeners
	// always see started/ended in order
	lifecycle sync.Mutex

	mu      sync.Mutex
	attempt uint64
	// epoch advances on every Disconnect; a call registered under an
	// older epoch must not start
	epoch     uint64
	pending   int
	step      core.Status
	outcome   core.Outcome
	lastErr   error
	wallAddr  common.Address
	conn      ports.Conn
	session   *core.Session
	cancel    context.CancelFunc
	listeners []Listener
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Authenticator) {
		a.log = log
	}
}

// WithEventPublisher publishes status changes through p
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(a *Authenticator) {
		a.events = p
	}
}

// WithStepTimeout overrides DefaultStepTimeout. Zero disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		a.stepTimeout = d
	}
}

// WithCleanupTimeout overrides DefaultCleanupTimeout
func WithCleanupTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		a.cleanupTimeout = d
	}
}

// NewAuthenticator creates a new authenticator. wallet and dialer may be
// nil; the precondition check reports them when an attempt starts.
func NewAuthenticator(wallet ports.Wallet, dialer ports.Dialer, keys ports.KeyStore, opts ...Option) *Authenticator {
	a := &Authenticator{
		wallet:         wallet,
		dialer:         dialer,
		keys:           keys,
		log:            logrus.StandardLogger(),
		stepTimeout:    DefaultStepTimeout,
		cleanupTimeout: DefaultCleanupTimeout,
		step:           core.StatusIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithField("component", "authenticator")
	return a
}

// AddListener registers l for session start/end notifications
func (a *Authenticator) AddListener(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// Status returns the derived status
func (a *Authenticator) Status() core.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return core.DeriveStatus(a.outcome, a.step)
}

// State returns the status together with the error message and session
func (a *Authenticator) State() SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := SessionState{
		Status: core.DeriveStatus(a.outcome, a.step),
		Wallet: a.wallAddr,
	}
	if state.Status == core.StatusError && a.lastErr != nil {
		state.Error = a.lastErr.Error()
	}
	if a.session != nil {
		s := *a.session
		state.Session = &s
	}
	return state
}

// ConnectAndAuthenticate runs the authentication sequence. Calls made
// while an attempt is in flight join it instead of starting another one and
// receive its result. The attempt is not bound to the caller's
// cancellation; a caller that gives up returns ctx.Err() while the attempt
// continues. Use Disconnect to abort it.
func (a *Authenticator) ConnectAndAuthenticate(ctx context.Context) error {
	epoch := a.register()
	defer a.unregister()

	ch := a.group.DoChan(attemptKey, func() (interface{}, error) {
		return nil, a.run(context.WithoutCancel(ctx), epoch)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// register marks a call as pending and returns the epoch it belongs to
func (a *Authenticator) register() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending++
	return a.epoch
}

func (a *Authenticator) unregister() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending--
}

func (a *Authenticator) run(parent context.Context, epoch uint64) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	token, ok := a.begin(epoch, cancel)
	if !ok {
		return core.ErrAttemptAborted
	}
	log := a.log.WithField("attempt", token)

	// 1. Precondition check
	wallet, err := a.precondition(ctx)
	if err != nil {
		return a.fail(token, nil, err)
	}
	log = log.WithField("wallet", wallet.Hex())

	a.mu.Lock()
	if token == a.attempt {
		a.wallAddr = wallet
	}
	a.mu.Unlock()

	// 2. Session key, local only
	key, degraded, err := a.acquireKey(ctx, wallet)
	if err != nil {
		return a.fail(token, nil, core.NewError(core.KindPrecondition, "session key", err))
	}

	// 3. Connect
	if !a.advance(token, core.StatusConnecting) {
		return core.ErrAttemptAborted
	}
	conn, err := a.dial(ctx, wallet, key)
	if err != nil {
		return a.fail(token, nil, err)
	}

	// 4. Challenge and wallet signature
	if !a.advance(token, core.StatusSigning) {
		a.cleanup(conn)
		return core.ErrAttemptAborted
	}
	challenge, signature, err := a.sign(ctx, conn)
	if err != nil {
		return a.fail(token, conn, err)
	}

	// 5. Submit the signed challenge
	if !a.advance(token, core.StatusAuthenticating) {
		a.cleanup(conn)
		return core.ErrAttemptAborted
	}
	grant, err := a.authenticate(ctx, conn, challenge, signature)
	if err != nil {
		return a.fail(token, conn, err)
	}

	// 6. Install the handle
	session := core.Session{
		ID:              uuid.NewString(),
		Wallet:          wallet,
		SessionKey:      key,
		Grant:           grant,
		Degraded:        degraded,
		AuthenticatedAt: time.Now(),
	}
	if !a.succeed(token, conn, session) {
		a.cleanup(conn)
		return core.ErrAttemptAborted
	}

	log.WithField("session_key", key.Address().Hex()).Info("session authenticated")
	return nil
}

func (a *Authenticator) precondition(ctx context.Context) (common.Address, error) {
	if a.wallet == nil {
		return common.Address{}, core.NewError(core.KindPrecondition, "wallet", core.ErrWalletUnavailable)
	}
	if a.dialer == nil {
		return common.Address{}, core.NewError(core.KindPrecondition, "clearnode client", core.ErrClientUnavailable)
	}

	addr, err := a.wallet.Address(ctx)
	if err != nil {
		return common.Address{}, core.NewError(core.KindPrecondition, "wallet address", err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, core.NewError(core.KindPrecondition, "wallet address", core.ErrWalletUnavailable)
	}
	return addr, nil
}

// acquireKey loads the wallet's persisted session key or creates one. When
// the store is unavailable a fresh in-memory key is used and degraded is
// true.
func (a *Authenticator) acquireKey(ctx context.Context, wallet common.Address) (core.SessionKey, bool, error) {
	log := a.log.WithField("wallet", wallet.Hex())

	if a.keys == nil {
		key, err := core.NewSessionKey()
		return key, true, err
	}

	stored, err := a.keys.LoadSessionKey(ctx, wallet)
	switch {
	case err == nil:
		key, perr := core.ParseSessionKey(stored)
		if perr == nil {
			return key, false, nil
		}
		log.WithError(perr).Warn("discarding unreadable session key")
	case errors.Is(err, core.ErrSessionKeyNotFound):
	default:
		log.WithError(err).Warn("session key store unavailable, using in-memory key")
		key, err := core.NewSessionKey()
		return key, true, err
	}

	key, err := core.NewSessionKey()
	if err != nil {
		return core.SessionKey{}, false, err
	}
	if err := a.keys.SaveSessionKey(ctx, wallet, key.Hex()); err != nil {
		log.WithError(err).Warn("failed to persist session key, using in-memory key")
		return key, true, nil
	}
	return key, false, nil
}

func (a *Authenticator) dial(ctx context.Context, wallet common.Address, key core.SessionKey) (ports.Conn, error) {
	stepCtx, cancel := a.stepContext(ctx)
	defer cancel()

	conn, err := a.dialer.Dial(stepCtx, wallet, key)
	if err != nil {
		return nil, classify("connect", err, core.KindTransport)
	}
	return conn, nil
}

func (a *Authenticator) sign(ctx context.Context, conn ports.Conn) (core.Challenge, []byte, error) {
	stepCtx, cancel := a.stepContext(ctx)
	defer cancel()

	challenge, err := conn.Challenge(stepCtx)
	if err != nil {
		return core.Challenge{}, nil, classify("challenge", err, core.KindTransport)
	}

	signature, err := a.wallet.SignMessage(stepCtx, challenge.Message())
	if err != nil {
		kind := core.KindTransport
		if errors.Is(err, core.ErrSigningRejected) {
			kind = core.KindUserRejected
		}
		return core.Challenge{}, nil, classify("sign challenge", err, kind)
	}
	return challenge, signature, nil
}

func (a *Authenticator) authenticate(ctx context.Context, conn ports.Conn, challenge core.Challenge, signature []byte) (core.Grant, error) {
	stepCtx, cancel := a.stepContext(ctx)
	defer cancel()

	grant, err := conn.Authenticate(stepCtx, challenge, signature)
	if err != nil {
		return core.Grant{}, classify("authenticate", err, core.KindTransport)
	}
	return grant, nil
}

func (a *Authenticator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.stepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.stepTimeout)
}

// classify tags err with a taxonomy kind. Existing kinds are kept, a
// remote refusal is always RemoteRejected and timeouts are transport
// failures.
func classify(op string, err error, fallback core.ErrorKind) error {
	switch {
	case core.KindOf(err) != 0:
		return err
	case errors.Is(err, core.ErrSessionRejected):
		return core.NewError(core.KindRemoteRejected, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewError(core.KindTransport, op, fmt.Errorf("timed out: %w", err))
	default:
		return core.NewError(fallback, op, err)
	}
}

// begin starts a new attempt unless a Disconnect happened since the call
// was registered. Any live session is discarded first; its persisted key
// is kept.
func (a *Authenticator) begin(epoch uint64, cancel context.CancelFunc) (uint64, bool) {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if epoch != a.epoch {
		a.mu.Unlock()
		return 0, false
	}
	a.attempt++
	token := a.attempt
	a.cancel = cancel
	a.outcome = core.OutcomeNone
	a.lastErr = nil
	a.step = core.StatusIdle
	a.wallAddr = common.Address{}
	prev := a.conn
	a.conn = nil
	a.session = nil
	listeners := append([]Listener(nil), a.listeners...)
	a.mu.Unlock()

	if prev != nil {
		for _, l := range listeners {
			l.SessionEnded()
		}
		a.cleanup(prev)
	}
	return token, true
}

// advance moves the step marker if the attempt is still current
func (a *Authenticator) advance(token uint64, step core.Status) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if token != a.attempt {
		return false
	}
	a.step = step
	return true
}

func (a *Authenticator) succeed(token uint64, conn ports.Conn, session core.Session) bool {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if token != a.attempt {
		a.mu.Unlock()
		return false
	}
	a.conn = conn
	a.session = &session
	a.outcome = core.OutcomeSucceeded
	a.step = core.StatusIdle
	a.cancel = nil
	listeners := append([]Listener(nil), a.listeners...)
	a.mu.Unlock()

	for _, l := range listeners {
		l.SessionStarted(conn, session)
	}
	a.publish(core.SessionEvent{
		Wallet:     session.Wallet.Hex(),
		SessionKey: session.SessionKey.Address().Hex(),
		Status:     core.StatusAuthenticated,
	})
	return true
}

// fail tears down any partial connection, then records err as the
// attempt's outcome. A superseded attempt records nothing.
func (a *Authenticator) fail(token uint64, conn ports.Conn, err error) error {
	if conn != nil {
		a.cleanup(conn)
	}

	a.mu.Lock()
	if token != a.attempt {
		a.mu.Unlock()
		a.log.WithError(err).WithField("attempt", token).Debug("discarding result of aborted attempt")
		return core.ErrAttemptAborted
	}
	a.outcome = core.OutcomeFailed
	a.lastErr = err
	a.step = core.StatusIdle
	a.conn = nil
	a.session = nil
	a.cancel = nil
	wallet := a.wallAddr
	a.mu.Unlock()

	a.log.WithError(err).WithField("kind", core.KindOf(err).String()).Warn("authentication failed")
	a.publish(core.SessionEvent{
		Wallet: walletHex(wallet),
		Status: core.StatusError,
		Error:  err.Error(),
	})
	return err
}

// Disconnect returns the authenticator to idle from any state. An in-flight
// attempt is aborted and its eventual result discarded. Teardown errors are
// logged, never returned.
func (a *Authenticator) Disconnect(ctx context.Context) {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	wasIdle := core.DeriveStatus(a.outcome, a.step) == core.StatusIdle &&
		a.conn == nil && a.cancel == nil && a.pending == 0
	a.attempt++
	a.epoch++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	conn := a.conn
	wallet := a.wallAddr
	a.conn = nil
	a.session = nil
	a.step = core.StatusIdle
	a.outcome = core.OutcomeNone
	a.lastErr = nil
	listeners := append([]Listener(nil), a.listeners...)
	a.mu.Unlock()

	// a later call must not join the aborted attempt
	a.group.Forget(attemptKey)

	if wasIdle {
		return
	}

	if conn != nil {
		for _, l := range listeners {
			l.SessionEnded()
		}
		a.cleanupWith(ctx, conn)
	}

	a.log.WithField("wallet", walletHex(wallet)).Info("session disconnected")
	a.publish(core.SessionEvent{
		Wallet: walletHex(wallet),
		Status: core.StatusIdle,
	})
}

func (a *Authenticator) cleanup(conn ports.Conn) {
	a.cleanupWith(context.Background(), conn)
}

// cleanupWith closes conn best-effort; its failure never propagates
func (a *Authenticator) cleanupWith(ctx context.Context, conn ports.Conn) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cleanupTimeout)
	defer cancel()

	if err := conn.Close(ctx); err != nil {
		a.log.WithError(err).Warn("best-effort disconnect failed")
	}
}

func (a *Authenticator) publish(event core.SessionEvent) {
	if a.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cleanupTimeout)
	defer cancel()

	if err := a.events.PublishSessionEvent(ctx, event); err != nil {
		a.log.WithError(err).Warn("failed to publish session event")
	}
}

func walletHex(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}
