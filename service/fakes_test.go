package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/clearview/core"
	"github.com/layer-3/clearview/ports"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeWallet struct {
	addr common.Address
	key  *ecdsa.PrivateKey

	mu        sync.Mutex
	signCalls int
	gate      chan struct{}
	reject    bool
	onSign    func()
}

func newFakeWallet(t *testing.T) *fakeWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeWallet{addr: crypto.PubkeyToAddress(key.PublicKey), key: key}
}

func (w *fakeWallet) Address(ctx context.Context) (common.Address, error) {
	return w.addr, nil
}

// SignMessage ignores ctx while gated, like a wallet prompt left open
func (w *fakeWallet) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	w.mu.Lock()
	w.signCalls++
	gate, reject, hook := w.gate, w.reject, w.onSign
	w.mu.Unlock()

	if hook != nil {
		hook()
	}
	if gate != nil {
		<-gate
	}
	if reject {
		return nil, core.ErrSigningRejected
	}
	return core.SignText(w.key, msg)
}

func (w *fakeWallet) SignCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signCalls
}

type fakeConn struct {
	wallet   common.Address
	key      core.SessionKey
	tiers    core.Tiers
	authErr  error
	closeErr error
	onAuth   func()
	updates  chan core.Tiers

	mu         sync.Mutex
	closeCalls int
}

func (c *fakeConn) Challenge(ctx context.Context) (core.Challenge, error) {
	return core.Challenge{
		Token:      "challenge-token",
		Nonce:      "nonce",
		Wallet:     c.wallet,
		SessionKey: c.key.Address(),
	}, nil
}

func (c *fakeConn) Authenticate(ctx context.Context, challenge core.Challenge, signature []byte) (core.Grant, error) {
	if c.onAuth != nil {
		c.onAuth()
	}
	if c.authErr != nil {
		return core.Grant{}, c.authErr
	}
	if err := core.VerifyText(challenge.Message(), signature, c.wallet); err != nil {
		return core.Grant{}, err
	}
	return core.Grant{SessionID: "sid", AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (c *fakeConn) Balances(ctx context.Context) (core.Tiers, error) {
	return c.tiers, nil
}

func (c *fakeConn) Watch(ctx context.Context, fn func(core.Tiers)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-c.updates:
			fn(t)
		}
	}
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	return c.closeErr
}

func (c *fakeConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

type fakeDialer struct {
	tiers    core.Tiers
	authErr  error
	closeErr error
	dialErr  error
	gate     chan struct{}
	onDial   func()
	onAuth   func()

	mu    sync.Mutex
	conns []*fakeConn
	keys  []core.SessionKey
}

func (d *fakeDialer) Dial(ctx context.Context, wallet common.Address, key core.SessionKey) (ports.Conn, error) {
	d.mu.Lock()
	d.keys = append(d.keys, key)
	conn := &fakeConn{
		wallet:   wallet,
		key:      key,
		tiers:    d.tiers,
		authErr:  d.authErr,
		closeErr: d.closeErr,
		onAuth:   d.onAuth,
		updates:  make(chan core.Tiers, 8),
	}
	d.conns = append(d.conns, conn)
	gate, hook, err := d.gate, d.onDial, d.dialErr
	d.mu.Unlock()

	if hook != nil {
		hook()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) Key(i int) core.SessionKey {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[i]
}

// sharedStore is a minimal KeyStore; a set err makes every call fail
type sharedStore struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func newSharedStore() *sharedStore {
	return &sharedStore{keys: make(map[string]string)}
}

func (s *sharedStore) LoadSessionKey(ctx context.Context, wallet common.Address) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	key, ok := s.keys[strings.ToLower(wallet.Hex())]
	if !ok {
		return "", core.ErrSessionKeyNotFound
	}
	return key, nil
}

func (s *sharedStore) SaveSessionKey(ctx context.Context, wallet common.Address, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.keys[strings.ToLower(wallet.Hex())] = key
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (p *recordingPublisher) PublishSessionEvent(ctx context.Context, event core.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Statuses() []core.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Status, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Status)
	}
	return out
}

var errBoom = errors.New("boom")

func tiers(wallet, custody, channel, ledger int64) core.Tiers {
	return core.Tiers{
		Wallet:  big.NewInt(wallet),
		Custody: big.NewInt(custody),
		Channel: big.NewInt(channel),
		Ledger:  big.NewInt(ledger),
	}
}
