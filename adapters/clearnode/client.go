// Package clearnode is an HTTP session client for a ClearNode.
package clearnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/clearview/adapters/tokenizer"
	"github.com/layer-3/clearview/core"
	"github.com/layer-3/clearview/ports"
	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is used when balances are polled rather than pushed
const DefaultPollInterval = 5 * time.Second

// Session request headers
const (
	HeaderSessionKey       = "X-Session-Key"
	HeaderSessionSignature = "X-Session-Signature"
	HeaderSessionTimestamp = "X-Session-Timestamp"
)

// Dialer opens HTTP sessions against a ClearNode
type Dialer struct {
	baseURL      string
	client       *http.Client
	parser       *tokenizer.Parser
	feed         ports.BalanceFeed
	pollInterval time.Duration
	log          logrus.FieldLogger
}

// DialerOption configures a Dialer
type DialerOption func(*Dialer)

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(c *http.Client) DialerOption {
	return func(d *Dialer) {
		d.client = c
	}
}

// WithParser sets the token parser, e.g. one that verifies signatures
func WithParser(p *tokenizer.Parser) DialerOption {
	return func(d *Dialer) {
		d.parser = p
	}
}

// WithBalanceFeed makes Watch use pushed notifications instead of polling
func WithBalanceFeed(f ports.BalanceFeed) DialerOption {
	return func(d *Dialer) {
		d.feed = f
	}
}

// WithPollInterval sets the polling period used without a feed
func WithPollInterval(interval time.Duration) DialerOption {
	return func(d *Dialer) {
		d.pollInterval = interval
	}
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) DialerOption {
	return func(d *Dialer) {
		d.log = log
	}
}

// NewDialer creates a dialer for the ClearNode at baseURL
func NewDialer(baseURL string, opts ...DialerOption) *Dialer {
	d := &Dialer{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       http.DefaultClient,
		parser:       tokenizer.NewParser(nil),
		pollInterval: DefaultPollInterval,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial checks the ClearNode is reachable and returns an unauthenticated
// connection
func (d *Dialer) Dial(ctx context.Context, wallet common.Address, key core.SessionKey) (ports.Conn, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("dial: session key is required")
	}

	c := &conn{
		dialer: d,
		wallet: wallet,
		key:    key,
		log: d.log.WithFields(logrus.Fields{
			"component": "clearnode",
			"wallet":    wallet.Hex(),
		}),
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, false); err != nil {
		return nil, err
	}
	return c, nil
}

type conn struct {
	dialer *Dialer
	wallet common.Address
	key    core.SessionKey
	log    logrus.FieldLogger

	mu     sync.Mutex
	grant  core.Grant
	closed bool
}

func (c *conn) Challenge(ctx context.Context) (core.Challenge, error) {
	req := challengeRequest{
		Address:    c.wallet.Hex(),
		SessionKey: c.key.Address().Hex(),
	}
	var resp challengeResponse
	if err := c.do(ctx, http.MethodPost, "/auth/challenge", req, &resp, false); err != nil {
		return core.Challenge{}, err
	}

	challenge, err := c.dialer.parser.ParseChallenge(resp.Token)
	if err != nil {
		return core.Challenge{}, fmt.Errorf("challenge: %w", err)
	}
	if challenge.Wallet != c.wallet {
		return core.Challenge{}, fmt.Errorf("challenge issued for %s: %w", challenge.Wallet.Hex(), core.ErrSessionRejected)
	}
	if challenge.SessionKey == (common.Address{}) {
		challenge.SessionKey = c.key.Address()
	}
	if challenge.SessionKey != c.key.Address() {
		return core.Challenge{}, fmt.Errorf("challenge bound to another session key: %w", core.ErrSessionRejected)
	}
	return challenge, nil
}

func (c *conn) Authenticate(ctx context.Context, challenge core.Challenge, signature []byte) (core.Grant, error) {
	req := loginRequest{
		ChallengeToken: challenge.Token,
		Signature:      hexutil.Encode(signature),
		Address:        c.wallet.Hex(),
		SessionKey:     c.key.Address().Hex(),
	}
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp, false); err != nil {
		return core.Grant{}, err
	}

	grant, err := c.dialer.parser.ParseGrant(resp.AccessToken, resp.RefreshToken)
	if err != nil {
		return core.Grant{}, fmt.Errorf("login: %w", err)
	}

	c.mu.Lock()
	c.grant = grant
	c.mu.Unlock()
	return grant, nil
}

func (c *conn) Balances(ctx context.Context) (core.Tiers, error) {
	var msg BalancesMessage
	if err := c.do(ctx, http.MethodGet, "/api/balances", nil, &msg, true); err != nil {
		return core.Tiers{}, err
	}
	return msg.Tiers()
}

func (c *conn) Watch(ctx context.Context, fn func(core.Tiers)) error {
	if c.dialer.feed != nil {
		return c.dialer.feed.Watch(ctx, c.wallet, fn)
	}

	ticker := time.NewTicker(c.dialer.pollInterval)
	defer ticker.Stop()

	var last *core.Tiers
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		tiers, err := c.Balances(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.WithError(err).Debug("balance poll failed")
			continue
		}
		if last != nil && last.Equal(tiers) {
			continue
		}
		last = &tiers
		fn(tiers)
	}
}

func (c *conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	refresh := c.grant.RefreshToken
	c.mu.Unlock()

	if refresh == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/auth/logout", logoutRequest{RefreshToken: refresh}, nil, false)
}

// do sends a JSON request. Session-scoped requests carry the access token
// and a session key signature over method, path and timestamp.
func (c *conn) do(ctx context.Context, method, path string, in, out interface{}, scoped bool) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.dialer.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if scoped {
		if err := c.authorize(req); err != nil {
			return err
		}
	}

	resp, err := c.dialer.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, core.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: %w: invalid response: %v", method, path, core.ErrTransport, err)
	}
	return nil
}

func (c *conn) authorize(req *http.Request) error {
	c.mu.Lock()
	access := c.grant.AccessToken
	c.mu.Unlock()
	if access == "" {
		return fmt.Errorf("%s: not authenticated: %w", req.URL.Path, core.ErrSessionRejected)
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := c.key.Sign(SessionPayload(req.Method, req.URL.Path, ts))
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set(HeaderSessionKey, c.key.Address().Hex())
	req.Header.Set(HeaderSessionTimestamp, ts)
	req.Header.Set(HeaderSessionSignature, hexutil.Encode(sig))
	return nil
}

// SessionPayload is the message a session key signs for a scoped request
func SessionPayload(method, path, timestamp string) []byte {
	return []byte(method + " " + path + "\n" + timestamp)
}

func statusError(method, path string, resp *http.Response) error {
	var body errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s %s: %w: %s", method, path, core.ErrSessionRejected, msg)
	default:
		return fmt.Errorf("%s %s: %w: status %d: %s", method, path, core.ErrTransport, resp.StatusCode, msg)
	}
}

var _ ports.Dialer = (*Dialer)(nil)
