package clearnode_test

import (
	"context"
	"io"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/clearview/adapters/clearnode"
	"github.com/layer-3/clearview/adapters/keystore"
	"github.com/layer-3/clearview/adapters/wallet"
	"github.com/layer-3/clearview/core"
	"github.com/layer-3/clearview/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newWallet(t *testing.T) *wallet.LocalWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet.FromKey(key)
}

func newSessionKey(t *testing.T) core.SessionKey {
	t.Helper()
	key, err := core.NewSessionKey()
	require.NoError(t, err)
	return key
}

func sampleTiers() core.Tiers {
	return core.Tiers{
		Wallet:  big.NewInt(9_990_000),
		Custody: big.NewInt(1_000_000),
		Channel: big.NewInt(1_500_000),
		Ledger:  big.NewInt(250_000),
	}
}

func TestConn_FullFlow(t *testing.T) {
	node := newStubNode(t)
	node.SetBalances(sampleTiers())
	w := newWallet(t)
	ctx := context.Background()

	addr, err := w.Address(ctx)
	require.NoError(t, err)
	key := newSessionKey(t)

	dialer := clearnode.NewDialer(node.URL()+"/", clearnode.WithLogger(quietLogger()))
	conn, err := dialer.Dial(ctx, addr, key)
	require.NoError(t, err)

	challenge, err := conn.Challenge(ctx)
	require.NoError(t, err)
	assert.Equal(t, addr, challenge.Wallet)
	assert.Equal(t, key.Address(), challenge.SessionKey)
	assert.NotEmpty(t, challenge.Nonce)

	sig, err := w.SignMessage(ctx, challenge.Message())
	require.NoError(t, err)
	grant, err := conn.Authenticate(ctx, challenge, sig)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.SessionID)
	assert.Equal(t, "refresh-"+grant.SessionID, grant.RefreshToken)

	tiers, err := conn.Balances(ctx)
	require.NoError(t, err)
	assert.True(t, sampleTiers().Equal(tiers))
	assert.Equal(t, "$2.75", core.FormatAmount(tiers.Total()))

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, conn.Close(ctx))
	assert.Equal(t, 1, node.Logouts())
}

func TestConn_RejectsForeignSignature(t *testing.T) {
	node := newStubNode(t)
	ctx := context.Background()
	w := newWallet(t)
	addr, err := w.Address(ctx)
	require.NoError(t, err)

	conn, err := clearnode.NewDialer(node.URL()).Dial(ctx, addr, newSessionKey(t))
	require.NoError(t, err)
	challenge, err := conn.Challenge(ctx)
	require.NoError(t, err)

	sig, err := newWallet(t).SignMessage(ctx, challenge.Message())
	require.NoError(t, err)
	_, err = conn.Authenticate(ctx, challenge, sig)
	assert.ErrorIs(t, err, core.ErrSessionRejected)
}

func TestConn_BalancesRequireLogin(t *testing.T) {
	node := newStubNode(t)
	ctx := context.Background()
	w := newWallet(t)
	addr, err := w.Address(ctx)
	require.NoError(t, err)

	conn, err := clearnode.NewDialer(node.URL()).Dial(ctx, addr, newSessionKey(t))
	require.NoError(t, err)

	_, err = conn.Balances(ctx)
	assert.ErrorIs(t, err, core.ErrSessionRejected)
	assert.Zero(t, node.BalanceRequests())

	// nothing to revoke without a grant
	require.NoError(t, conn.Close(ctx))
	assert.Zero(t, node.Logouts())
}

func TestDialer_Unreachable(t *testing.T) {
	server := httptest.NewServer(nil)
	url := server.URL
	server.Close()

	ctx := context.Background()
	addr, err := newWallet(t).Address(ctx)
	require.NoError(t, err)

	_, err = clearnode.NewDialer(url).Dial(ctx, addr, newSessionKey(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestDialer_RequiresSessionKey(t *testing.T) {
	node := newStubNode(t)
	ctx := context.Background()
	addr, err := newWallet(t).Address(ctx)
	require.NoError(t, err)

	_, err = clearnode.NewDialer(node.URL()).Dial(ctx, addr, core.SessionKey{})
	assert.Error(t, err)
}

func TestConn_WatchPollsForChanges(t *testing.T) {
	node := newStubNode(t)
	node.SetBalances(sampleTiers())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := newWallet(t)
	addr, err := w.Address(ctx)
	require.NoError(t, err)

	conn, err := clearnode.NewDialer(node.URL(),
		clearnode.WithPollInterval(10*time.Millisecond),
		clearnode.WithLogger(quietLogger()),
	).Dial(ctx, addr, newSessionKey(t))
	require.NoError(t, err)
	challenge, err := conn.Challenge(ctx)
	require.NoError(t, err)
	sig, err := w.SignMessage(ctx, challenge.Message())
	require.NoError(t, err)
	_, err = conn.Authenticate(ctx, challenge, sig)
	require.NoError(t, err)

	updates := make(chan core.Tiers, 16)
	done := make(chan error, 1)
	go func() {
		done <- conn.Watch(ctx, func(t core.Tiers) { updates <- t })
	}()

	first := <-updates
	assert.True(t, sampleTiers().Equal(first))

	changed := sampleTiers()
	changed.Ledger = big.NewInt(750_000)
	node.SetBalances(changed)

	select {
	case got := <-updates:
		assert.Equal(t, "$3.25", core.FormatAmount(got.Total()))
	case <-time.After(2 * time.Second):
		t.Fatal("no update after balances changed")
	}

	// unchanged polls are not delivered
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, updates)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestAuthenticator_AgainstClearNode(t *testing.T) {
	node := newStubNode(t)
	node.SetBalances(sampleTiers())
	ctx := context.Background()

	log := quietLogger()
	keys := keystore.NewMemoryStore()
	auth := service.NewAuthenticator(
		newWallet(t),
		clearnode.NewDialer(node.URL(), clearnode.WithLogger(log)),
		keys,
		service.WithLogger(log),
	)
	agg := service.NewAggregator(auth, log)

	require.NoError(t, auth.ConnectAndAuthenticate(ctx))
	state := auth.State()
	assert.Equal(t, core.StatusAuthenticated, state.Status)
	require.NotNil(t, state.Session)
	assert.False(t, state.Session.Degraded)

	stored, err := keys.LoadSessionKey(ctx, state.Wallet)
	require.NoError(t, err)
	assert.Equal(t, state.Session.SessionKey.Hex(), stored)

	require.Eventually(t, func() bool {
		return agg.View().Snapshot.Known()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "$2.75", agg.View().Snapshot.Headline())

	auth.Disconnect(ctx)
	assert.Equal(t, core.StatusIdle, auth.Status())
	assert.False(t, agg.View().Snapshot.Known())
	assert.Equal(t, 1, node.Logouts())
}
