package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/clearview/core"
)

// Dialer opens transport-level connections to a ClearNode
type Dialer interface {
	Dial(ctx context.Context, wallet common.Address, key core.SessionKey) (Conn, error)
}

// Conn is a live ClearNode session client handle
type Conn interface {
	// Challenge requests an authentication challenge
	Challenge(ctx context.Context) (core.Challenge, error)

	// Authenticate submits the signed challenge and waits for the session
	// to be established. A refusal wraps core.ErrSessionRejected.
	Authenticate(ctx context.Context, challenge core.Challenge, signature []byte) (core.Grant, error)

	// Balances fetches the current four-tier snapshot
	Balances(ctx context.Context) (core.Tiers, error)

	// Watch delivers balance changes to fn until ctx is done
	Watch(ctx context.Context, fn func(core.Tiers)) error

	// Close tears the connection down. It is safe to call more than once.
	Close(ctx context.Context) error
}

// BalanceFeed pushes balance change notifications for a wallet
type BalanceFeed interface {
	Watch(ctx context.Context, wallet common.Address, fn func(core.Tiers)) error
}
