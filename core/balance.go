package core

import (
	"math/big"
	"time"
)

// Tier names a custody tier of the holder's funds
type Tier string

const (
	// TierWallet is the on-chain externally-owned balance
	TierWallet Tier = "wallet"
	// TierCustody is escrowed in the custody contract but not yet in a channel
	TierCustody Tier = "custody"
	// TierChannel is locked in an active off-chain channel
	TierChannel Tier = "channel"
	// TierLedger is the ClearNode's off-chain accounting balance
	TierLedger Tier = "ledger"
)

// Label returns the display name of the tier
func (t Tier) Label() string {
	switch t {
	case TierWallet:
		return "Wallet"
	case TierCustody:
		return "Custody contract"
	case TierChannel:
		return "Channel"
	case TierLedger:
		return "Ledger"
	default:
		return string(t)
	}
}

// Tiers holds one figure per custody tier in the token's smallest unit.
// A nil field reads as zero.
type Tiers struct {
	Wallet  *big.Int
	Custody *big.Int
	Channel *big.Int
	Ledger  *big.Int
}

// Get returns a copy of the figure for tier t
func (t Tiers) Get(tier Tier) *big.Int {
	switch tier {
	case TierWallet:
		return copyInt(t.Wallet)
	case TierCustody:
		return copyInt(t.Custody)
	case TierChannel:
		return copyInt(t.Channel)
	case TierLedger:
		return copyInt(t.Ledger)
	default:
		return new(big.Int)
	}
}

// Total is channel + ledger + custody. The wallet tier needs an on-chain
// deposit before it is usable and is never part of the total.
func (t Tiers) Total() *big.Int {
	total := new(big.Int)
	total.Add(total, t.Get(TierChannel))
	total.Add(total, t.Get(TierLedger))
	total.Add(total, t.Get(TierCustody))
	return total
}

// Equal compares two tier sets figure by figure
func (t Tiers) Equal(o Tiers) bool {
	for _, tier := range []Tier{TierWallet, TierCustody, TierChannel, TierLedger} {
		if t.Get(tier).Cmp(o.Get(tier)) != 0 {
			return false
		}
	}
	return true
}

func (t Tiers) clone() Tiers {
	return Tiers{
		Wallet:  t.Get(TierWallet),
		Custody: t.Get(TierCustody),
		Channel: t.Get(TierChannel),
		Ledger:  t.Get(TierLedger),
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// BalanceSnapshot is an immutable read model of the four tiers. It is
// replaced as a whole on every update and never mutated in place.
type BalanceSnapshot struct {
	tiers     Tiers
	known     bool
	updatedAt time.Time
}

// NewBalanceSnapshot captures tiers at the given time
func NewBalanceSnapshot(tiers Tiers, at time.Time) BalanceSnapshot {
	return BalanceSnapshot{
		tiers:     tiers.clone(),
		known:     true,
		updatedAt: at,
	}
}

// UnknownSnapshot is shown while no session is authenticated
func UnknownSnapshot() BalanceSnapshot {
	return BalanceSnapshot{}
}

// Known reports whether the snapshot carries real figures
func (s BalanceSnapshot) Known() bool {
	return s.known
}

// UpdatedAt returns when the figures were received
func (s BalanceSnapshot) UpdatedAt() time.Time {
	return s.updatedAt
}

// Tiers returns a copy of the figures
func (s BalanceSnapshot) Tiers() Tiers {
	return s.tiers.clone()
}

// Total returns the headline total and whether it is known
func (s BalanceSnapshot) Total() (*big.Int, bool) {
	if !s.known {
		return nil, false
	}
	return s.tiers.Total(), true
}

// Headline renders the total available in channels, ledger and custody
func (s BalanceSnapshot) Headline() string {
	total, ok := s.Total()
	if !ok {
		return PlaceholderAmount
	}
	return FormatAmount(total)
}

// Row is one line of the balance breakdown
type Row struct {
	Tier   Tier   `json:"tier"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// Breakdown renders every tier in the headline. The wallet tier is
// appended only in the expanded view. Zero figures are rendered, not hidden.
func (s BalanceSnapshot) Breakdown(expanded bool) []Row {
	tiers := []Tier{TierChannel, TierLedger, TierCustody}
	if expanded {
		tiers = append(tiers, TierWallet)
	}

	rows := make([]Row, 0, len(tiers))
	for _, tier := range tiers {
		amount := PlaceholderAmount
		if s.known {
			amount = FormatAmount(s.tiers.Get(tier))
		}
		rows = append(rows, Row{Tier: tier, Label: tier.Label(), Amount: amount})
	}
	return rows
}
