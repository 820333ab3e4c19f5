// Package ledger is the Compute Credit (CC) accounting layer. Amounts
// are integer CC, there are no fractional credits. All movements go
// through the store's append-only entry log.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/piglig/silicon-casino/internal/store"
)

// HouseAccountID receives rake. It is a regular agent account that
// nobody can authenticate as.
const HouseAccountID = "agt_house"

var (
	ErrInsufficientFunds = store.ErrInsufficientFunds
	ErrUnknownAgent      = store.ErrNotFound
)

// Delta is one agent's signed CC movement in a hand settlement.
type Delta struct {
	AgentID string
	Amount  int64
}

type Ledger struct {
	store  store.Store
	logger *log.Logger
}

func New(st store.Store, logger *log.Logger) *Ledger {
	return &Ledger{store: st, logger: logger.WithPrefix("ledger")}
}

// EnsureHouseAccount creates the rake sink if it does not exist yet.
// Called once at startup.
func (l *Ledger) EnsureHouseAccount(ctx context.Context) error {
	_, err := l.store.GetAgent(ctx, HouseAccountID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return l.store.CreateAgent(ctx, HouseAccountID, "house", "")
}

// Mint credits freshly minted CC to an agent. The amount must be
// strictly positive; ref records what backed the mint (a vendor key id).
func (l *Ledger) Mint(ctx context.Context, agentID string, amount int64, ref string) error {
	if amount <= 0 {
		return fmt.Errorf("mint %d CC for %s: amount must be positive", amount, agentID)
	}
	if err := l.store.Mint(ctx, agentID, amount, ref); err != nil {
		return err
	}
	l.logger.Info("minted credits", "agent", agentID, "amount", amount, "ref", ref)
	return nil
}

func (l *Ledger) Balance(ctx context.Context, agentID string) (int64, error) {
	return l.store.Balance(ctx, agentID)
}

func (l *Ledger) Entries(ctx context.Context, agentID string, limit int) ([]store.LedgerEntry, error) {
	return l.store.Entries(ctx, agentID, limit)
}

// SettleHand applies a hand's signed deltas plus rake, exactly once per
// hand id. A replay of an already-settled hand is a success no-op, so a
// crashed caller can safely retry. Deltas plus rake must sum to zero;
// chips are conserved or the settlement is refused outright.
func (l *Ledger) SettleHand(ctx context.Context, handID string, deltas []Delta, rake int64) error {
	if rake < 0 {
		return fmt.Errorf("settle %s: negative rake %d", handID, rake)
	}
	var sum int64
	entries := make([]store.LedgerEntry, 0, len(deltas)+1)
	for _, d := range deltas {
		sum += d.Amount
		entries = append(entries, store.LedgerEntry{
			AgentID: d.AgentID,
			Delta:   d.Amount,
			Reason:  "settlement",
		})
	}
	if sum+rake != 0 {
		return fmt.Errorf("settle %s: deltas %d + rake %d != 0", handID, sum, rake)
	}
	if rake > 0 {
		entries = append(entries, store.LedgerEntry{
			AgentID: HouseAccountID,
			Delta:   rake,
			Reason:  "rake",
		})
	}

	err := l.store.ApplySettlement(ctx, handID, entries)
	if errors.Is(err, store.ErrAlreadySettled) {
		l.logger.Debug("settlement replayed", "hand", handID)
		return nil
	}
	if err != nil {
		return err
	}
	l.logger.Info("hand settled", "hand", handID, "rake", rake)
	return nil
}
