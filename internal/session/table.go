package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/piglig/silicon-casino/internal/game"
	"github.com/piglig/silicon-casino/internal/gameid"
	"github.com/piglig/silicon-casino/internal/ledger"
	"github.com/piglig/silicon-casino/poker"
)

var (
	// ErrTableNotFound indicates the table id is unknown.
	ErrTableNotFound = errors.New("session: table not found")

	// ErrTableClosed indicates the table has been torn down.
	ErrTableClosed = errors.New("session: table closed")

	// ErrTableFull indicates both seats are taken.
	ErrTableFull = errors.New("session: table full")

	// ErrNotSeated indicates the agent has no seat at this table.
	ErrNotSeated = errors.New("session: agent not seated")

	// ErrAlreadySeated indicates the agent already holds a seat here.
	ErrAlreadySeated = errors.New("session: agent already seated")

	// ErrAgentBusy indicates the agent holds a seat at another table.
	// Agents play at most one table at a time.
	ErrAgentBusy = errors.New("session: agent already in a session")

	// ErrInsufficientBalance indicates the agent's CC balance cannot
	// cover the table's minimum buy-in.
	ErrInsufficientBalance = errors.New("session: insufficient balance")

	// ErrStaleState indicates the action's expected version no longer
	// matches the table. The caller should re-read the snapshot.
	ErrStaleState = errors.New("session: stale state version")
)

const storeTimeout = 3 * time.Second

type seatState struct {
	agentID string
	stack   int64
	leaving bool
}

// SeatView is one seat as seen by a particular viewer. HoleCards are
// only populated for the viewer's own seat.
type SeatView struct {
	Seat      int          `json:"seat"`
	AgentID   string       `json:"agent_id"`
	Stack     int64        `json:"stack"`
	Bet       int64        `json:"bet"`
	Folded    bool         `json:"folded,omitempty"`
	AllIn     bool         `json:"all_in,omitempty"`
	HoleCards []poker.Card `json:"hole_cards,omitempty"`
}

// Snapshot is a copy-on-read view of a table. Version stamps every
// mutation; actions carry the version they were computed against.
type Snapshot struct {
	TableID    string       `json:"table_id"`
	Version    uint64       `json:"version"`
	State      string       `json:"state"`
	HandID     string       `json:"hand_id,omitempty"`
	HandNum    int          `json:"hand_num"`
	Button     int          `json:"button"`
	SmallBlind int64        `json:"small_blind"`
	BigBlind   int64        `json:"big_blind"`
	Pot        int64        `json:"pot"`
	Board      []poker.Card `json:"board,omitempty"`
	ToAct      string       `json:"to_act,omitempty"` // agent id, empty when nobody acts
	ToCall     int64        `json:"to_call,omitempty"`
	MinRaiseTo int64        `json:"min_raise_to,omitempty"`
	Seats      []SeatView   `json:"seats"`
}

// Table owns one heads-up match. A single goroutine runs all mutations
// (actions, timeouts, redeals); public methods post closures into that
// loop and wait.
type Table struct {
	ID string

	mgr    *Manager
	logger *log.Logger
	bus    *Broadcaster

	cmds   chan func()
	closed chan struct{}

	// Loop-owned state below. Only the run goroutine touches it.
	seats   [2]*seatState
	seated  int
	button  int
	handNum int
	hand    *game.Hand
	version uint64
	seq     uint64
	timer   *quartz.Timer
	done    bool
}

func newTable(id string, mgr *Manager) *Table {
	return &Table{
		ID:     id,
		mgr:    mgr,
		logger: mgr.logger.WithPrefix("table").With("table", id),
		bus:    NewBroadcaster(),
		cmds:   make(chan func()),
		closed: make(chan struct{}),
	}
}

func (t *Table) run() {
	for {
		select {
		case fn := <-t.cmds:
			fn()
		case <-t.closed:
			for {
				select {
				case fn := <-t.cmds:
					fn()
				default:
					return
				}
			}
		}
	}
}

// do runs fn in the table loop and waits for it to finish.
func (t *Table) do(fn func()) error {
	done := make(chan struct{})
	select {
	case t.cmds <- func() { fn(); close(done) }:
		<-done
		return nil
	case <-t.closed:
		return ErrTableClosed
	}
}

// Subscribe returns this table's event stream.
func (t *Table) Subscribe(buffer int) (<-chan Event, func()) {
	return t.bus.Subscribe(buffer)
}

// SeatAgent puts the agent in the next free seat, staking
// min(balance, max buy-in). The hand is dealt once both seats fill.
func (t *Table) SeatAgent(ctx context.Context, agentID string) error {
	if at, ok := t.mgr.AgentTable(agentID); ok && at != t.ID {
		return fmt.Errorf("%w: agent %s is at table %s", ErrAgentBusy, agentID, at)
	}
	balance, err := t.mgr.ledger.Balance(ctx, agentID)
	if err != nil {
		return err
	}
	stake := balance
	if stake > t.mgr.cfg.MaxBuyIn {
		stake = t.mgr.cfg.MaxBuyIn
	}
	if stake < t.mgr.cfg.MinBuyIn {
		return fmt.Errorf("%w: agent %s has %d CC, table minimum is %d",
			ErrInsufficientBalance, agentID, balance, t.mgr.cfg.MinBuyIn)
	}

	var opErr error
	err = t.do(func() {
		if t.done {
			opErr = ErrTableClosed
			return
		}
		for _, s := range t.seats[:t.seated] {
			if s.agentID == agentID {
				opErr = ErrAlreadySeated
				return
			}
		}
		if t.seated == 2 {
			opErr = ErrTableFull
			return
		}
		t.seats[t.seated] = &seatState{agentID: agentID, stack: stake}
		t.seated++
		t.bump()
		t.logger.Info("agent seated", "agent", agentID, "stake", stake, "seat", t.seated-1)
		if t.seated == 2 {
			t.deal()
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// SubmitAction validates and applies an agent action against the
// expected table version. Rejections leave the table untouched.
func (t *Table) SubmitAction(agentID string, action game.Action, amount int64, version uint64) (Snapshot, error) {
	var snap Snapshot
	var opErr error
	err := t.do(func() {
		seat, ok := t.seatOf(agentID)
		if !ok {
			opErr = ErrNotSeated
			return
		}
		if t.hand == nil || !t.hand.State.IsBetting() {
			opErr = game.ErrHandNotActive
			return
		}
		if version != t.version {
			opErr = fmt.Errorf("%w: expected %d, have %d", ErrStaleState, t.version, version)
			return
		}
		if opErr = t.applyAction(seat, action, amount, false); opErr != nil {
			return
		}
		t.progress()
		snap = t.snapshot(agentID)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, opErr
}

// Leave forfeits the agent's seat. Mid-hand this folds when it is the
// leaver's turn (immediately or when the turn arrives); the table tears
// down once the hand settles.
func (t *Table) Leave(agentID string) error {
	var opErr error
	err := t.do(func() {
		seat, ok := t.seatOf(agentID)
		if !ok {
			opErr = ErrNotSeated
			return
		}
		t.seats[seat].leaving = true
		t.logger.Info("agent leaving", "agent", agentID)
		if t.hand == nil || !t.hand.State.IsBetting() {
			t.close()
			return
		}
		t.progress()
	})
	if err != nil {
		return err
	}
	return opErr
}

// Snapshot returns the table as seen by viewer. An empty viewer gets
// the spectator view with all hole cards redacted.
func (t *Table) Snapshot(viewer string) (Snapshot, error) {
	var snap Snapshot
	err := t.do(func() {
		snap = t.snapshot(viewer)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (t *Table) seatOf(agentID string) (int, bool) {
	for i, s := range t.seats[:t.seated] {
		if s.agentID == agentID {
			return i, true
		}
	}
	return 0, false
}

func (t *Table) bump() { t.version++ }

func (t *Table) publish(ev game.Event) {
	t.seq++
	wrapped := Event{TableID: t.ID, Seq: t.seq, Payload: ev}
	t.bus.Publish(wrapped)
	t.mgr.spectators.Publish(wrapped)
}

// deal starts the next hand. Stacks come from the seats, the button
// alternates every hand.
func (t *Table) deal() {
	handID := gameid.New(gameid.KindHand)
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := t.mgr.store.OpenHand(ctx, handID, t.ID); err != nil {
		t.logger.Error("failed to journal hand, closing table", "error", err)
		t.close()
		return
	}

	deck := poker.NewDeck(t.mgr.newRand())
	hand, err := game.NewHand(game.HandConfig{
		ID:         handID,
		AgentIDs:   [2]string{t.seats[0].agentID, t.seats[1].agentID},
		Stacks:     [2]int64{t.seats[0].stack, t.seats[1].stack},
		Button:     t.button,
		SmallBlind: t.mgr.cfg.SmallBlind,
		BigBlind:   t.mgr.cfg.BigBlind,
		RakeBPS:    t.mgr.cfg.RakeBPS,
		Deck:       deck,
	})
	if err != nil {
		t.logger.Error("failed to deal hand, closing table", "error", err)
		t.close()
		return
	}

	t.hand = hand
	t.handNum++
	t.bump()
	t.logger.Info("hand dealt", "hand", handID, "num", t.handNum, "button", t.button)

	now := t.mgr.clock.Now()
	seats := make([]game.SeatInfo, 2)
	for i, s := range hand.Seats {
		seats[i] = game.SeatInfo{Seat: i, AgentID: s.AgentID, Stack: s.Chips, HoleCards: s.HoleCards}
	}
	t.publish(game.HandStartedEvent{
		HandID:     handID,
		Seats:      seats,
		Button:     t.button,
		SmallBlind: t.mgr.cfg.SmallBlind,
		BigBlind:   t.mgr.cfg.BigBlind,
		At:         now,
	})
	// Blind all-ins can run a hand straight out at the deal.
	t.publishBoard(0)
	t.progress()
}

// applyAction applies one validated action and publishes its events.
func (t *Table) applyAction(seat int, action game.Action, amount int64, forced bool) error {
	boardBefore := len(t.hand.Board)
	if err := t.hand.Apply(seat, action, amount); err != nil {
		return err
	}
	t.bump()

	s := t.hand.Seats[seat]
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	if err := t.mgr.store.RecordAction(ctx, t.hand.ID, s.AgentID, action.String(), amount); err != nil {
		t.logger.Warn("failed to journal action", "hand", t.hand.ID, "error", err)
	}
	cancel()

	t.publish(game.ActionTakenEvent{
		HandID:  t.hand.ID,
		Seat:    seat,
		AgentID: s.AgentID,
		Action:  action.String(),
		Amount:  amount,
		Forced:  forced,
		Pot:     game.PotTotal(t.hand.Seats),
		State:   t.hand.State.String(),
		At:      t.mgr.clock.Now(),
	})
	t.publishBoard(boardBefore)
	return nil
}

// publishBoard emits one board event per street dealt since before.
func (t *Table) publishBoard(before int) {
	board := t.hand.Board
	for before < len(board) {
		chunk := 1
		street := "turn"
		switch before {
		case 0:
			chunk, street = 3, "flop"
		case 4:
			street = "river"
		}
		t.publish(game.BoardDealtEvent{
			HandID: t.hand.ID,
			Street: street,
			Cards:  board[before : before+chunk],
			Board:  board[:before+chunk],
			At:     t.mgr.clock.Now(),
		})
		before += chunk
	}
}

// progress drives the hand forward: folds for leavers whose turn it is,
// settles completed hands, otherwise arms the turn timer.
func (t *Table) progress() {
	for {
		if t.done || t.hand == nil {
			return
		}
		if t.hand.IsComplete() {
			t.settleHand()
			return
		}
		act := t.hand.Active
		if act >= 0 && t.seats[act].leaving {
			if err := t.applyAction(act, game.Fold, 0, true); err == nil {
				continue
			}
			t.logger.Error("failed to fold leaving seat", "seat", act)
		}
		t.armTimer()
		return
	}
}

// armTimer schedules the turn deadline for the acting seat. The version
// captured here makes stale timers fired after an action harmless.
func (t *Table) armTimer() {
	t.stopTimer()
	if t.mgr.cfg.TurnTimeout <= 0 {
		return
	}
	version := t.version
	t.timer = t.mgr.clock.AfterFunc(t.mgr.cfg.TurnTimeout, func() {
		_ = t.do(func() { t.onTurnTimeout(version) })
	})
}

func (t *Table) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// onTurnTimeout force-acts the seat that let its clock run out: check
// when the bet is matched, otherwise fold. Not an error to the agent,
// just a forced action in the event stream.
func (t *Table) onTurnTimeout(version uint64) {
	if t.done || t.hand == nil || !t.hand.State.IsBetting() || t.version != version {
		return
	}
	seat := t.hand.Active
	if seat < 0 {
		return
	}
	action, err := t.hand.TimeoutAction(seat)
	if err != nil {
		return
	}
	t.logger.Info("turn timeout", "hand", t.hand.ID, "seat", seat, "action", action.String())
	if err := t.applyAction(seat, action, 0, true); err != nil {
		t.logger.Error("failed to apply timeout action", "error", err)
		return
	}
	t.progress()
}

// settleHand writes the ledger settlement, publishes the result and
// either deals the next hand or tears the table down. The ledger write
// happens before the next deal.
func (t *Table) settleHand() {
	t.stopTimer()
	res := t.hand.Settlement()

	deltas := []ledger.Delta{
		{AgentID: res.Results[0].AgentID, Amount: res.Results[0].Delta},
		{AgentID: res.Results[1].AgentID, Amount: res.Results[1].Delta},
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	err := t.mgr.ledger.SettleHand(ctx, res.HandID, deltas, res.Rake)
	cancel()
	if err != nil {
		// Balances are untouched and the hand stays open in the journal,
		// so a restart voids it cleanly.
		t.logger.Error("settlement failed, closing table", "hand", res.HandID, "error", err)
		t.close()
		return
	}

	for i := range t.seats[:t.seated] {
		t.seats[i].stack = t.hand.StackAfter(i)
	}
	t.publish(game.HandSettledEvent{Settlement: res, At: t.mgr.clock.Now()})
	t.hand = nil
	t.button = 1 - t.button
	t.bump()

	for _, s := range t.seats[:t.seated] {
		if s.leaving || s.stack <= 0 {
			t.close()
			return
		}
	}
	t.deal()
}

// close tears the table down. Runs in the loop.
func (t *Table) close() {
	if t.done {
		return
	}
	t.done = true
	t.stopTimer()
	t.logger.Info("table closed", "hands", t.handNum)
	t.bus.Close()
	agents := make([]string, 0, t.seated)
	for _, s := range t.seats[:t.seated] {
		agents = append(agents, s.agentID)
	}
	t.mgr.releaseAgents(t.ID, agents...)
	t.mgr.removeTable(t.ID)
	close(t.closed)
}

func (t *Table) snapshot(viewer string) Snapshot {
	snap := Snapshot{
		TableID:    t.ID,
		Version:    t.version,
		State:      game.StateWaitingForPlayers.String(),
		HandNum:    t.handNum,
		Button:     t.button,
		SmallBlind: t.mgr.cfg.SmallBlind,
		BigBlind:   t.mgr.cfg.BigBlind,
	}

	if t.hand == nil {
		for i, s := range t.seats[:t.seated] {
			snap.Seats = append(snap.Seats, SeatView{Seat: i, AgentID: s.agentID, Stack: s.stack})
		}
		return snap
	}

	h := t.hand
	snap.State = h.State.String()
	snap.HandID = h.ID
	snap.Pot = game.PotTotal(h.Seats)
	snap.Board = append([]poker.Card{}, h.Board...)
	if h.State.IsBetting() && h.Active >= 0 {
		snap.ToAct = h.Seats[h.Active].AgentID
		snap.ToCall = h.Betting.CurrentBet - h.Seats[h.Active].Bet
		snap.MinRaiseTo = h.Betting.CurrentBet + h.Betting.MinRaise
	}
	for i, s := range h.Seats {
		view := SeatView{
			Seat:    i,
			AgentID: s.AgentID,
			Stack:   s.Chips,
			Bet:     s.Bet,
			Folded:  s.Folded,
			AllIn:   s.AllIn,
		}
		if viewer != "" && viewer == s.AgentID {
			view.HoleCards = append([]poker.Card{}, s.HoleCards...)
		}
		snap.Seats = append(snap.Seats, view)
	}
	return snap
}
