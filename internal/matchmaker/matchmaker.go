// Package matchmaker pairs agents into heads-up tables. Random mode is
// a first-come-first-served queue; select mode is an invitation the
// target must accept before a table exists.
package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Mode selects how an agent wants to be paired.
type Mode string

const (
	ModeRandom Mode = "random"
	ModeSelect Mode = "select"
)

var (
	// ErrTimeout indicates nobody arrived before the request's deadline.
	ErrTimeout = errors.New("matchmaker: matchmaking timeout")

	// ErrAlreadyQueued indicates the agent already has a pending request.
	ErrAlreadyQueued = errors.New("matchmaker: already queued")

	// ErrNoSuchInvite indicates the (inviter, target) pair has no
	// pending invitation.
	ErrNoSuchInvite = errors.New("matchmaker: no such invite")

	// ErrDeclined indicates the invited agent declined.
	ErrDeclined = errors.New("matchmaker: invite declined")

	// ErrCancelled indicates the request was withdrawn via Cancel.
	ErrCancelled = errors.New("matchmaker: request cancelled")
)

// CreateTableFunc builds a table for two paired agents and returns its
// id. Supplied by the session manager.
type CreateTableFunc func(agentA, agentB string) (string, error)

type result struct {
	tableID string
	err     error
}

type waiter struct {
	agentID string
	ch      chan result
}

type invite struct {
	from   string
	target string
	ch     chan result
}

type Matchmaker struct {
	mu      sync.Mutex
	queue   []*waiter          // random mode, FCFS
	invites map[string]*invite // keyed by inviter, one outgoing invite each
	create  CreateTableFunc
	logger  *log.Logger
}

func New(create CreateTableFunc, logger *log.Logger) *Matchmaker {
	return &Matchmaker{
		invites: make(map[string]*invite),
		create:  create,
		logger:  logger.WithPrefix("matchmaker"),
	}
}

// RequestRandom queues the agent and blocks until another agent
// arrives, the context expires, or the request is cancelled. Both
// paired agents get the same table id.
func (m *Matchmaker) RequestRandom(ctx context.Context, agentID string) (string, error) {
	m.mu.Lock()
	if m.pending(agentID) {
		m.mu.Unlock()
		return "", ErrAlreadyQueued
	}

	if len(m.queue) > 0 {
		head := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		tableID, err := m.create(head.agentID, agentID)
		head.ch <- result{tableID: tableID, err: err}
		if err != nil {
			return "", err
		}
		m.logger.Info("paired", "table", tableID, "agents", []string{head.agentID, agentID})
		return tableID, nil
	}

	w := &waiter{agentID: agentID, ch: make(chan result, 1)}
	m.queue = append(m.queue, w)
	m.mu.Unlock()

	select {
	case res := <-w.ch:
		return res.tableID, res.err
	case <-ctx.Done():
		if !m.remove(w) {
			// Another agent already claimed the waiter (or Cancel
			// fired); the result is on its way and the agent may be
			// seated, so the deadline no longer counts.
			res := <-w.ch
			return res.tableID, res.err
		}
		return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

// Invite asks a specific agent for a match and blocks until the target
// accepts, declines, or the context expires.
func (m *Matchmaker) Invite(ctx context.Context, from, target string) (string, error) {
	if from == target {
		return "", fmt.Errorf("matchmaker: cannot invite yourself")
	}
	m.mu.Lock()
	if m.pending(from) {
		m.mu.Unlock()
		return "", ErrAlreadyQueued
	}
	inv := &invite{from: from, target: target, ch: make(chan result, 1)}
	m.invites[from] = inv
	m.mu.Unlock()

	select {
	case res := <-inv.ch:
		return res.tableID, res.err
	case <-ctx.Done():
		if !m.removeInvite(from) {
			// The target already took the invite; accept or decline
			// resolves it and that outcome stands.
			res := <-inv.ch
			return res.tableID, res.err
		}
		return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

// Accept answers an invitation from the named agent. The inviter's
// blocked request and this call both return the new table id.
func (m *Matchmaker) Accept(target, from string) (string, error) {
	inv, err := m.takeInvite(target, from)
	if err != nil {
		return "", err
	}
	tableID, err := m.create(inv.from, target)
	inv.ch <- result{tableID: tableID, err: err}
	if err != nil {
		return "", err
	}
	m.logger.Info("invite accepted", "table", tableID, "from", inv.from, "target", target)
	return tableID, nil
}

// Decline rejects an invitation, releasing the inviter with ErrDeclined.
func (m *Matchmaker) Decline(target, from string) error {
	inv, err := m.takeInvite(target, from)
	if err != nil {
		return err
	}
	inv.ch <- result{err: ErrDeclined}
	return nil
}

// Invites lists the inviter ids with a pending invite for target.
func (m *Matchmaker) Invites(target string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var from []string
	for _, inv := range m.invites {
		if inv.target == target {
			from = append(from, inv.from)
		}
	}
	return from
}

// Cancel withdraws the agent's queued request or outgoing invite.
func (m *Matchmaker) Cancel(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.queue {
		if w.agentID == agentID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			w.ch <- result{err: ErrCancelled}
			return
		}
	}
	if inv, ok := m.invites[agentID]; ok {
		delete(m.invites, agentID)
		inv.ch <- result{err: ErrCancelled}
	}
}

// pending reports whether the agent is queued or has an outgoing
// invite. Caller holds m.mu.
func (m *Matchmaker) pending(agentID string) bool {
	for _, w := range m.queue {
		if w.agentID == agentID {
			return true
		}
	}
	_, ok := m.invites[agentID]
	return ok
}

// remove unqueues the waiter, reporting whether it was still queued.
// False means another agent claimed it and a result send is imminent.
func (m *Matchmaker) remove(w *waiter) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, q := range m.queue {
		if q == w {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}

// removeInvite withdraws the invite, reporting whether it was still
// pending. False means the target already took it.
func (m *Matchmaker) removeInvite(from string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[from]; !ok {
		return false
	}
	delete(m.invites, from)
	return true
}

func (m *Matchmaker) takeInvite(target, from string) (*invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[from]
	if !ok || inv.target != target {
		return nil, ErrNoSuchInvite
	}
	delete(m.invites, from)
	return inv, nil
}
