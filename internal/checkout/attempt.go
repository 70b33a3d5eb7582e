package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/ndunguloren96/ltronix-shop/internal/domain"
)

type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
	// OutcomeTimeout is the backend's TIMEOUT status.
	OutcomeTimeout OutcomeKind = "timeout"
	// OutcomeExpired is the client giving up after the polling budget.
	OutcomeExpired OutcomeKind = "expired"
)

type Outcome struct {
	Kind        OutcomeKind        `json:"kind"`
	Transaction domain.Transaction `json:"transaction"`
	Message     string             `json:"message"`
	Redirect    string             `json:"redirect,omitempty"`
	Polls       int                `json:"polls"`
	// LastPoll is when the last status request was sent, relative to the start.
	LastPoll time.Duration `json:"last_poll"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Attempt is one STK push from initiation to its outcome. The status view it
// backs can only be closed once an outcome exists.
type Attempt struct {
	tx        domain.Transaction
	startedAt time.Time

	mu      sync.RWMutex
	status  domain.TransactionStatus
	outcome *Outcome
	closed  bool
	once    sync.Once
	done    chan struct{}
}

func newAttempt(tx domain.Transaction) *Attempt {
	return &Attempt{
		tx:        tx,
		startedAt: time.Now(),
		status:    tx.Status,
		done:      make(chan struct{}),
	}
}

func (a *Attempt) ID() int64 {
	return a.tx.ID
}

func (a *Attempt) Transaction() domain.Transaction {
	return a.tx
}

func (a *Attempt) Status() domain.TransactionStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *Attempt) Outcome() (Outcome, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.outcome == nil {
		return Outcome{}, false
	}
	return *a.outcome, true
}

func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Close dismisses the status view. It is refused while the payment is still
// being confirmed.
func (a *Attempt) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome == nil {
		return ErrPaymentInProgress
	}
	a.closed = true
	return nil
}

func (a *Attempt) Closed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// Wait blocks until the attempt has an outcome or ctx ends.
func (a *Attempt) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-a.done:
		out, _ := a.Outcome()
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (a *Attempt) setStatus(s domain.TransactionStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// finish runs effects and then records the outcome, closing the view. Only
// the first call counts. Waiters are released after effects have run.
func (a *Attempt) finish(out Outcome, effects func()) bool {
	first := false
	a.once.Do(func() {
		first = true
		if effects != nil {
			effects()
		}
		a.mu.Lock()
		a.outcome = &out
		a.status = out.Transaction.Status
		a.closed = true
		a.mu.Unlock()
		close(a.done)
	})
	return first
}
