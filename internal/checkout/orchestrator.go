package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/internal/cache"
	"github.com/ndunguloren96/ltronix-shop/internal/cart"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
	"github.com/ndunguloren96/ltronix-shop/pkg/logging"
	"github.com/ndunguloren96/ltronix-shop/pkg/metrics"
)

const (
	component = "checkout"

	RouteOrderHistory = "/orders"

	DefaultPollInterval = 3 * time.Second
	DefaultPollBudget   = 120 * time.Second
)

const (
	msgCompleted = "Payment received. Thank you for your order."
	msgFailed    = "Payment failed. Please try again."
	msgCancelled = "Payment was cancelled."
	msgTimeout   = "M-Pesa did not get a response in time. Please try again."
	msgExpired   = "Payment may still be processing. Check your phone for the M-Pesa confirmation."
)

type PaymentAPI interface {
	InitiatePayment(ctx context.Context, creds backend.Credentials, orderID int64, phone string) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, creds backend.Credentials, transactionID int64) (*domain.Transaction, error)
}

// Navigator moves the shopper to another view.
type Navigator interface {
	Navigate(ctx context.Context, route string)
}

// Notifier is told about every finished attempt.
type Notifier interface {
	Notify(ctx context.Context, out Outcome) error
}

type Config struct {
	CountryCode  string
	PollInterval time.Duration
	PollBudget   time.Duration
}

type Orchestrator struct {
	sessions session.Resolver
	guests   backend.GuestKeys
	api      PaymentAPI
	cart     *cart.Store
	views    cache.ViewCache
	nav      Navigator
	notifier Notifier
	metrics  *metrics.ClientMetrics
	cfg      Config

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	starting bool
	current  *Attempt
}

type Option func(*Orchestrator)

func WithNavigator(n Navigator) Option {
	return func(o *Orchestrator) { o.nav = n }
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithViews(v cache.ViewCache) Option {
	return func(o *Orchestrator) { o.views = v }
}

func NewOrchestrator(sessions session.Resolver, guests backend.GuestKeys, api PaymentAPI, store *cart.Store, cfg Config, opts ...Option) *Orchestrator {
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultCountryCode
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = DefaultPollBudget
	}
	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		sessions: sessions,
		guests:   guests,
		api:      api,
		cart:     store,
		views:    cache.NopViewCache{},
		cfg:      cfg,
		base:     base,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start validates the input, initiates the STK push and begins polling in
// the background. Nothing is sent when validation fails, and nothing changes
// when the initiation request fails.
func (o *Orchestrator) Start(ctx context.Context, orderID int64, phone string) (*Attempt, error) {
	if orderID <= 0 {
		return nil, ErrInvalidOrder
	}
	if !o.cart.Total().IsPositive() {
		return nil, ErrEmptyCart
	}
	normalized, err := ValidatePhone(phone, o.cfg.CountryCode)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.starting || (o.current != nil && !o.current.Closed()) {
		o.mu.Unlock()
		return nil, ErrPaymentInProgress
	}
	o.starting = true
	o.mu.Unlock()

	creds := backend.ResolveCredentials(ctx, o.sessions, o.guests)
	tx, err := o.api.InitiatePayment(ctx, creds, orderID, normalized)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.starting = false
	if err != nil {
		logging.Error(ctx, component, "initiate_failed", err)
		return nil, fmt.Errorf("initiate payment: %w", err)
	}
	if tx.OrderID == 0 {
		tx.OrderID = orderID
	}
	if tx.Phone == "" {
		tx.Phone = normalized
	}

	attempt := newAttempt(*tx)
	o.current = attempt
	logging.Log(ctx, logging.Fields{
		Component:     component,
		Event:         "initiated",
		TransactionID: tx.ID,
		OrderID:       orderID,
		Status:        tx.Status.String(),
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.poll(o.base, attempt, creds)
	}()
	return attempt, nil
}

// Current returns the latest attempt, finished or not.
func (o *Orchestrator) Current() *Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Lookup finds the latest attempt by transaction id.
func (o *Orchestrator) Lookup(transactionID int64) (*Attempt, bool) {
	a := o.Current()
	if a == nil || a.ID() != transactionID {
		return nil, false
	}
	return a, true
}

// Stop abandons polling; used on process shutdown only.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
}

// poll asks for the transaction status on every tick until a terminal status
// arrives or the deadline fires. Requests are strictly sequential and a
// failed request is retried on the next tick.
func (o *Orchestrator) poll(ctx context.Context, a *Attempt, creds backend.Credentials) {
	start := time.Now()
	deadlineAt := start.Add(o.cfg.PollBudget)
	last := a.Transaction()

	if last.Status.IsTerminal() {
		o.finish(ctx, a, o.outcomeFor(last, 0, 0, time.Since(start)))
		return
	}

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(o.cfg.PollBudget)
	defer deadline.Stop()

	polls := 0
	var lastPoll time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			o.finish(ctx, a, o.expired(last, polls, lastPoll, time.Since(start)))
			return
		case <-ticker.C:
			sent := time.Since(start)
			if sent > o.cfg.PollBudget {
				o.finish(ctx, a, o.expired(last, polls, lastPoll, sent))
				return
			}
			polls++
			lastPoll = sent
			if o.metrics != nil {
				o.metrics.PaymentPolls.Inc()
			}

			reqCtx, cancel := context.WithDeadline(ctx, deadlineAt)
			tx, err := o.api.GetTransaction(reqCtx, creds, a.ID())
			cancel()
			if err != nil {
				logging.Log(ctx, logging.Fields{
					Component:     component,
					Event:         "poll_failed",
					TransactionID: a.ID(),
					Error:         err.Error(),
				})
				continue
			}
			last = *tx
			a.setStatus(tx.Status)
			if tx.Status.IsTerminal() {
				o.finish(ctx, a, o.outcomeFor(*tx, polls, lastPoll, time.Since(start)))
				return
			}
		}
	}
}

func (o *Orchestrator) outcomeFor(tx domain.Transaction, polls int, lastPoll, elapsed time.Duration) Outcome {
	out := Outcome{Transaction: tx, Polls: polls, LastPoll: lastPoll, Elapsed: elapsed}
	switch tx.Status {
	case domain.TransactionStatusCompleted:
		out.Kind = OutcomeCompleted
		out.Message = msgCompleted
		if tx.ReceiptNumber != "" {
			out.Message = fmt.Sprintf("%s M-Pesa receipt %s.", msgCompleted, tx.ReceiptNumber)
		}
		out.Redirect = RouteOrderHistory
	case domain.TransactionStatusCancelled:
		out.Kind = OutcomeCancelled
		out.Message = msgCancelled
	case domain.TransactionStatusTimeout:
		out.Kind = OutcomeTimeout
		out.Message = msgTimeout
	default:
		out.Kind = OutcomeFailed
		out.Message = msgFailed
		if tx.ResultDescription != "" {
			out.Message = tx.ResultDescription
		}
	}
	return out
}

func (o *Orchestrator) expired(last domain.Transaction, polls int, lastPoll, elapsed time.Duration) Outcome {
	return Outcome{
		Kind:        OutcomeExpired,
		Transaction: last,
		Message:     msgExpired,
		Polls:       polls,
		LastPoll:    lastPoll,
		Elapsed:     elapsed,
	}
}

func (o *Orchestrator) finish(ctx context.Context, a *Attempt, out Outcome) {
	a.finish(out, func() {
		switch out.Kind {
		case OutcomeCompleted:
			o.cart.Clear(ctx)
			if err := o.views.Invalidate(ctx, cache.ViewCart, cache.ViewOrders); err != nil {
				logging.Error(ctx, component, "cache_invalidate_failed", err)
			}
			if o.nav != nil {
				o.nav.Navigate(ctx, RouteOrderHistory)
			}
		case OutcomeExpired:
			if err := o.views.Invalidate(ctx, cache.ViewCart); err != nil {
				logging.Error(ctx, component, "cache_invalidate_failed", err)
			}
		}

		if o.metrics != nil {
			o.metrics.PaymentOutcomes.WithLabelValues(string(out.Kind)).Inc()
		}
		if o.notifier != nil {
			if err := o.notifier.Notify(ctx, out); err != nil {
				logging.Error(ctx, component, "notify_failed", err)
			}
		}
		logging.Log(ctx, logging.Fields{
			Component:     component,
			Event:         "finished",
			TransactionID: a.ID(),
			OrderID:       out.Transaction.OrderID,
			Status:        string(out.Kind),
			DurationMS:    out.Elapsed.Milliseconds(),
			Message:       out.Message,
		})
	})
}
