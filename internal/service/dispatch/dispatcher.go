// Package dispatch wires order intake, driver selection, the two state
// machines, tracking and notifications together.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
	"courier-dispatch/internal/realtime"
	"courier-dispatch/internal/service/candidate"
)

// Reasons recorded with needs_manual_assignment.
const (
	ReasonGeocodingFailed  = "geocoding_failed"
	ReasonNoDestination    = "no_destination"
	ReasonNoCandidate      = "no_candidate"
	ReasonMaxReassignments = "max_reassignments"
)

// Outcome of a dispatch attempt.
type Outcome string

// List of dispatch outcomes
const (
	OutcomeAssigned   Outcome = "assigned"
	OutcomeUnassigned Outcome = "unassigned"
	OutcomeManual     Outcome = "manual"
	OutcomeSkipped    Outcome = "skipped"
)

// Result describes what a dispatch attempt did.
type Result struct {
	Outcome    Outcome            `json:"outcome"`
	Reason     string             `json:"reason,omitempty"`
	Assignment *domain.Assignment `json:"-"`
	Driver     *domain.Driver     `json:"-"`
}

// Config is the dispatch policy.
type Config struct {
	Policy                  candidate.Policy
	AcceptanceTimeout       time.Duration
	MaxReassignmentAttempts int
	NoCandidateRetryDelay   time.Duration
	MaxNoCandidateRetries   int
	SweepInterval           time.Duration
	AwaitingBatch           int
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Orders      orderStore
	Assignments assignmentStore
	Drivers     driverReader
	Geocoder    geocoder
	Candidates  candidateFilter
	Selector    driverSelector
	Transitions assignmentMachine
	Lifecycle   orderMachine
	Tracker     tracker
	Timeline    timelineBuilder
	Emitter     emitter
	Notifier    notifier
	// Outcomes is labelled by outcome; may be nil.
	Outcomes *prometheus.CounterVec
	Logger   logx.Logger
}

// Dispatcher is the orchestrator.
type Dispatcher struct {
	Deps
	cfg              Config
	operationTimeout time.Duration
	now              func() time.Time

	offers  *timerSet
	retries *timerSet

	mu     sync.Mutex
	misses map[string]int
	closed bool
}

// New creates a Dispatcher.
func New(deps Deps, cfg Config, timeout time.Duration) *Dispatcher {
	if cfg.AcceptanceTimeout <= 0 {
		cfg.AcceptanceTimeout = 30 * time.Second
	}
	if cfg.NoCandidateRetryDelay <= 0 {
		cfg.NoCandidateRetryDelay = 20 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Second
	}
	if cfg.AwaitingBatch <= 0 {
		cfg.AwaitingBatch = 20
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = logx.Nop()
	}
	return &Dispatcher{
		Deps:             deps,
		cfg:              cfg,
		operationTimeout: timeout,
		now:              func() time.Time { return time.Now().UTC() },
		offers:           newTimerSet(realAfterFunc),
		retries:          newTimerSet(realAfterFunc),
		misses:           make(map[string]int),
	}
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.operationTimeout)
}

// background is the context of timer callbacks.
func (d *Dispatcher) background() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.operationTimeout)
}

// Close stops every pending timer. Timers that already fired become no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.offers.stopAll()
	d.retries.stopAll()
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) count(outcome string) {
	if d.Outcomes != nil {
		d.Outcomes.WithLabelValues(outcome).Inc()
	}
}

type dispatchMode int

const (
	// modeAuto counts misses and schedules no-candidate retries.
	modeAuto dispatchMode = iota
	// modeOpportunistic is a re-try on driver availability: misses are not counted.
	modeOpportunistic
	// modeOperator ignores the reassignment cap.
	modeOperator
)

// Dispatch selects a driver for an order awaiting one. Orders flagged for
// manual assignment are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, orderID string) (Result, error) {
	o, err := d.loadOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if o.NeedsManualAssignment {
		return Result{Outcome: OutcomeSkipped, Reason: o.ManualReason}, nil
	}
	return d.dispatch(ctx, o, modeAuto)
}

// ManualDispatch is the operator override: it clears the manual flag,
// retries geocoding if needed and runs selection without the reassignment cap.
func (d *Dispatcher) ManualDispatch(ctx context.Context, orderID string) (Result, error) {
	o, err := d.loadOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if o.Status.Terminal() {
		return Result{}, fmt.Errorf("order %q is %s: %w", o.ID, o.Status, apperr.ErrConflict)
	}
	d.resetMisses(o.ID)
	if o.NeedsManualAssignment {
		if err := d.setManual(ctx, o, false, ""); err != nil {
			return Result{}, err
		}
	}
	if o.Destination == nil {
		if r, ok := d.geocode(ctx, o); !ok {
			return r, nil
		}
	}
	return d.dispatch(ctx, o, modeOperator)
}

// Order returns an order with its items.
func (d *Dispatcher) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	return d.loadOrder(ctx, orderID)
}

func (d *Dispatcher) loadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, apperr.ErrInvalid
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	o, err := d.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %q: %w", orderID, apperr.ErrNotFound)
	}
	return o, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, o *domain.Order, mode dispatchMode) (Result, error) {
	if o.Status.Terminal() || o.Status.Reached(domain.OrderOutForDelivery) {
		return Result{Outcome: OutcomeSkipped, Reason: string(o.Status)}, nil
	}
	if o.Destination == nil {
		return d.escalate(ctx, o, ReasonNoDestination)
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	active, err := d.Assignments.GetActiveByOrder(ctx, o.ID)
	if err != nil {
		return Result{}, err
	}
	if active != nil {
		return Result{Outcome: OutcomeSkipped, Reason: "already_assigned", Assignment: active}, nil
	}

	history, err := d.Assignments.ListByOrder(ctx, o.ID)
	if err != nil {
		return Result{}, err
	}
	var exclude []int64
	for _, a := range history {
		if a.Status == domain.AssignmentRejected {
			exclude = append(exclude, a.DriverID)
		}
	}
	if mode != modeOperator && len(exclude) > d.cfg.MaxReassignmentAttempts {
		return d.escalate(ctx, o, ReasonMaxReassignments)
	}

	cands, err := d.Candidates.Filter(ctx, *o.Destination, d.cfg.Policy, exclude)
	if err != nil {
		d.count(metrics.OutcomeFailed)
		return Result{}, err
	}
	res, err := d.Selector.Select(ctx, o.ID, cands)
	switch {
	case errors.Is(err, apperr.ErrNoCandidate):
		return d.noCandidate(ctx, o, mode, len(cands))
	case errors.Is(err, apperr.ErrConflict):
		return Result{Outcome: OutcomeSkipped, Reason: "conflict"}, nil
	case err != nil:
		d.count(metrics.OutcomeFailed)
		return Result{}, err
	}

	d.onAssigned(ctx, o, res)
	return Result{Outcome: OutcomeAssigned, Assignment: &res.Assignment, Driver: &res.Driver}, nil
}

func (d *Dispatcher) noCandidate(ctx context.Context, o *domain.Order, mode dispatchMode, poolSize int) (Result, error) {
	d.count(metrics.OutcomeNoCandidate)
	if mode == modeOpportunistic {
		return Result{Outcome: OutcomeUnassigned, Reason: ReasonNoCandidate}, nil
	}

	d.mu.Lock()
	d.misses[o.ID]++
	n := d.misses[o.ID]
	d.mu.Unlock()

	if n > d.cfg.MaxNoCandidateRetries {
		d.resetMisses(o.ID)
		return d.escalate(ctx, o, ReasonNoCandidate)
	}

	orderID := o.ID
	d.retries.start(orderID, int64(n), d.cfg.NoCandidateRetryDelay, func() { d.retry(orderID) })
	d.Logger.Info("no driver available, retry scheduled",
		logx.String("event", "dispatch_unassigned"),
		logx.String("order_id", orderID),
		logx.Int("attempt", n),
		logx.Int("pool", poolSize),
		logx.Duration("retry_in", d.cfg.NoCandidateRetryDelay),
	)
	return Result{Outcome: OutcomeUnassigned, Reason: ReasonNoCandidate}, nil
}

func (d *Dispatcher) retry(orderID string) {
	if d.isClosed() {
		return
	}
	ctx, cancel := d.background()
	defer cancel()
	if _, err := d.Dispatch(ctx, orderID); err != nil {
		d.Logger.Error("dispatch retry failed",
			logx.String("event", "dispatch_retry_failed"),
			logx.String("order_id", orderID),
			logx.Err(err),
		)
	}
}

func (d *Dispatcher) escalate(ctx context.Context, o *domain.Order, reason string) (Result, error) {
	d.retries.stop(o.ID)
	if err := d.setManual(ctx, o, true, reason); err != nil {
		return Result{}, err
	}
	d.count(metrics.OutcomeEscalated)
	d.Logger.Warn("order needs manual assignment",
		logx.String("event", "dispatch_escalated"),
		logx.String("order_id", o.ID),
		logx.String("reason", reason),
	)
	return Result{Outcome: OutcomeManual, Reason: reason}, nil
}

func (d *Dispatcher) setManual(ctx context.Context, o *domain.Order, manual bool, reason string) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	if err := d.Orders.SetManual(ctx, o.ID, manual, reason); err != nil {
		return fmt.Errorf("flag order %q: %w", o.ID, err)
	}
	o.NeedsManualAssignment = manual
	o.ManualReason = reason
	return nil
}

func (d *Dispatcher) resetMisses(orderID string) {
	d.mu.Lock()
	delete(d.misses, orderID)
	d.mu.Unlock()
	d.retries.stop(orderID)
}

func (d *Dispatcher) onAssigned(ctx context.Context, o *domain.Order, res domain.AssignResult) {
	d.count(metrics.OutcomeAssigned)
	d.resetMisses(o.ID)

	a := res.Assignment
	d.offers.start(o.ID, a.ID, d.cfg.AcceptanceTimeout, func() { d.expireByTimer(a.ID) })
	d.Tracker.Seed(o.ID, res.Driver.ID, res.Driver.Position, o.Destination, res.Driver.Vehicle, a.OfferedAt)

	d.Emitter.Emit(ctx, realtime.DriverTopic(res.Driver.ID), realtime.KindOffer, OfferPayload{
		AssignmentID: a.ID,
		OrderID:      o.ID,
		Address:      o.Address,
		Destination:  o.Destination,
		DistanceKm:   a.DistanceKm,
		ETAMinutes:   a.ETAMinutes,
		ExpiresAt:    a.OfferExpiresAt,
	})
	d.publishStatus(ctx, o.ID, o.Status, &a)
	d.notify(ctx, res.Driver.UserID, "Nuevo pedido asignado",
		fmt.Sprintf("Tienes %s para aceptar el pedido a %.1f km", d.cfg.AcceptanceTimeout, a.DistanceKm),
		o.ID, a.ID)
}
