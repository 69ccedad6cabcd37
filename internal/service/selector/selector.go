// Package selector ranks candidate drivers and claims the best one for an order.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/ports/dispatchtx"
)

// Score weights. Distance dominates; rating only separates near-equal distances.
const (
	distanceWeight = 0.8
	ratingWeight   = 0.2
	maxRating      = 5.0
)

var errClaimLost = errors.New("driver claimed by another order")

// Score is the informational weighted score stored on the assignment.
func Score(c domain.Candidate) float64 {
	return distanceWeight/(1+c.DistanceKm) + ratingWeight*c.Driver.Rating/maxRating
}

// Rank returns the candidates best first: shortest distance, then highest
// rating, then fewest recent assignments, then lowest driver id.
func Rank(cands []domain.Candidate) []domain.Candidate {
	out := append([]domain.Candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if a.Driver.Rating != b.Driver.Rating {
			return a.Driver.Rating > b.Driver.Rating
		}
		if a.RecentAssignments != b.RecentAssignments {
			return a.RecentAssignments < b.RecentAssignments
		}
		return a.Driver.ID < b.Driver.ID
	})
	return out
}

// Selector claims a driver and creates the offered assignment atomically.
type Selector struct {
	repo              dispatchtx.Runner
	speeds            speedProfile
	acceptanceTimeout time.Duration
	operationTimeout  time.Duration
	claimConflicts    counter
	logger            logx.Logger
	now               func() time.Time
}

// NewSelector creates a Selector.
func NewSelector(
	repo dispatchtx.Runner,
	speeds speedProfile,
	acceptanceTimeout, timeout time.Duration,
	claimConflicts counter,
	logger logx.Logger,
) *Selector {
	if acceptanceTimeout <= 0 {
		acceptanceTimeout = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Selector{
		repo:              repo,
		speeds:            speeds,
		acceptanceTimeout: acceptanceTimeout,
		operationTimeout:  timeout,
		claimConflicts:    claimConflicts,
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (s *Selector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// Select walks the ranked candidates and offers the order to the first driver
// it manages to claim. A lost claim moves on to the next candidate. It returns
// apperr.ErrNoCandidate when nobody could be claimed and apperr.ErrConflict
// when the order can no longer take an assignment.
func (s *Selector) Select(ctx context.Context, orderID string, cands []domain.Candidate) (domain.AssignResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, c := range Rank(cands) {
		res, err := s.tryClaim(ctx, orderID, c)
		switch {
		case err == nil:
			s.logger.Info("assignment created",
				logx.String("event", "assignment_created"),
				logx.String("order_id", orderID),
				logx.Int64("assignment_id", res.Assignment.ID),
				logx.Int64("driver_id", res.Driver.ID),
				logx.Float64("distance_km", res.Assignment.DistanceKm),
				logx.Float64("eta_minutes", res.Assignment.ETAMinutes),
			)
			return res, nil
		case errors.Is(err, errClaimLost):
			if s.claimConflicts != nil {
				s.claimConflicts.Inc()
			}
			s.logger.Debug("driver claim lost",
				logx.String("event", "claim_conflict"),
				logx.String("order_id", orderID),
				logx.Int64("driver_id", c.Driver.ID),
			)
		default:
			return domain.AssignResult{}, err
		}
	}
	return domain.AssignResult{}, apperr.ErrNoCandidate
}

func (s *Selector) tryClaim(ctx context.Context, orderID string, c domain.Candidate) (domain.AssignResult, error) {
	var res domain.AssignResult
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %q: %w", orderID, apperr.ErrNotFound)
		}
		if o.Status.Terminal() || o.Status.Reached(domain.OrderOutForDelivery) {
			return fmt.Errorf("order %q is %s: %w", orderID, o.Status, apperr.ErrConflict)
		}
		active, err := tx.GetActiveAssignmentByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("order %q already offered to driver %d: %w", orderID, active.DriverID, apperr.ErrConflict)
		}

		now := s.now()
		claimed, err := tx.ClaimDriver(ctx, c.Driver.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return errClaimLost
		}
		d, err := tx.GetDriver(ctx, c.Driver.ID)
		if err != nil {
			return err
		}
		if d == nil {
			return errClaimLost
		}

		eta, err := s.speeds.TravelMinutes(d.Vehicle, c.DistanceKm)
		if err != nil {
			return err
		}
		a := &domain.Assignment{
			OrderID:        orderID,
			DriverID:       d.ID,
			Status:         domain.AssignmentOffered,
			DistanceKm:     c.DistanceKm,
			ETAMinutes:     eta,
			Score:          Score(c),
			OfferedAt:      now,
			OfferExpiresAt: now.Add(s.acceptanceTimeout),
		}
		if err := tx.InsertAssignment(ctx, a); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &domain.StatusEvent{
			OrderID:   orderID,
			Entity:    domain.EntityAssignment,
			EntityID:  a.EntityID(),
			ToStatus:  string(a.Status),
			Actor:     domain.ActorSystem,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		res = domain.AssignResult{Assignment: *a, Driver: *d}
		return nil
	})
	return res, err
}
