// Package driver is the driver registry.
package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

// DefaultRating is given to drivers registered without one.
const DefaultRating = 5.0

// Service coordinates driver registration and the availability toggle.
type Service struct {
	repo             driverRepository
	listener         availabilityListener
	operationTimeout time.Duration
	logger           logx.Logger
}

// NewService creates and configures a driver Service. listener may be nil.
func NewService(r driverRepository, listener availabilityListener, timeout time.Duration, logger logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Service{repo: r, listener: listener, operationTimeout: timeout, logger: logger}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// validateCreate validates a driver for registration and fills defaults.
func validateCreate(d *domain.Driver) error {
	if d == nil {
		return apperr.ErrInvalid
	}
	d.UserID = strings.TrimSpace(d.UserID)
	d.Name = strings.TrimSpace(d.Name)
	if d.UserID == "" || d.Name == "" {
		return apperr.ErrInvalid
	}
	if !domain.ValidatePhone(d.Phone) {
		return apperr.ErrInvalid
	}
	if d.Vehicle == "" {
		d.Vehicle = domain.VehicleMotorcycle
	}
	if !d.Vehicle.Valid() {
		return apperr.ErrInvalid
	}
	if d.Rating == 0 {
		d.Rating = DefaultRating
	}
	if d.Rating < 0 || d.Rating > 5 {
		return apperr.ErrInvalid
	}
	return nil
}

// Create registers a new active driver and fills its ID.
func (s *Service) Create(ctx context.Context, d *domain.Driver) error {
	if err := validateCreate(d); err != nil {
		return err
	}
	d.Active = true
	d.Available = true
	d.Paused = false
	d.DeliveriesCount = 0

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.repo.Create(ctx, d); err != nil {
		return err
	}
	s.logger.Info("driver registered",
		logx.String("event", "driver_created"),
		logx.Int64("driver_id", d.ID),
		logx.String("vehicle", string(d.Vehicle)),
	)
	return nil
}

// Get retrieves a driver by its ID.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Driver, error) {
	if id <= 0 {
		return nil, apperr.ErrInvalid
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("driver %d: %w", id, apperr.ErrNotFound)
	}
	return d, nil
}

// List returns all drivers ordered by id.
func (s *Service) List(ctx context.Context) ([]domain.Driver, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.List(ctx)
}

// SetAvailability applies the driver's own toggle. Going unavailable pauses
// the driver; going available re-enters the pool unless an assignment still
// holds them, and then offers orders waiting for a driver.
func (s *Service) SetAvailability(ctx context.Context, id int64, available bool) (*domain.Driver, error) {
	if id <= 0 {
		return nil, apperr.ErrInvalid
	}
	tctx, cancel := s.withTimeout(ctx)
	d, err := s.repo.SetAvailability(tctx, id, available)
	cancel()
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("driver %d: %w", id, apperr.ErrNotFound)
	}

	s.logger.Info("driver availability changed",
		logx.String("event", "driver_availability"),
		logx.Int64("driver_id", id),
		logx.Bool("requested", available),
		logx.Bool("available", d.Available),
		logx.Bool("paused", d.Paused),
	)
	if d.Available && s.listener != nil {
		s.listener.OnDriverAvailable(ctx, id)
	}
	return d, nil
}
