//go:build integration

package repository_test

import (
	"context"
	"time"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/repository"
)

func seedDriver(ctx context.Context, repo *repository.DriverRepo, phone string, p *domain.Point) (*domain.Driver, error) {
	d := &domain.Driver{
		UserID:    "user-" + phone,
		Name:      "Lucia",
		Phone:     phone,
		Vehicle:   domain.VehicleMotorcycle,
		Active:    true,
		Available: true,
		Rating:    4.5,
	}
	if err := repo.Create(ctx, d); err != nil {
		return nil, err
	}
	if p != nil {
		if _, err := repo.UpdatePosition(ctx, d.ID, *p, time.Now().UTC()); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func seedOrder(ctx context.Context, repo *repository.OrderRepo, id string, dest *domain.Point) (*domain.Order, error) {
	o := &domain.Order{
		ID:          id,
		CustomerID:  "cust-1",
		StoreID:     "store-1",
		Address:     "Av. Reforma 222, CDMX",
		Destination: dest,
		Status:      domain.OrderPending,
		Subtotal:    domain.Money{Amount: 10000, Currency: "MXN"},
		DeliveryFee: domain.Money{Amount: 1500, Currency: "MXN"},
		Total:       domain.Money{Amount: 11500, Currency: "MXN"},
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := repo.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}
