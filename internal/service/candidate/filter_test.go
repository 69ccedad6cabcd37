package candidate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/repository/memory"
	"courier-dispatch/internal/service/candidate"
)

var dest = domain.Point{Lat: 19.4326, Lng: -99.1332}

// north returns a point km kilometres north of dest.
func north(km float64) *domain.Point {
	return &domain.Point{Lat: dest.Lat + km/111.195, Lng: dest.Lng}
}

func addDriver(t *testing.T, s *memory.Store, phone string, rating float64, pos *domain.Point, mutate ...func(*domain.Driver)) int64 {
	t.Helper()
	d := &domain.Driver{
		Name: "driver " + phone, Phone: phone, Vehicle: domain.VehicleMotorcycle,
		Active: true, Available: true, Rating: rating, Position: pos,
	}
	for _, m := range mutate {
		m(d)
	}
	require.NoError(t, s.Drivers().Create(context.Background(), d))
	return d.ID
}

func ids(cs []domain.Candidate) []int64 {
	out := make([]int64, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Driver.ID)
	}
	return out
}

func TestFilter_AppliesEveryPredicate(t *testing.T) {
	t.Parallel()

	s := memory.New()
	near := addDriver(t, s, "+525500000001", 4.0, north(2))
	far := addDriver(t, s, "+525500000002", 5.0, north(12))
	addDriver(t, s, "+525500000003", 3.0, north(1))
	addDriver(t, s, "+525500000004", 4.8, nil)
	addDriver(t, s, "+525500000005", 4.8, north(1), func(d *domain.Driver) { d.Available = false })
	addDriver(t, s, "+525500000006", 4.8, north(1), func(d *domain.Driver) { d.Active = false })

	f := candidate.NewFilter(s.Drivers(), candidate.Policy{}, time.Hour, time.Second)

	got, err := f.Filter(context.Background(), dest, candidate.Policy{MaxDistanceKm: 10, MinRating: 3.5}, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{near}, ids(got))
	require.InDelta(t, 2.0, got[0].DistanceKm, 0.01)

	got, err = f.Filter(context.Background(), dest, candidate.Policy{MaxDistanceKm: 15, MinRating: 3.5}, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{near, far}, ids(got))
}

func TestFilter_DefaultsAndExclusions(t *testing.T) {
	t.Parallel()

	s := memory.New()
	a := addDriver(t, s, "+525500000011", 4.0, north(19))
	b := addDriver(t, s, "+525500000012", 4.0, north(1))
	addDriver(t, s, "+525500000013", 4.0, north(21))
	addDriver(t, s, "+525500000014", 3.4, north(1))

	f := candidate.NewFilter(s.Drivers(), candidate.Policy{}, 0, 0)
	require.Equal(t, candidate.DefaultMaxDistanceKm, f.Defaults().MaxDistanceKm)
	require.Equal(t, candidate.DefaultMinRating, f.Defaults().MinRating)

	got, err := f.Filter(context.Background(), dest, candidate.Policy{}, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{a, b}, ids(got))

	got, err = f.Filter(context.Background(), dest, candidate.Policy{}, []int64{b})
	require.NoError(t, err)
	require.Equal(t, []int64{a}, ids(got))
}

func TestFilter_RelaxedAvailability(t *testing.T) {
	t.Parallel()

	s := memory.New()
	busy := addDriver(t, s, "+525500000021", 4.5, north(1), func(d *domain.Driver) { d.Available = false })

	f := candidate.NewFilter(s.Drivers(), candidate.Policy{}, 0, 0)
	got, err := f.Filter(context.Background(), dest, candidate.Policy{AllowUnavailable: true}, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{busy}, ids(got))
}

func TestFilter_InvalidDestination(t *testing.T) {
	t.Parallel()

	f := candidate.NewFilter(memory.New().Drivers(), candidate.Policy{}, 0, 0)
	_, err := f.Filter(context.Background(), domain.Point{Lat: 91}, candidate.Policy{}, nil)
	require.True(t, errors.Is(err, apperr.ErrInvalid))
}
