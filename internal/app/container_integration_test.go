//go:build integration

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/logx"
)

func TestContainer_Postgres_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dispatch_db"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	load := func() (*config.Config, error) {
		cfg := config.Defaults()
		cfg.Log.Env = "development"
		cfg.Log.Level = "error"
		cfg.DB = config.DB{Host: host, Port: port.Port(), User: "test_user", Pass: "test_pass", Name: "dispatch_db"}
		return &cfg, nil
	}

	c, err := NewContainerBuilder().WithConfig(load).build(ctx, registerHTTP)
	require.NoError(t, err)

	var h http.Handler
	var cl *cleanup
	require.NoError(t, c.Invoke(func(mux http.Handler, cu *cleanup) { h, cl = mux, cu }))
	t.Cleanup(func() {
		_ = c.Invoke(func(s sweeper) { s.Close() })
		cl.run(logx.Nop())
	})

	req := httptest.NewRequest(http.MethodPost, "/drivers",
		strings.NewReader(`{"user_id":"drv-it","name":"Ana","phone":"+525500009999"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/drivers", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"user_id":"drv-it"`)
}
