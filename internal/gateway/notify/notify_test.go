package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/gateway/retry"
	testlog "courier-dispatch/internal/testutil"
)

type fakeSender struct {
	calls int32
	err   error
	last  *messaging.Message
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.last = m
	if f.err != nil {
		return "", f.err
	}
	return "projects/p/messages/1", nil
}

type counterStub struct{ n int64 }

func (c *counterStub) Inc() { atomic.AddInt64(&c.n, 1) }

func TestFCM_SendsToUserTopic(t *testing.T) {
	fs := &fakeSender{}
	f := &FCM{client: fs, logger: testlog.New().Logger()}

	err := f.Notify(context.Background(), "u-7", Notification{
		Title: "Tu pedido va en camino",
		Body:  "El repartidor recogió tu pedido",
		Data:  map[string]string{"order_id": "o-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "user_u-7", fs.last.Topic)
	require.Equal(t, "Tu pedido va en camino", fs.last.Notification.Title)
	require.Equal(t, "o-1", fs.last.Data["order_id"])
}

func TestFCM_EmptyUserIsPermanent(t *testing.T) {
	fs := &fakeSender{}
	f := &FCM{client: fs, logger: testlog.New().Logger()}
	r := retry.New(nil, nil, retry.Config{MaxAttempts: 3}, nil)

	err := r.Do(context.Background(), "notify", func(ctx context.Context) error {
		return f.Notify(ctx, "", Notification{})
	})
	require.Error(t, err)
	require.Zero(t, fs.calls)
}

func TestRetrying_GivesUpQuietly(t *testing.T) {
	fs := &fakeSender{err: errors.New("unavailable")}
	rec := testlog.New()
	failures := &counterStub{}
	n := NewRetrying(&FCM{client: fs, logger: rec.Logger()},
		retry.New(nil, nil, retry.Config{MaxAttempts: 3}, nil), failures, rec.Logger())

	require.NoError(t, n.Notify(context.Background(), "u-1", Notification{Title: "x"}))
	require.EqualValues(t, 3, fs.calls)
	require.EqualValues(t, 1, failures.n)

	e, ok := rec.Find("notification dropped")
	require.True(t, ok)
	require.Equal(t, "warn", e.Level)
}

func TestLog(t *testing.T) {
	rec := testlog.New()
	require.NoError(t, NewLog(rec.Logger()).Notify(context.Background(), "u-1", Notification{Title: "hola"}))
	require.Equal(t, []string{"notification_logged"}, rec.Events())
}
