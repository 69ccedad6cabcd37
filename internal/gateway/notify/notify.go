// Package notify delivers best-effort push notifications to users.
package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"courier-dispatch/internal/gateway/retry"
	"courier-dispatch/internal/logx"
)

// Notification is what the user sees plus machine-readable data.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Notifier sends a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}

type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM sends notifications through Firebase Cloud Messaging. Every user
// device subscribes to the topic "user_<id>".
type FCM struct {
	client sender
	logger logx.Logger
}

// NewFCMClient initialises the Firebase Admin SDK messaging client.
// An empty credentialsFile falls back to application default credentials.
func NewFCMClient(ctx context.Context, projectID, credentialsFile string) (*messaging.Client, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return client, nil
}

// NewFCM creates an FCM notifier.
func NewFCM(client *messaging.Client, logger logx.Logger) *FCM {
	if logger == nil {
		logger = logx.Nop()
	}
	return &FCM{client: client, logger: logger}
}

// UserTopic is the FCM topic a user's devices listen on.
func UserTopic(userID string) string {
	return "user_" + userID
}

// Notify sends n to every device of userID.
func (f *FCM) Notify(ctx context.Context, userID string, n Notification) error {
	if userID == "" {
		return retry.Permanent(fmt.Errorf("empty user id"))
	}
	msg := &messaging.Message{
		Topic: UserTopic(userID),
		Data:  n.Data,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	id, err := f.client.Send(ctx, msg)
	if err != nil {
		if errorutils.IsInvalidArgument(err) {
			return retry.Permanent(fmt.Errorf("sending FCM to %s: %w", msg.Topic, err))
		}
		return fmt.Errorf("sending FCM to %s: %w", msg.Topic, err)
	}
	f.logger.Debug("fcm sent",
		logx.String("event", "notification_sent"),
		logx.String("topic", msg.Topic),
		logx.String("message_id", id),
	)
	return nil
}

// Log only records notifications. It is used when Firebase is not configured.
type Log struct {
	logger logx.Logger
}

// NewLog creates a log-only notifier.
func NewLog(logger logx.Logger) *Log {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Log{logger: logger}
}

// Notify logs the notification.
func (l *Log) Notify(_ context.Context, userID string, n Notification) error {
	l.logger.Info("notification",
		logx.String("event", "notification_logged"),
		logx.String("user_id", userID),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
		logx.Any("data", n.Data),
	)
	return nil
}

type counter interface {
	Inc()
}

// Retrying retries failed notifications a bounded number of times and then
// gives up quietly: the error is logged and counted, never returned.
type Retrying struct {
	next     Notifier
	r        *retry.Retrier
	failures counter
	logger   logx.Logger
}

// NewRetrying wraps next.
func NewRetrying(next Notifier, r *retry.Retrier, failures counter, logger logx.Logger) *Retrying {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Retrying{next: next, r: r, failures: failures, logger: logger}
}

// Notify always returns nil.
func (n *Retrying) Notify(ctx context.Context, userID string, msg Notification) error {
	err := n.r.Do(ctx, "notify", func(ctx context.Context) error {
		return n.next.Notify(ctx, userID, msg)
	})
	if err != nil {
		if n.failures != nil {
			n.failures.Inc()
		}
		n.logger.Warn("notification dropped",
			logx.String("event", "notification_failed"),
			logx.String("user_id", userID),
			logx.String("title", msg.Title),
			logx.Err(err),
		)
	}
	return nil
}
