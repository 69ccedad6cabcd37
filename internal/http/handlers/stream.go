package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/realtime"
)

const defaultKeepAlive = 15 * time.Second

// streamer relays a realtime topic as Server-Sent Events.
type streamer struct {
	sub       realtime.Subscriber
	keepAlive time.Duration
	logger    logx.Logger
}

func newStreamer(sub realtime.Subscriber, logger logx.Logger) *streamer {
	return &streamer{sub: sub, keepAlive: defaultKeepAlive, logger: logger}
}

func (s *streamer) serve(w http.ResponseWriter, r *http.Request, topic realtime.Topic) {
	fl, ok := w.(http.Flusher)
	if !ok || s.sub == nil {
		writeError(s.logger, w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ctx := r.Context()
	sub, err := s.sub.Subscribe(ctx, topic)
	if err != nil {
		writeAppError(s.logger, w, r, err)
		return
	}
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", topic)
	fl.Flush()

	s.logger.Info("stream opened",
		logx.String("event", "stream_opened"),
		logx.String("req_id", reqID(ctx)),
		logx.String("topic", string(topic)),
	)
	defer s.logger.Info("stream closed",
		logx.String("event", "stream_closed"),
		logx.String("req_id", reqID(ctx)),
		logx.String("topic", string(topic)),
	)

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				return
			}
			fl.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			fl.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, msg realtime.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Kind, data)
	return err
}
