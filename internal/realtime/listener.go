package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
)

// StatusChannel is the NOTIFY channel written by the generation_jobs trigger.
const StatusChannel = "generation_job_status"

const pingInterval = 90 * time.Second

// notificationSource is the subset of *pq.Listener the loop consumes.
type notificationSource interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// PQListener relays NOTIFY payloads into a Hub.
type PQListener struct {
	source    notificationSource
	hub       *Hub
	logger    *infra.Logger
	closeOnce sync.Once
}

// NewPQListener opens a dedicated lib/pq connection listening on
// StatusChannel. lib/pq reconnects on its own; reconnects are logged.
func NewPQListener(dsn string, hub *Hub, logger *infra.Logger) (*PQListener, error) {
	logger = infra.OrDiscard(logger)
	l := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Warn().Err(err).Msg("realtime listener disconnected")
		case pq.ListenerEventReconnected:
			logger.Info().Msg("realtime listener reconnected")
		}
	})
	if err := l.Listen(StatusChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", StatusChannel, err)
	}
	return &PQListener{source: l, hub: hub, logger: logger}, nil
}

// Run relays notifications until ctx is done, then closes the connection.
func (l *PQListener) Run(ctx context.Context) error {
	defer l.Close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	notifications := l.source.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if n == nil {
				// lib/pq sends nil after a reconnect; events may have been missed.
				continue
			}
			ev, err := decodeNotification(n.Extra)
			if err != nil {
				l.logger.Warn().Err(err).Str("channel", n.Channel).Msg("drop malformed status notification")
				continue
			}
			l.hub.Publish(ev)
		case <-ticker.C:
			if err := l.source.Ping(); err != nil {
				l.logger.Warn().Err(err).Msg("realtime listener ping failed")
			}
		}
	}
}

// Close releases the listener connection. It is safe to call more than once.
func (l *PQListener) Close() {
	l.closeOnce.Do(func() {
		if err := l.source.Close(); err != nil {
			l.logger.Warn().Err(err).Msg("close realtime listener")
		}
	})
}

type statusPayload struct {
	JobID        string  `json:"job_id"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	ErrorMessage string  `json:"error_message"`
	ImageID      string  `json:"image_id"`
	VideoID      string  `json:"video_id"`
}

func decodeNotification(payload string) (domain.StatusEvent, error) {
	var p statusPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.StatusEvent{}, fmt.Errorf("decode notification: %w", err)
	}
	if p.JobID == "" {
		return domain.StatusEvent{}, fmt.Errorf("decode notification: job_id missing")
	}
	return domain.StatusEvent{
		JobID:        p.JobID,
		Status:       domain.ParseJobStatus(p.Status),
		Progress:     int(p.Progress),
		ErrorMessage: p.ErrorMessage,
		ImageID:      p.ImageID,
		VideoID:      p.VideoID,
	}, nil
}
