package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/resilience"
)

const queueGroup = "sentiment-workers"

type Queue struct {
	conn         *nats.Conn
	subject      string
	executor     *resilience.Executor
	notify       func(error)
	connectWatch *time.Timer
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// OnConnectionChange is told about disconnects (with the error) and
	// reconnects (with nil).
	OnConnectionChange func(err error)
	// InitialConnectDeadline bounds how long a first connection may take
	// before OnConnectionChange reports a failure. Connecting continues.
	InitialConnectDeadline time.Duration
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	notify := options.OnConnectionChange
	if notify == nil {
		notify = func(error) {}
	}

	conn, err := nats.Connect(
		url,
		nats.Name("doc-analytics"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.ConnectHandler(func(nc *nats.Conn) {
			slog.Info("nats connected", "url", nc.ConnectedUrl())
			notify(nil)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
			if err == nil {
				err = nats.ErrDisconnected
			}
			notify(err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
			notify(nil)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	q := &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		notify:   notify,
	}
	if conn.IsConnected() {
		notify(nil)
	} else {
		deadline := options.InitialConnectDeadline
		if deadline <= 0 {
			deadline = 30 * time.Second
		}
		q.connectWatch = watchInitialConnect(conn, url, deadline, notify)
	}
	return q, nil
}

type connState interface {
	IsConnected() bool
	IsClosed() bool
}

// watchInitialConnect reports a failure if conn has not connected once the
// deadline passes. A later successful connect reports ready through the
// connect handler.
func watchInitialConnect(conn connState, url string, deadline time.Duration, notify func(error)) *time.Timer {
	return time.AfterFunc(deadline, func() {
		if conn.IsConnected() || conn.IsClosed() {
			return
		}
		slog.Warn("nats initial connect overdue", "url", url, "deadline", deadline.String())
		notify(fmt.Errorf("no connection to %s after %s: %w", url, deadline, nats.ErrNoServers))
	})
}

func (q *Queue) Close() {
	if q.connectWatch != nil {
		q.connectWatch.Stop()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRecordsIngested(ctx context.Context, event domain.RecordsIngested) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal records ingested event: %w", err)
	}

	err = q.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		if connectionLost(err) {
			q.notify(err)
		}
		return wrapPublishError(err)
	}
	return nil
}

func (q *Queue) SubscribeRecordsIngested(ctx context.Context, handler func(context.Context, domain.RecordsIngested) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}

		var event domain.RecordsIngested
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("dropping malformed records event", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			slog.Error("records event handler failed", "count", event.Count, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
