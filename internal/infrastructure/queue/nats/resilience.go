package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/resilience"
)

// Publishing an ingestion event fails in one of three ways: the connection
// is gone for good, the client is between servers, or the event itself is
// unacceptable to the server.
func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case resilience.IsContextError(err):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case connectionLost(err):
		// Retrying a closed connection cannot succeed; readiness is told instead.
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	case reconnecting(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case eventRejected(err):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	default:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

func connectionLost(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrConnectionDraining)
}

func reconnecting(err error) bool {
	return errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, nats.ErrReconnectBufExceeded) ||
		errors.Is(err, nats.ErrTimeout)
}

func eventRejected(err error) bool {
	return errors.Is(err, nats.ErrMaxPayload) ||
		errors.Is(err, nats.ErrBadSubject) ||
		errors.Is(err, nats.ErrInvalidMsg)
}

// wrapPublishError marks outages as temporary so callers can tell them from
// a malformed event.
func wrapPublishError(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if connectionLost(err) || reconnecting(err) || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "publish records ingested", err)
	}
	return err
}
