// Package ingest connects telemetry producers to the dashboard session.
//
// Every source decodes the same JSON document, either a single message or an
// array of messages, and enqueues the result. Payloads that fail to decode
// are logged and dropped; sources never retry or reconnect.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"CapIot.quakeboard/internal/models"
)

// ErrEmptyPayload is returned by Decode for blank input.
var ErrEmptyPayload = errors.New("empty payload")

// Sink accepts decoded messages; the dashboard session implements it.
type Sink interface {
	Enqueue(ctx context.Context, msg models.Message) error
}

// Source is a long-running telemetry producer.
type Source interface {
	Name() string
	// Run blocks, feeding sink until ctx is done or the source fails.
	Run(ctx context.Context, sink Sink) error
}

// SkippedError reports array elements that failed to decode. Decode returns
// it together with the messages that did decode.
type SkippedError struct {
	Total int
	Errs  []error
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("skipped %d of %d messages: %v", len(e.Errs), e.Total, errors.Join(e.Errs...))
}

func (e *SkippedError) Unwrap() []error {
	return e.Errs
}

// Decode parses a single message object or an array of them. Array elements
// are decoded one by one; bad elements are left out and reported through a
// *SkippedError alongside the good ones.
func Decode(payload []byte) ([]models.Message, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, ErrEmptyPayload
	}

	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("decode message array: %w", err)
		}

		msgs := make([]models.Message, 0, len(elems))
		var errs []error
		for i, elem := range elems {
			var msg models.Message
			if err := json.Unmarshal(elem, &msg); err != nil {
				errs = append(errs, fmt.Errorf("message %d: %w", i, err))
				continue
			}
			msgs = append(msgs, msg)
		}
		if len(errs) > 0 {
			return msgs, &SkippedError{Total: len(elems), Errs: errs}
		}
		return msgs, nil
	}

	var msg models.Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return []models.Message{msg}, nil
}

// deliver decodes payload and enqueues every message. Decode failures are
// logged and swallowed; only an enqueue failure (ctx done) is returned.
func deliver(ctx context.Context, sink Sink, payload []byte, log *slog.Logger) error {
	msgs, err := Decode(payload)
	var skipped *SkippedError
	switch {
	case errors.As(err, &skipped):
		log.Warn("dropping undecodable messages", "skipped", len(skipped.Errs), "total", skipped.Total, "error", err)
	case err != nil:
		log.Warn("dropping undecodable payload", "error", err, "bytes", len(payload))
		return nil
	}
	for _, msg := range msgs {
		if err := sink.Enqueue(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
