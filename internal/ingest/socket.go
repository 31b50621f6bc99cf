package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// SocketSource reads telemetry frames from an upstream WebSocket stream.
type SocketSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    *slog.Logger
}

// NewSocketSource creates a source for the ws:// or wss:// url.
func NewSocketSource(url string, log *slog.Logger) *SocketSource {
	return &SocketSource{
		url:    url,
		dialer: websocket.DefaultDialer,
		log:    log.With("component", "ingest", "source", "socket"),
	}
}

// Name implements Source.
func (s *SocketSource) Name() string {
	return "socket"
}

// Run dials the upstream and reads frames until the connection closes or ctx is done.
func (s *SocketSource) Run(ctx context.Context, sink Sink) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()
	s.log.Info("connected to upstream telemetry stream", "url", s.url)

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				s.log.Info("upstream closed the stream")
				return nil
			}
			return fmt.Errorf("read from %s: %w", s.url, err)
		}
		if err := deliver(ctx, sink, payload, s.log); err != nil {
			return err
		}
	}
}
