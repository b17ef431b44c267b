package exchanges

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

func newDialer(handshakeTimeout time.Duration) *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: handshakeTimeout,
	}
}

// closeOnDone closes conn when ctx is cancelled so a blocked read returns.
// The returned func must be called once the connection is no longer used.
func closeOnDone(ctx context.Context, conn *websocket.Conn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	return func() { close(done) }
}

// keepAlive pings the peer every interval. Only pongs extend the read deadline:
// without a pong within two intervals the next read fails with a timeout, even
// if data frames keep arriving.
func keepAlive(conn *websocket.Conn, interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	extend := func() {
		conn.SetReadDeadline(time.Now().Add(2 * interval))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

// isDisconnect reports whether err means the stream was closed, cleanly or
// not, as opposed to a protocol or processing failure.
func isDisconnect(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
