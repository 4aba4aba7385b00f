// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/chaperone-project/chaperone/capture"
	"github.com/chaperone-project/chaperone/lib/codec"
	"github.com/chaperone-project/chaperone/wire"
)

// EventOptions configures an EventServer.
type EventOptions struct {
	Endpoint wire.Endpoint
	Hub      *Hub
	Logger   *slog.Logger
}

// EventServer pushes the Hub's event stream to every connected
// subscriber.
type EventServer struct {
	listener net.Listener
	hub      *Hub
	logger   *slog.Logger
}

// NewEventServer opens the endpoint's listener.
func NewEventServer(options EventOptions) (*EventServer, error) {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	listener, err := listen(options.Endpoint)
	if err != nil {
		return nil, err
	}
	return &EventServer{
		listener: listener,
		hub:      options.Hub,
		logger:   options.Logger.With("channel", "events"),
	}, nil
}

// Addr returns the listener's address.
func (s *EventServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts subscribers until ctx is cancelled.
func (s *EventServer) Serve(ctx context.Context) error {
	s.logger.Info("event channel listening", "address", s.listener.Addr())
	return serveLoop(ctx, s.listener, s.logger, s.handle)
}

// Close stops the listener.
func (s *EventServer) Close() error {
	return s.listener.Close()
}

func (s *EventServer) handle(ctx context.Context, conn net.Conn) {
	if _, ok := streamHandshake(conn, s.logger); !ok {
		return
	}
	sub := s.hub.Subscribe()
	defer sub.Close()

	pump(ctx, conn, wire.MsgEvent, sub.Wake(), sub.Next)
}

// FrameOptions configures a FrameServer.
type FrameOptions struct {
	Endpoint wire.Endpoint
	Capture  *capture.Capture
	Logger   *slog.Logger
}

// FrameServer pushes encoded window frames. Each subscriber drains
// the capture rings at its own pace through its own subscription;
// ring retention decides how far behind it may fall.
type FrameServer struct {
	listener net.Listener
	capture  *capture.Capture
	logger   *slog.Logger
}

// NewFrameServer opens the endpoint's listener.
func NewFrameServer(options FrameOptions) (*FrameServer, error) {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	listener, err := listen(options.Endpoint)
	if err != nil {
		return nil, err
	}
	return &FrameServer{
		listener: listener,
		capture:  options.Capture,
		logger:   options.Logger.With("channel", "frames"),
	}, nil
}

// Addr returns the listener's address.
func (s *FrameServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts subscribers until ctx is cancelled.
func (s *FrameServer) Serve(ctx context.Context) error {
	s.logger.Info("frame channel listening", "address", s.listener.Addr())
	return serveLoop(ctx, s.listener, s.logger, s.handle)
}

// Close stops the listener.
func (s *FrameServer) Close() error {
	return s.listener.Close()
}

func (s *FrameServer) handle(ctx context.Context, conn net.Conn) {
	hello, ok := streamHandshake(conn, s.logger)
	if !ok {
		return
	}
	sub := s.capture.Subscribe(hello.Windows)
	defer sub.Close()

	pump(ctx, conn, wire.MsgFrame, sub.Wake(), sub.Next)
}

// streamHandshake reads and answers the Hello opening an event or
// frame connection. Stream channels need no role; only the protocol
// version is checked.
func streamHandshake(conn net.Conn, logger *slog.Logger) (wire.Hello, bool) {
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	message, err := wire.ReadMessage(conn)
	if err != nil {
		return wire.Hello{}, false
	}
	conn.SetReadDeadline(time.Time{})

	refuse := func(refusal error) (wire.Hello, bool) {
		detail := wire.DetailOf(refusal)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := wire.Send(conn, wire.MsgResponse, wire.Response{OK: false, Error: &detail}); err != nil {
			logger.Debug("failed to write hello refusal", "error", err)
		}
		return wire.Hello{}, false
	}

	if message.Type != wire.MsgHello {
		return refuse(wire.Protocol(wire.ReasonMalformedRequest,
			"expected hello, got message type 0x%02x", message.Type))
	}
	var hello wire.Hello
	if err := codec.Unmarshal(message.Payload, &hello); err != nil {
		return refuse(wire.Protocol(wire.ReasonMalformedRequest, "undecodable hello: %v", err))
	}
	if hello.Protocol != wire.ProtocolVersion {
		return refuse(wire.Protocol(wire.ReasonMalformedRequest,
			"unsupported protocol version %d (want %d)", hello.Protocol, wire.ProtocolVersion))
	}

	ack := wire.HelloAck{Session: uuid.NewString(), Protocol: wire.ProtocolVersion}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	data, err := codec.Marshal(ack)
	if err != nil {
		return wire.Hello{}, false
	}
	if err := wire.Send(conn, wire.MsgResponse, wire.Response{OK: true, Data: data}); err != nil {
		logger.Debug("failed to write hello ack", "error", err)
		return wire.Hello{}, false
	}
	conn.SetWriteDeadline(time.Time{})
	return hello, true
}

// pump forwards a subscription to the connection until the context is
// cancelled, the client disconnects, or a write fails.
func pump[T any](ctx context.Context, conn net.Conn, messageType byte, wake <-chan struct{}, next func() []T) {
	closed := connClosed(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-wake:
			for _, item := range next() {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := wire.Send(conn, messageType, item); err != nil {
					return
				}
			}
			conn.SetWriteDeadline(time.Time{})
		}
	}
}

// connClosed watches for the client closing its end. Stream channels
// expect nothing further from the client after the hello; inbound
// messages are discarded until the read fails.
func connClosed(conn net.Conn) <-chan struct{} {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, err := wire.ReadMessage(conn); err != nil {
				return
			}
		}
	}()
	return closed
}
