// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaperone-project/chaperone/capture"
	"github.com/chaperone-project/chaperone/gate"
	"github.com/chaperone-project/chaperone/lib/codec"
	"github.com/chaperone-project/chaperone/wire"
)

// helloTimeout bounds how long a fresh connection may sit silent
// before its handshake is abandoned.
const helloTimeout = 10 * time.Second

// writeTimeout bounds a single message write. A client that stops
// reading forfeits its connection.
const writeTimeout = 30 * time.Second

// ClipboardReader is the slice of the display host the command
// channel needs for query_clipboard.
type ClipboardReader interface {
	Clipboard() (string, error)
}

// CommandOptions configures a CommandServer.
type CommandOptions struct {
	Endpoint wire.Endpoint

	Gate      *gate.Gate
	Capture   *capture.Capture
	Clipboard ClipboardReader

	// OperatorUIDs restricts the operator role on unix endpoints to
	// these peer uids, verified via SO_PEERCRED. Empty disables the
	// check. On endpoints without peer credentials (tcp), a non-empty
	// list refuses every operator hello.
	OperatorUIDs []uint32

	Logger *slog.Logger
}

// CommandServer serves the request/response channel. One connection
// is one session: requests are handled sequentially in arrival order,
// so responses leave in request order without any reordering
// machinery.
type CommandServer struct {
	listener     net.Listener
	gate         *gate.Gate
	capture      *capture.Capture
	clipboard    ClipboardReader
	operatorUIDs []uint32
	logger       *slog.Logger
}

// session is the per-connection command channel state. Nothing in it
// survives the connection.
type session struct {
	id           string
	role         wire.Role
	lastSequence uint64
}

// NewCommandServer opens the endpoint's listener. Serve must be
// called to accept connections.
func NewCommandServer(options CommandOptions) (*CommandServer, error) {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	listener, err := listen(options.Endpoint)
	if err != nil {
		return nil, err
	}
	return &CommandServer{
		listener:     listener,
		gate:         options.Gate,
		capture:      options.Capture,
		clipboard:    options.Clipboard,
		operatorUIDs: options.OperatorUIDs,
		logger:       options.Logger.With("channel", "commands"),
	}, nil
}

// Addr returns the listener's address.
func (s *CommandServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then closes every
// live session and waits for its handler to return.
func (s *CommandServer) Serve(ctx context.Context) error {
	s.logger.Info("command channel listening", "address", s.listener.Addr())
	return serveLoop(ctx, s.listener, s.logger, s.handle)
}

// Close stops the listener. Serve returns after in-flight sessions
// finish.
func (s *CommandServer) Close() error {
	return s.listener.Close()
}

func (s *CommandServer) handle(ctx context.Context, conn net.Conn) {
	sess, ok := s.handshake(conn)
	if !ok {
		return
	}
	logger := s.logger.With("session", sess.id, "role", sess.role)
	logger.Debug("session opened", "remote", conn.RemoteAddr())
	defer logger.Debug("session closed")

	for {
		message, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}
		if message.Type != wire.MsgRequest {
			s.respondError(conn, 0, wire.Protocol(wire.ReasonMalformedRequest,
				"unexpected message type 0x%02x on command channel", message.Type))
			continue
		}

		var request wire.Request
		if err := codec.Unmarshal(message.Payload, &request); err != nil {
			// The framing survived even though the payload did not,
			// so the session can continue. Sequence 0 marks a reply
			// to a request whose sequence was unreadable.
			s.respondError(conn, 0, wire.Protocol(wire.ReasonMalformedRequest,
				"undecodable request: %v", err))
			continue
		}

		if request.Sequence <= sess.lastSequence {
			s.respondError(conn, request.Sequence, wire.Protocol(wire.ReasonSequenceViolation,
				"sequence %d does not advance past %d", request.Sequence, sess.lastSequence))
			continue
		}
		sess.lastSequence = request.Sequence

		result, err := s.dispatch(sess, request)
		if err != nil {
			logger.Debug("command refused",
				"command", request.Type,
				"sequence", request.Sequence,
				"error", err,
			)
			s.respondError(conn, request.Sequence, err)
			continue
		}
		s.respond(conn, request.Sequence, result)
	}
}

// handshake reads and answers the Hello that must open every session.
func (s *CommandServer) handshake(conn net.Conn) (*session, bool) {
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	message, err := wire.ReadMessage(conn)
	if err != nil {
		return nil, false
	}
	conn.SetReadDeadline(time.Time{})

	refuse := func(refusal error) (*session, bool) {
		s.respondError(conn, 0, refusal)
		return nil, false
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
	if !hello.Role.Valid() {
		return refuse(wire.Protocol(wire.ReasonMalformedRequest,
			"hello must declare role agent or operator"))
	}
	if hello.Role == wire.RoleOperator && len(s.operatorUIDs) > 0 {
		uid, ok := peerUID(conn)
		if !ok {
			return refuse(wire.Gating(wire.ReasonUnauthorized,
				"operator role requires verifiable peer credentials"))
		}
		if !slices.Contains(s.operatorUIDs, uid) {
			return refuse(wire.Gating(wire.ReasonUnauthorized,
				"uid %d is not a configured operator", uid))
		}
	}

	sess := &session{id: uuid.NewString(), role: hello.Role}
	mode, _ := s.gate.Mode()
	s.respond(conn, 0, wire.HelloAck{
		Session:  sess.id,
		Protocol: wire.ProtocolVersion,
		Mode:     mode,
	})
	return sess, true
}

// dispatch executes one command. Returned errors become structured
// error responses; results are marshaled into the response data.
func (s *CommandServer) dispatch(sess *session, request wire.Request) (any, error) {
	switch request.Type {
	case wire.CmdQueryWindows:
		return wire.WindowListResult{Windows: s.capture.Windows()}, nil

	case wire.CmdQueryWindow:
		var payload wire.QueryWindowPayload
		if err := decodePayload(request, &payload); err != nil {
			return nil, err
		}
		info, ok := s.capture.Window(payload.Window)
		if !ok {
			return nil, wire.Actuation(wire.ReasonUnknownTarget, "window %d is not tracked", payload.Window)
		}
		return wire.WindowResult{Window: &info}, nil

	case wire.CmdQueryFocused:
		info, ok := s.capture.Focused()
		if !ok {
			return wire.WindowResult{}, nil
		}
		return wire.WindowResult{Window: &info}, nil

	case wire.CmdQueryClipboard:
		content, err := s.clipboard.Clipboard()
		if err != nil {
			return nil, err
		}
		return wire.ClipboardResult{Content: content}, nil

	case wire.CmdQueryMode:
		mode, latched := s.gate.Mode()
		return wire.ModeResult{Mode: mode, Latched: latched}, nil

	case wire.CmdQueryApprovals:
		return wire.ApprovalListResult{Approvals: s.gate.Pending()}, nil

	case wire.CmdGetFrame:
		var payload wire.GetFramePayload
		if err := decodePayload(request, &payload); err != nil {
			return nil, err
		}
		if payload.Refresh {
			return s.capture.Grab(payload.Window)
		}
		frame, err := s.capture.Latest(payload.Window)
		if err != nil {
			return nil, err
		}
		if frame == nil {
			// Tracked but never sampled: capture now rather than
			// answer with nothing.
			return s.capture.Grab(payload.Window)
		}
		return frame, nil

	case wire.CmdProposeAction:
		var payload wire.ProposePayload
		if err := decodePayload(request, &payload); err != nil {
			return nil, err
		}
		// Malformed actions are refused here, before the gate sees
		// them: the policy logic only ever arbitrates valid actions.
		if err := payload.Action.Validate(); err != nil {
			return nil, err
		}
		return s.gate.Propose(payload.Action, request.Sequence)

	case wire.CmdApprove:
		var payload wire.DecisionPayload
		if err := decodePayload(request, &payload); err != nil {
			return nil, err
		}
		return nil, s.gate.Approve(sess.role, payload.Approval)

	case wire.CmdReject:
		var payload wire.DecisionPayload
		if err := decodePayload(request, &payload); err != nil {
			return nil, err
		}
		return nil, s.gate.Reject(sess.role, payload.Approval)

	case wire.CmdSetMode:
		var payload wire.SetModePayload
		if err := decodePayload(request, &payload); err != nil {
			return nil, err
		}
		if err := s.gate.SetMode(sess.role, payload.Mode); err != nil {
			return nil, err
		}
		mode, latched := s.gate.Mode()
		return wire.ModeResult{Mode: mode, Latched: latched}, nil

	case wire.CmdRefresh:
		var payload wire.RefreshPayload
		if len(request.Payload) > 0 {
			if err := decodePayload(request, &payload); err != nil {
				return nil, err
			}
		}
		return nil, s.capture.Refresh(payload.Window)
	}

	return nil, wire.Protocol(wire.ReasonUnknownCommand, "unknown command %q", request.Type)
}

// decodePayload decodes a request's payload, mapping failures to
// malformed_request.
func decodePayload(request wire.Request, v any) error {
	if len(request.Payload) == 0 {
		return wire.Protocol(wire.ReasonMalformedRequest, "%s requires a payload", request.Type)
	}
	if err := codec.Unmarshal(request.Payload, v); err != nil {
		return wire.Protocol(wire.ReasonMalformedRequest, "%s payload: %v", request.Type, err)
	}
	return nil
}

func (s *CommandServer) respond(conn net.Conn, sequence uint64, result any) {
	response := wire.Response{Sequence: sequence, OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.logger.Error("encoding response data", "error", err)
			s.respondError(conn, sequence, fmt.Errorf("internal: encoding response: %v", err))
			return
		}
		response.Data = data
	}
	s.write(conn, response)
}

func (s *CommandServer) respondError(conn net.Conn, sequence uint64, refusal error) {
	detail := wire.DetailOf(refusal)
	s.write(conn, wire.Response{Sequence: sequence, OK: false, Error: &detail})
}

// write failures are logged and otherwise ignored: the read loop will
// observe the dead connection on its next turn.
func (s *CommandServer) write(conn net.Conn, response wire.Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := wire.Send(conn, wire.MsgResponse, response); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
	conn.SetWriteDeadline(time.Time{})
}

// listen opens an endpoint's listener. For unix endpoints the socket
// directory is created and a stale socket file from a previous run is
// removed first.
func listen(endpoint wire.Endpoint) (net.Listener, error) {
	if endpoint.Network == "unix" {
		if err := os.MkdirAll(filepath.Dir(endpoint.Address), 0o755); err != nil {
			return nil, fmt.Errorf("creating socket directory: %w", err)
		}
		if err := os.Remove(endpoint.Address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", endpoint.Address, err)
		}
	}
	listener, err := net.Listen(endpoint.Network, endpoint.Address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", endpoint, err)
	}
	return listener, nil
}

// serveLoop is the accept loop shared by the three channel servers.
// Cancelling ctx closes the listener and every live connection, then
// waits for the handlers to drain.
func serveLoop(ctx context.Context, listener net.Listener, logger *slog.Logger, handle func(context.Context, net.Conn)) error {
	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var active sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logger.Error("accept failed", "error", err)
			continue
		}

		active.Add(1)
		go func() {
			defer active.Done()
			defer conn.Close()
			// Handlers block in conn reads; closing the connection is
			// what unblocks them at shutdown.
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			handle(ctx, conn)
		}()
	}

	active.Wait()
	return nil
}
