// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/chaperone-project/chaperone/lib/codec"
	"github.com/chaperone-project/chaperone/wire"
)

// Client is a connected command-channel session. Calls are serialized
// over the single connection; the server's in-order response
// guarantee makes correlation a simple sequence check.
type Client struct {
	conn    net.Conn
	session string
	mode    wire.Mode

	mu       sync.Mutex
	sequence uint64
}

// Dial connects to the command channel and performs the hello
// handshake under the given role.
func Dial(ctx context.Context, endpointURL string, role wire.Role) (*Client, error) {
	conn, ack, err := dialChannel(ctx, endpointURL, wire.Hello{
		Role:     role,
		Protocol: wire.ProtocolVersion,
	})
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, session: ack.Session, mode: ack.Mode}, nil
}

// Session returns the server-assigned session id.
func (c *Client) Session() string {
	return c.session
}

// InitialMode returns the control mode snapshot from the handshake.
func (c *Client) InitialMode() wire.Mode {
	return c.mode
}

// Close tears down the session. Pending approvals created through it
// are unaffected; they belong to the gate.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call issues one command and waits for its correlated response,
// decoding the response data into result when result is non-nil.
// Concurrent calls are serialized. A context that fires mid-call
// leaves the connection unusable: close the client and dial again.
func (c *Client) Call(ctx context.Context, command string, payload any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	release := withContext(ctx, c.conn)
	defer release()

	c.sequence++
	request := wire.Request{Type: command, Sequence: c.sequence}
	if payload != nil {
		data, err := codec.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s payload: %w", command, err)
		}
		request.Payload = data
	}

	if err := wire.Send(c.conn, wire.MsgRequest, request); err != nil {
		return fmt.Errorf("sending %s: %w", command, err)
	}
	response, err := readResponse(c.conn)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", command, err)
	}
	if response.Sequence != c.sequence {
		return fmt.Errorf("%s response carries sequence %d, want %d",
			command, response.Sequence, c.sequence)
	}
	if !response.OK {
		if response.Error == nil {
			return fmt.Errorf("%s failed without error detail", command)
		}
		return response.Error.AsError()
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %s response: %w", command, err)
		}
	}
	return nil
}

// Windows lists the tracked windows.
func (c *Client) Windows(ctx context.Context) ([]wire.WindowInfo, error) {
	var result wire.WindowListResult
	if err := c.Call(ctx, wire.CmdQueryWindows, nil, &result); err != nil {
		return nil, err
	}
	return result.Windows, nil
}

// Window fetches one tracked window.
func (c *Client) Window(ctx context.Context, window uint32) (*wire.WindowInfo, error) {
	var result wire.WindowResult
	if err := c.Call(ctx, wire.CmdQueryWindow, wire.QueryWindowPayload{Window: window}, &result); err != nil {
		return nil, err
	}
	return result.Window, nil
}

// Focused fetches the focused window; nil when nothing tracked holds
// focus.
func (c *Client) Focused(ctx context.Context) (*wire.WindowInfo, error) {
	var result wire.WindowResult
	if err := c.Call(ctx, wire.CmdQueryFocused, nil, &result); err != nil {
		return nil, err
	}
	return result.Window, nil
}

// ClipboardContent reads the display clipboard.
func (c *Client) ClipboardContent(ctx context.Context) (string, error) {
	var result wire.ClipboardResult
	if err := c.Call(ctx, wire.CmdQueryClipboard, nil, &result); err != nil {
		return "", err
	}
	return result.Content, nil
}

// Mode queries the current control mode and latch state.
func (c *Client) Mode(ctx context.Context) (wire.ModeResult, error) {
	var result wire.ModeResult
	err := c.Call(ctx, wire.CmdQueryMode, nil, &result)
	return result, err
}

// Approvals lists the pending supervised-mode entries, ordered by id.
func (c *Client) Approvals(ctx context.Context) ([]wire.PendingApproval, error) {
	var result wire.ApprovalListResult
	if err := c.Call(ctx, wire.CmdQueryApprovals, nil, &result); err != nil {
		return nil, err
	}
	return result.Approvals, nil
}

// Frame fetches the most recent frame for a window. With refresh, the
// server captures and encodes fresh content even if unchanged.
func (c *Client) Frame(ctx context.Context, window uint32, refresh bool) (*wire.FrameMessage, error) {
	var frame wire.FrameMessage
	payload := wire.GetFramePayload{Window: window, Refresh: refresh}
	if err := c.Call(ctx, wire.CmdGetFrame, payload, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// Propose submits an agent action for arbitration.
func (c *Client) Propose(ctx context.Context, action wire.Action) (wire.ProposeResult, error) {
	var result wire.ProposeResult
	err := c.Call(ctx, wire.CmdProposeAction, wire.ProposePayload{Action: action}, &result)
	return result, err
}

// Approve releases a pending approval to the injector.
func (c *Client) Approve(ctx context.Context, approval uint64) error {
	return c.Call(ctx, wire.CmdApprove, wire.DecisionPayload{Approval: approval}, nil)
}

// Reject discards a pending approval.
func (c *Client) Reject(ctx context.Context, approval uint64) error {
	return c.Call(ctx, wire.CmdReject, wire.DecisionPayload{Approval: approval}, nil)
}

// SetMode switches the control mode and returns the resulting state.
func (c *Client) SetMode(ctx context.Context, mode wire.Mode) (wire.ModeResult, error) {
	var result wire.ModeResult
	err := c.Call(ctx, wire.CmdSetMode, wire.SetModePayload{Mode: mode}, &result)
	return result, err
}

// Refresh forces re-publication of current content; window 0 means
// every tracked window.
func (c *Client) Refresh(ctx context.Context, window uint32) error {
	return c.Call(ctx, wire.CmdRefresh, wire.RefreshPayload{Window: window}, nil)
}

// EventStream is a connected event-channel subscription.
type EventStream struct {
	conn net.Conn
}

// DialEvents subscribes to the event channel.
func DialEvents(ctx context.Context, endpointURL string) (*EventStream, error) {
	conn, _, err := dialChannel(ctx, endpointURL, wire.Hello{Protocol: wire.ProtocolVersion})
	if err != nil {
		return nil, err
	}
	return &EventStream{conn: conn}, nil
}

// Next blocks for the next event.
func (s *EventStream) Next(ctx context.Context) (wire.Event, error) {
	release := withContext(ctx, s.conn)
	defer release()

	message, err := wire.ReadMessage(s.conn)
	if err != nil {
		return wire.Event{}, err
	}
	if message.Type != wire.MsgEvent {
		return wire.Event{}, fmt.Errorf("unexpected message type 0x%02x on event channel", message.Type)
	}
	var event wire.Event
	if err := codec.Unmarshal(message.Payload, &event); err != nil {
		return wire.Event{}, fmt.Errorf("undecodable event: %w", err)
	}
	return event, nil
}

// Close tears down the subscription.
func (s *EventStream) Close() error {
	return s.conn.Close()
}

// FrameStream is a connected frame-channel subscription.
type FrameStream struct {
	conn net.Conn
}

// DialFrames subscribes to the frame channel. An empty windows list
// subscribes to every window.
func DialFrames(ctx context.Context, endpointURL string, windows []uint32) (*FrameStream, error) {
	conn, _, err := dialChannel(ctx, endpointURL, wire.Hello{
		Protocol: wire.ProtocolVersion,
		Windows:  windows,
	})
	if err != nil {
		return nil, err
	}
	return &FrameStream{conn: conn}, nil
}

// Next blocks for the next frame.
func (s *FrameStream) Next(ctx context.Context) (*wire.FrameMessage, error) {
	release := withContext(ctx, s.conn)
	defer release()

	message, err := wire.ReadMessage(s.conn)
	if err != nil {
		return nil, err
	}
	if message.Type != wire.MsgFrame {
		return nil, fmt.Errorf("unexpected message type 0x%02x on frame channel", message.Type)
	}
	var frame wire.FrameMessage
	if err := codec.Unmarshal(message.Payload, &frame); err != nil {
		return nil, fmt.Errorf("undecodable frame: %w", err)
	}
	return &frame, nil
}

// Close tears down the subscription.
func (s *FrameStream) Close() error {
	return s.conn.Close()
}

// dialChannel connects to an endpoint and performs a hello handshake.
func dialChannel(ctx context.Context, endpointURL string, hello wire.Hello) (net.Conn, wire.HelloAck, error) {
	endpoint, err := wire.ParseEndpoint(endpointURL)
	if err != nil {
		return nil, wire.HelloAck{}, err
	}
	conn, err := (&net.Dialer{}).DialContext(ctx, endpoint.Network, endpoint.Address)
	if err != nil {
		return nil, wire.HelloAck{}, fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	release := withContext(ctx, conn)
	ack, err := handshake(conn, hello)
	release()
	if err != nil {
		conn.Close()
		return nil, wire.HelloAck{}, err
	}
	return conn, ack, nil
}

// handshake sends hello and reads the sequence-0 acceptance.
func handshake(conn net.Conn, hello wire.Hello) (wire.HelloAck, error) {
	if err := wire.Send(conn, wire.MsgHello, hello); err != nil {
		return wire.HelloAck{}, fmt.Errorf("sending hello: %w", err)
	}
	response, err := readResponse(conn)
	if err != nil {
		return wire.HelloAck{}, fmt.Errorf("reading hello response: %w", err)
	}
	if !response.OK {
		if response.Error == nil {
			return wire.HelloAck{}, fmt.Errorf("hello refused without error detail")
		}
		return wire.HelloAck{}, response.Error.AsError()
	}
	var ack wire.HelloAck
	if len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, &ack); err != nil {
			return wire.HelloAck{}, fmt.Errorf("decoding hello ack: %w", err)
		}
	}
	return ack, nil
}

// readResponse reads one framed response message.
func readResponse(conn net.Conn) (wire.Response, error) {
	message, err := wire.ReadMessage(conn)
	if err != nil {
		return wire.Response{}, err
	}
	if message.Type != wire.MsgResponse {
		return wire.Response{}, fmt.Errorf("unexpected message type 0x%02x, want response", message.Type)
	}
	var response wire.Response
	if err := codec.Unmarshal(message.Payload, &response); err != nil {
		return wire.Response{}, fmt.Errorf("undecodable response: %w", err)
	}
	return response, nil
}

// withContext arms a context against a connection: when the context
// fires, the connection deadline is poisoned so blocked I/O returns.
// The returned release clears the deadline again; it reports false
// when the context already fired and the connection should be
// considered dead.
func withContext(ctx context.Context, conn net.Conn) (release func() bool) {
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	return func() bool {
		if !stop() {
			return false
		}
		conn.SetDeadline(time.Time{})
		return true
	}
}
