// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chaperone-project/chaperone/lib/codec"
)

// Message type constants for the channel wire format. Each message is
// a 5-byte header (1 byte type + 4 byte big-endian payload length)
// followed by a CBOR payload.
const (
	// MsgHello opens every connection. On the command channel the
	// payload declares the caller's role; on the frame channel it may
	// carry a window filter. The server answers with a MsgResponse
	// carrying sequence 0.
	MsgHello byte = 0x01

	// MsgRequest carries a command. Command channel, client→server.
	MsgRequest byte = 0x02

	// MsgResponse carries the correlated reply to a MsgRequest (or to
	// MsgHello, with sequence 0). Command channel, server→client.
	MsgResponse byte = 0x03

	// MsgEvent carries an asynchronous notification. Event channel,
	// server→client only.
	MsgEvent byte = 0x04

	// MsgFrame carries an encoded window frame. Frame channel,
	// server→client only.
	MsgFrame byte = 0x05
)

// headerLength is the fixed size of a message header: 1 byte type +
// 4 bytes payload length.
const headerLength = 5

// MaxPayload is the maximum allowed payload size. 16 MB comfortably
// holds a raw 1920×1080 RGBA frame (~8 MB) plus envelope overhead.
const MaxPayload = 16 * 1024 * 1024

// Message is a single framed channel message.
type Message struct {
	Type    byte
	Payload []byte
}

// WriteMessage writes a framed message to w. The frame format is:
// [1 byte type] [4 bytes payload length, big-endian uint32] [payload].
func WriteMessage(w io.Writer, message Message) error {
	if len(message.Payload) > MaxPayload {
		return fmt.Errorf("payload length %d exceeds maximum %d", len(message.Payload), MaxPayload)
	}
	var header [headerLength]byte
	header[0] = message.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(message.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write message header: %w", err)
	}
	if len(message.Payload) > 0 {
		if _, err := w.Write(message.Payload); err != nil {
			return fmt.Errorf("write message payload: %w", err)
		}
	}
	return nil
}

// ReadMessage reads a framed message from r. Returns an error if the
// stream is malformed or the payload exceeds MaxPayload.
func ReadMessage(r io.Reader) (Message, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, fmt.Errorf("read message header: %w", err)
	}
	messageType := header[0]
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > MaxPayload {
		return Message{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, MaxPayload)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Message{}, fmt.Errorf("read message payload: %w", err)
		}
	}
	return Message{Type: messageType, Payload: payload}, nil
}

// Send marshals v to CBOR and writes it as a framed message of the
// given type. The caller must serialize concurrent writes to w.
func Send(w io.Writer, messageType byte, v any) error {
	payload, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message payload: %w", err)
	}
	return WriteMessage(w, Message{Type: messageType, Payload: payload})
}
