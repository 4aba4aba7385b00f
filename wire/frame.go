// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Codec names the image encoding of a frame. The encoders themselves
// are black boxes behind the capture pipeline; the name travels with
// every frame so consumers can decode without out-of-band knowledge.
type Codec string

const (
	// CodecRaw is unencoded RGBA, 4 bytes per pixel, rows
	// top-to-bottom with no padding. The only codec that pairs with a
	// compression tag.
	CodecRaw Codec = "raw"

	CodecPNG  Codec = "png"
	CodecJPEG Codec = "jpeg"
)

// ParseCodec parses a codec name.
func ParseCodec(s string) (Codec, error) {
	codec := Codec(s)
	if !codec.Valid() {
		return "", fmt.Errorf("unknown frame codec %q", s)
	}
	return codec, nil
}

// Valid reports whether c is a known codec.
func (c Codec) Valid() bool {
	switch c {
	case CodecRaw, CodecPNG, CodecJPEG:
		return true
	}
	return false
}

// Compression names the byte compression applied to a raw frame's
// pixel data. PNG and JPEG are already compressed; for them the tag
// is always CompressionNone.
type Compression string

const (
	CompressionNone Compression = "none"

	// CompressionLZ4: block-mode LZ4. Fast default for raw pixel
	// data (~2x on desktop content, multi-GB/s decode).
	CompressionLZ4 Compression = "lz4"

	// CompressionZstd: zstd at the default level. Better ratios on
	// flat UI content at higher CPU cost.
	CompressionZstd Compression = "zstd"
)

// ParseCompression parses a compression name.
func ParseCompression(s string) (Compression, error) {
	compression := Compression(s)
	if !compression.Valid() {
		return "", fmt.Errorf("unknown frame compression %q", s)
	}
	return compression, nil
}

// Valid reports whether c is a known compression name.
func (c Compression) Valid() bool {
	switch c {
	case CompressionNone, CompressionLZ4, CompressionZstd:
		return true
	}
	return false
}

// FrameMessage is one encoded frame as it travels the frame channel
// and the get_frame response. Frames are immutable once produced; a
// newer frame for the same window supersedes rather than mutates.
type FrameMessage struct {
	Window uint32 `cbor:"window"`

	// Sequence is per-window and monotonic. Gaps are normal: they
	// mean the drop-oldest queue discarded frames a slow consumer
	// never saw.
	Sequence  uint64 `cbor:"sequence"`
	Timestamp int64  `cbor:"timestamp"`

	// Width and Height describe the encoded image, after scaling.
	Width  int `cbor:"width"`
	Height int `cbor:"height"`

	Codec       Codec       `cbor:"codec"`
	Compression Compression `cbor:"compression,omitempty"`

	// RawSize is the uncompressed pixel-data length when Compression
	// is not none; consumers size their decompression buffer with it.
	RawSize int `cbor:"raw_size,omitempty"`

	// Scale is the factor applied to the source surface (1.0 = no
	// scaling). Coordinates in the encoded image multiply by 1/Scale
	// to map back to surface coordinates.
	Scale float64 `cbor:"scale"`

	// Fingerprint is the content hash of the source surface this
	// frame was encoded from (32-byte keyed BLAKE3).
	Fingerprint []byte `cbor:"fingerprint"`

	// Window metadata at capture time, so frame consumers need not
	// join against the event stream.
	Title   string `cbor:"title,omitempty"`
	Class   string `cbor:"class,omitempty"`
	Focused bool   `cbor:"focused,omitempty"`

	Data []byte `cbor:"data"`
}
