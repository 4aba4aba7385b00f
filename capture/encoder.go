// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/image/draw"

	"github.com/chaperone-project/chaperone/host"
	"github.com/chaperone-project/chaperone/wire"
)

// Encoding defaults.
const (
	defaultQuality      = 70
	defaultScale        = 1.0
	defaultMaxDimension = 1920
)

// EncoderOptions configures frame encoding. Zero fields take the
// defaults noted per field.
type EncoderOptions struct {
	// Codec selects the image encoding. Default jpeg.
	Codec wire.Codec

	// Quality is the JPEG quality, 1..100. Default 70.
	Quality int

	// Scale multiplies the surface resolution before encoding.
	// Default 1.0.
	Scale float64

	// MaxDimension caps the longer edge of the encoded image; the
	// scale factor shrinks further to honor it. Default 1920.
	MaxDimension int

	// Compression applies to raw-codec pixel data only. Default
	// none.
	Compression wire.Compression
}

// Encoder turns surfaces into frame payloads. Safe for concurrent
// use.
type Encoder struct {
	codec        wire.Codec
	quality      int
	scale        float64
	maxDimension int
	compression  wire.Compression
}

// NewEncoder builds an Encoder, applying defaults for zero options.
func NewEncoder(options EncoderOptions) *Encoder {
	encoder := &Encoder{
		codec:        options.Codec,
		quality:      options.Quality,
		scale:        options.Scale,
		maxDimension: options.MaxDimension,
		compression:  options.Compression,
	}
	if encoder.codec == "" {
		encoder.codec = wire.CodecJPEG
	}
	if encoder.quality <= 0 {
		encoder.quality = defaultQuality
	}
	if encoder.scale <= 0 {
		encoder.scale = defaultScale
	}
	if encoder.maxDimension <= 0 {
		encoder.maxDimension = defaultMaxDimension
	}
	if encoder.compression == "" {
		encoder.compression = wire.CompressionNone
	}
	return encoder
}

// Encode produces a frame payload from a surface. The returned
// message carries image geometry, codec, compression, and data; the
// caller fills in window identity, sequence, timestamp, fingerprint,
// and metadata.
func (e *Encoder) Encode(surface *host.Surface) (*wire.FrameMessage, error) {
	source := &image.RGBA{
		Pix:    surface.RGBA,
		Stride: surface.Width * 4,
		Rect:   image.Rect(0, 0, surface.Width, surface.Height),
	}

	factor := e.factor(surface.Width, surface.Height)
	img := source
	if factor != 1 {
		width := max(1, int(math.Round(float64(surface.Width)*factor)))
		height := max(1, int(math.Round(float64(surface.Height)*factor)))
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), source, source.Bounds(), draw.Src, nil)
		img = scaled
	}

	frame := &wire.FrameMessage{
		Width:       img.Rect.Dx(),
		Height:      img.Rect.Dy(),
		Codec:       e.codec,
		Compression: wire.CompressionNone,
		Scale:       factor,
	}

	switch e.codec {
	case wire.CodecJPEG:
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
		frame.Data = buf.Bytes()

	case wire.CodecPNG:
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
		frame.Data = buf.Bytes()

	case wire.CodecRaw:
		data, compression, err := compressPixels(img.Pix, e.compression)
		if err != nil {
			return nil, err
		}
		frame.Data = data
		frame.Compression = compression
		if compression != wire.CompressionNone {
			frame.RawSize = len(img.Pix)
		}

	default:
		return nil, fmt.Errorf("unknown frame codec %q", e.codec)
	}
	return frame, nil
}

// factor resolves the effective scale for a surface: the configured
// factor, shrunk if needed so the longer edge fits MaxDimension.
func (e *Encoder) factor(width, height int) float64 {
	factor := e.scale
	longest := max(width, height)
	if longest > 0 && float64(longest)*factor > float64(e.maxDimension) {
		factor = float64(e.maxDimension) / float64(longest)
	}
	return factor
}

// errIncompressible signals that compression did not shrink the data;
// the frame is published uncompressed instead.
var errIncompressible = errors.New("data did not compress")

// compressPixels applies the requested compression, falling back to
// none when the pixels do not shrink. The pixel slice is cloned on
// the uncompressed path so frames never alias a live surface.
func compressPixels(pixels []byte, compression wire.Compression) ([]byte, wire.Compression, error) {
	switch compression {
	case wire.CompressionLZ4:
		compressed, err := compressLZ4(pixels)
		if err == nil {
			return compressed, wire.CompressionLZ4, nil
		}
		if !errors.Is(err, errIncompressible) {
			return nil, "", err
		}

	case wire.CompressionZstd:
		compressed, err := compressZstd(pixels)
		if err == nil {
			return compressed, wire.CompressionZstd, nil
		}
		if !errors.Is(err, errIncompressible) {
			return nil, "", err
		}

	case wire.CompressionNone:

	default:
		return nil, "", fmt.Errorf("unknown frame compression %q", compression)
	}
	return bytes.Clone(pixels), wire.CompressionNone, nil
}

// DecodePixels returns the RGBA pixel data of a raw-codec frame,
// reversing any compression. PNG and JPEG frames decode with the
// standard image package instead.
func DecodePixels(frame *wire.FrameMessage) ([]byte, error) {
	if frame.Codec != wire.CodecRaw {
		return nil, fmt.Errorf("frame codec is %q, not raw", frame.Codec)
	}
	switch frame.Compression {
	case "", wire.CompressionNone:
		return frame.Data, nil
	case wire.CompressionLZ4:
		return decompressLZ4(frame.Data, frame.RawSize)
	case wire.CompressionZstd:
		return decompressZstd(frame.Data, frame.RawSize)
	default:
		return nil, fmt.Errorf("unknown frame compression %q", frame.Compression)
	}
}

// LZ4 compression: block mode.

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// Zstd compression at the default level. The encoder and decoder are
// shared across frames; both are safe for concurrent use in
// EncodeAll/DecodeAll mode.

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("capture: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("capture: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	decompressed, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(decompressed) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(decompressed), uncompressedSize)
	}
	return decompressed, nil
}
