// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/chaperone-project/chaperone/capture"
	"github.com/chaperone-project/chaperone/cmd/chaperone/cli"
	"github.com/chaperone-project/chaperone/wire"
)

type screenshotParams struct {
	cli.Endpoints
	Output  string        `flag:"output,o" desc:"write the image to this file instead of stdout"`
	Refresh bool          `flag:"refresh" desc:"capture fresh content instead of serving the cached frame"`
	Timeout time.Duration `flag:"timeout" desc:"command timeout" default:"10s"`
}

func screenshotCommand() *cli.Command {
	var params screenshotParams

	return &cli.Command{
		Name:    "screenshot",
		Summary: "Fetch one frame of a window as an image",
		Description: `Fetch the most recent frame of a window and write it as an image.
Without a window id the focused window is captured. JPEG and PNG
frames are written as served; raw-codec frames are converted to PNG
locally.

The daemon answers from its frame cache, so the image can lag the
screen by one sampling interval. Pass --refresh to force a fresh
capture.`,
		Usage: "chaperone screenshot [window] [flags]",
		Examples: []cli.Example{
			{
				Description: "Capture the focused window to a file",
				Command:     "chaperone screenshot -o focused.jpg",
			},
			{
				Description: "Capture a specific window, freshly sampled",
				Command:     "chaperone screenshot 0x1a00003 --refresh -o editor.jpg",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("unexpected argument: %s", args[1])
			}

			ctx, cancel := commandContext(params.Timeout)
			defer cancel()

			client, err := params.DialCommands(ctx, wire.RoleOperator)
			if err != nil {
				return err
			}
			defer client.Close()

			var window uint32
			if len(args) == 1 {
				window, err = parseWindowID(args[0])
				if err != nil {
					return err
				}
			} else {
				focused, err := client.Focused(ctx)
				if err != nil {
					return err
				}
				if focused == nil {
					return fmt.Errorf("no tracked window holds focus; pass a window id (run 'chaperone windows')")
				}
				window = focused.ID
			}

			frame, err := client.Frame(ctx, window, params.Refresh)
			if err != nil {
				if wire.IsActuation(err, wire.ReasonUnknownTarget) {
					return fmt.Errorf("%w (run 'chaperone windows' to list tracked windows)", err)
				}
				return err
			}

			data, format, err := frameImage(frame)
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("window %s: %dx%d %s, %d bytes",
				formatWindow(frame.Window), frame.Width, frame.Height, format, len(data))

			if params.Output != "" {
				if err := os.WriteFile(params.Output, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", params.Output, summary)
				return nil
			}

			if term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("refusing to write image data to a terminal; use --output or redirect stdout")
			}
			if _, err := os.Stdout.Write(data); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s\n", summary)
			return nil
		},
	}
}

// frameImage renders a frame as an image file. JPEG and PNG payloads
// pass through untouched; raw pixels are decompressed and re-encoded
// as PNG so the output is always viewable.
func frameImage(frame *wire.FrameMessage) ([]byte, string, error) {
	switch frame.Codec {
	case wire.CodecJPEG, wire.CodecPNG:
		return frame.Data, string(frame.Codec), nil

	case wire.CodecRaw:
		pixels, err := capture.DecodePixels(frame)
		if err != nil {
			return nil, "", err
		}
		if want := frame.Width * frame.Height * 4; len(pixels) != want {
			return nil, "", fmt.Errorf("raw frame has %d pixel bytes, want %d", len(pixels), want)
		}
		img := &image.RGBA{
			Pix:    pixels,
			Stride: frame.Width * 4,
			Rect:   image.Rect(0, 0, frame.Width, frame.Height),
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("png encode: %w", err)
		}
		return buf.Bytes(), "png (from raw)", nil

	default:
		return nil, "", fmt.Errorf("unknown frame codec %q", frame.Codec)
	}
}
