// Command rfbserver is a demo RFB server that paints random filled
// rectangles into the framebuffer on a tick, exercising the same
// NewServer/GetArea/Update/Listen facade a real application would use.
// The painter itself is an application concern, not part of the core
// library, and lives only here.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/beached/nodepp-rfb"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		width    uint16
		height   uint16
		depth    uint8
		listen   uint16
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "rfbserver",
		Short: "Serve a random-rectangle demo framebuffer over RFB 3.3",
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()

			d := rfb.Depth(depth)
			srv := rfb.NewServer(width, height, d, rfb.WithLogger(logger))

			srv.OnKeyEvent(func(down bool, key uint32) {
				logger.Info().Bool("down", down).Uint32("key", key).Msg("key event")
			})
			srv.OnPointerEvent(func(buttons rfb.ButtonMask, x, y uint16) {
				logger.Info().Uint8("buttons", uint8(buttons)).Uint16("x", x).Uint16("y", y).Msg("pointer event")
			})
			srv.OnClientClipboardText(func(text string) {
				logger.Info().Str("text", text).Msg("client clipboard text")
			})

			stop := make(chan struct{})
			go paintRandomRects(srv, width, height, stop)
			defer close(stop)

			logger.Info().Uint16("port", listen).Msg("listening")
			return srv.Listen(listen)
		},
	}

	cmd.Flags().Uint16Var(&width, "width", 1280, "framebuffer width in pixels")
	cmd.Flags().Uint16Var(&height, "height", 720, "framebuffer height in pixels")
	cmd.Flags().Uint8Var(&depth, "depth", 32, "pixel depth: 8, 16, or 32")
	cmd.Flags().Uint16Var(&listen, "listen", 5900, "TCP port to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "zerolog level: debug, info, warn, error")

	return cmd
}

// paintRandomRects fills random rectangles with random colour bytes on
// a tick, standing in for whatever a real application would render
// into the framebuffer between updates.
func paintRandomRects(srv *rfb.RFBServer, width, height uint16, stop <-chan struct{}) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			w, h := width/8, height/8
			if w == 0 || h == 0 {
				continue
			}
			x := uint16(rng.Intn(int(width - w)))
			y := uint16(rng.Intn(int(height - h)))
			box := srv.GetArea(x, y, x+w, y+h)
			fill := byte(rng.Intn(256))
			for _, row := range box {
				for i := range row {
					row[i] = fill
				}
			}
			srv.Update()
		}
	}
}
