package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/maximewewer/gps-clock/internal/config"
	"github.com/maximewewer/gps-clock/internal/discipline"
	"github.com/maximewewer/gps-clock/internal/hwclock"
	"github.com/maximewewer/gps-clock/internal/pps"
	"github.com/maximewewer/gps-clock/internal/receiver"
	"github.com/maximewewer/gps-clock/internal/ubx"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/spf13/cobra"
)

func newInitReceiverCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-receiver",
		Short: "Send the start-up configuration to the receiver and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Close()

			port, err := receiver.OpenSerial(cfg.Receiver.Device, cfg.Receiver.Baud)
			if err != nil {
				return err
			}
			defer port.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return receiver.Initialize(ctx, port, initOptions(cfg), cfg.Receiver.InitGap)
		},
	}
}

// initOptions builds the receiver start-up frames from config. The pulse's
// leading edge is the one the PPS line captures, so its polarity follows
// pps.falling_edge.
func initOptions(cfg *config.Config) ubx.InitOptions {
	tp := cfg.Receiver.Timepulse
	tp5 := ubx.DefaultTP5()
	tp5.PulseLenNs = tp.PulseLenNs
	tp5.PulseLenLockNs = tp.PulseLenLockNs
	tp5.AntCableDelayNs = tp.AntCableDelayNs
	tp5.LockGnssFreq = tp.LockGnssFreq
	tp5.LockedOtherSet = tp.LockedOtherSet
	tp5.AlignToTow = tp.AlignToTow
	tp5.RisingEdge = !cfg.PPS.FallingEdge
	return ubx.InitOptions{UBXOnly: cfg.Receiver.UBXOnly, TP5: tp5}
}

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var baud int

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Feed a captured receiver stream through the decoder and print each fusion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Close()

			if baud <= 0 {
				baud = cfg.Receiver.Baud
			}
			engineOpts, err := engineOptions(cfg)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open capture: %w", err)
			}
			defer f.Close()

			return replay(f, cmd.OutOrStdout(), baud, engineOpts...)
		},
	}
	cmd.Flags().IntVar(&baud, "baud", 0, "Line rate used to pace the capture (default: receiver.baud)")
	return cmd
}

// replay decodes a capture against a manual counter advanced by the wire
// time of each byte (10 bits at baud)
func replay(r io.Reader, w io.Writer, baud int, opts ...discipline.Option) error {
	clk := hwclock.NewManual(0)
	engine := discipline.NewEngine(clk, pps.NewCapture(clk), opts...)

	rx := receiver.New(engine, receiver.WithFusionHook(func(f receiver.Fusion) {
		_, _ = fmt.Fprintf(w, "%-5s %-8s offset=%dus delta=%dus at=%s\n",
			f.Protocol, f.Result.Alignment, f.Result.Offset, f.Delta, clk.Now().Duration())
	}))

	byteTime := time.Second * 10 / time.Duration(baud)
	br := bufio.NewReader(r)
	one := make([]byte, 1)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read capture: %w", err)
		}
		clk.Advance(byteTime)
		one[0] = b
		_, _ = rx.Write(one)
	}

	st := engine.Snapshot()
	stats := rx.Stats()
	_, err := fmt.Fprintf(w, "fusions=%d rejected=%d quality=%s time=%s\n",
		stats.Fusions, countRejected(stats), st.Quality, calendarOf(st))
	return err
}

func countRejected(s receiver.Stats) uint64 {
	var n uint64
	for _, reasons := range s.Rejected {
		for _, c := range reasons {
			n += c
		}
	}
	return n
}

func calendarOf(st discipline.Status) string {
	if !st.Synced {
		return "unsynchronized"
	}
	return time.UnixMicro(st.UTC).UTC().Format("2006-01-02 15:04:05.000000")
}
