package receiver

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/maximewewer/gps-clock/internal/ubx"
	"github.com/maximewewer/gps-clock/pkg/logger"
)

// DefaultInitGap leaves the receiver time to apply each configuration frame
const DefaultInitGap = 50 * time.Millisecond

// Initialize writes the start-up configuration frames. Acknowledgements
// are not awaited.
func Initialize(ctx context.Context, w io.Writer, opts ubx.InitOptions, gap time.Duration) error {
	seq := ubx.InitSequence(opts)
	for i, f := range seq {
		if _, err := w.Write(f); err != nil {
			return fmt.Errorf("receiver: init frame %d/%d: %w", i+1, len(seq), err)
		}
		if gap <= 0 || i == len(seq)-1 {
			continue
		}
		t := time.NewTimer(gap)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	logger.SafeInfo("receiver", "Receiver configuration sent", map[string]interface{}{
		"frames":   len(seq),
		"ubx_only": opts.UBXOnly,
	})
	return nil
}
