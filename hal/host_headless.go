package hal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	Hz      int
	Ticks   uint64
}

// RunHeadless runs the machine without opening a window. It returns nil
// after cfg.Ticks frames or when the machine halts.
func RunHeadless(ctx context.Context, newApp func(HAL) StepFunc, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	h := newHost(os.Stdout)
	step := newApp(h)

	t := time.NewTicker(d)
	defer t.Stop()

	var frames uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			h.tick(h.t.elapsed(now, 1))
			if step != nil {
				if err := step(); err != nil {
					if errors.Is(err, ErrHalted) {
						return nil
					}
					return err
				}
			}
			frames++
			if cfg.Ticks > 0 && frames >= cfg.Ticks {
				return nil
			}
		}
	}
}
