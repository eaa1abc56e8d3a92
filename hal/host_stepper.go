package hal

import (
	"context"
	"errors"
	"fmt"

	tty "github.com/mattn/go-tty"
)

// StepperConfig controls the single-step terminal runner.
type StepperConfig struct {
	// TicksPerStep is the time charged per keypress.
	TicksPerStep uint64
}

// stepKey decides what a key typed at the stepper does.
type stepKey uint8

const (
	keyStep stepKey = iota
	keyInput
	keyQuit
)

func classifyKey(r rune) stepKey {
	switch r {
	case ' ', '\r', '\n':
		return keyStep
	case 'q', 0x03, 0x04:
		return keyQuit
	default:
		return keyInput
	}
}

// RunStepper runs the machine one frame per keypress on the controlling
// terminal. Space or enter steps. Any other key is queued on the keyboard,
// raising its line, and then steps. 'q' quits.
func RunStepper(ctx context.Context, newApp func(HAL) StepFunc, cfg StepperConfig) error {
	if cfg.TicksPerStep == 0 {
		cfg.TicksPerStep = 1
	}
	term, err := tty.Open()
	if err != nil {
		return fmt.Errorf("open tty: %w", err)
	}
	defer term.Close()
	restore := term.MustRaw()
	defer restore()

	h := newHost(term.Output())
	h.logger.crlf = true
	step := newApp(h)

	keys := make(chan rune)
	errc := make(chan error, 1)
	go func() {
		for {
			r, err := term.ReadRune()
			if err != nil {
				errc <- err
				return
			}
			select {
			case keys <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	for n := uint64(1); ; n++ {
		fmt.Fprintf(term.Output(), "-- step %d (space: step, q: quit) --\r\n", n)
		var r rune
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return fmt.Errorf("read tty: %w", err)
		case r = <-keys:
		}

		switch classifyKey(r) {
		case keyQuit:
			return nil
		case keyInput:
			h.kbd.push(KeyEvent{Press: true, Rune: r})
		}
		h.tick(cfg.TicksPerStep)
		if step == nil {
			continue
		}
		if err := step(); err != nil {
			if errors.Is(err, ErrHalted) {
				return nil
			}
			return err
		}
	}
}
