package vm

import (
	"context"
	"fmt"
	"log/slog"
)

type HAL interface {
	ReadInput(keyDown func(Key), keyUp func(Key)) error
	Draw(gfx *Framebuffer) error
	Beep() error
	WaitForNextFrame() error
}

type RunOptions struct {
	// MaxCycles stops the loop after that many cycles. Zero means no limit.
	MaxCycles uint64
	// StopOnHalt returns as soon as the program jumps to itself instead of
	// idling until the user quits or reboots.
	StopOnHalt bool
}

// Run resets the machine and drives it until the context is cancelled, the
// HAL reports an error, or a fatal machine error occurs.
func (vm *VM) Run(ctx context.Context, hal HAL, opts RunOptions) error {
	vm.Reset()
	keyDown, keyUp := vm.keyHandlers()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if opts.MaxCycles > 0 && vm.cycles >= opts.MaxCycles {
			return nil
		}

		if vm.halted {
			slog.Info("program halted", "pc", fmt.Sprintf("0x%04x", vm.pc), "cycles", vm.cycles)
			if opts.StopOnHalt {
				return nil
			}

			return vm.waitForReboot(ctx, hal)
		}

		if err := vm.runStep(hal, keyDown, keyUp); err != nil {
			return err
		}
	}
}

func (vm *VM) keyHandlers() (func(Key), func(Key)) {
	if kp, ok := vm.input.(interface {
		Press(Key)
		Release(Key)
	}); ok {
		return kp.Press, kp.Release
	}

	return func(Key) {}, func(Key) {}
}

func (vm *VM) waitForReboot(ctx context.Context, hal HAL) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := hal.WaitForNextFrame(); err != nil {
			return err
		}

		if err := hal.ReadInput(func(_ Key) {}, func(_ Key) {}); err != nil {
			return err
		}
	}
}

func (vm *VM) runStep(hal HAL, keyDown, keyUp func(Key)) error {
	if err := vm.Step(); IsFatal(err) {
		return err
	}

	if vm.drawFlag {
		if err := hal.Draw(&vm.gfx); err != nil {
			return err
		}
		vm.drawFlag = false
	}

	if vm.beeping {
		if err := hal.Beep(); err != nil {
			return err
		}
	}

	if err := hal.ReadInput(keyDown, keyUp); err != nil {
		return err
	}

	if err := hal.WaitForNextFrame(); err != nil {
		return err
	}

	return nil
}
