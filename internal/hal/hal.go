// Package hal connects the virtual machine to the host: window or terminal
// output, keyboard input and the sound timer tone.
package hal

import (
	"errors"
	"fmt"
	"time"

	"github.com/kapitanov/chip8emu/internal/config"
	"github.com/kapitanov/chip8emu/internal/vm"
)

var (
	ErrReboot = errors.New("reboot")
	ErrQuit   = errors.New("quit")
)

// Speaker emits the tone requested when the sound timer expires.
type Speaker interface {
	Beep()
}

type Backend interface {
	vm.HAL
	Shutdown()
}

func New(cfg config.Config, speaker Speaker) (Backend, error) {
	switch cfg.Backend {
	case config.BackendSDL:
		return NewSDL(cfg, speaker)
	case config.BackendEbiten:
		return NewEbiten(cfg, speaker)
	case config.BackendTerminal:
		return NewTerminal(cfg, speaker)
	case config.BackendHeadless:
		return NewHeadless(), nil
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownBackend, cfg.Backend)
	}
}

func waitFor(delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
}
