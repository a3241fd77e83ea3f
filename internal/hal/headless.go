package hal

import (
	"github.com/kapitanov/chip8emu/internal/vm"
)

// KeyEvent is a scripted key transition for the headless backend.
type KeyEvent struct {
	Key  vm.Key
	Down bool
}

// Headless records what the machine presents instead of showing it. Queued
// key events are delivered one per ReadInput call.
type Headless struct {
	Frames int
	Beeps  int
	Polls  int
	Last   vm.Framebuffer

	events []KeyEvent
}

func NewHeadless() *Headless {
	return &Headless{}
}

func (hal *Headless) Queue(events ...KeyEvent) {
	hal.events = append(hal.events, events...)
}

func (hal *Headless) Pending() int {
	return len(hal.events)
}

func (hal *Headless) Shutdown() {}

func (hal *Headless) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	hal.Polls++

	if len(hal.events) == 0 {
		return nil
	}

	e := hal.events[0]
	hal.events = hal.events[1:]
	if e.Down {
		keyDown(e.Key)
	} else {
		keyUp(e.Key)
	}

	return nil
}

func (hal *Headless) Draw(gfx *vm.Framebuffer) error {
	hal.Frames++
	hal.Last = *gfx
	return nil
}

func (hal *Headless) Beep() error {
	hal.Beeps++
	return nil
}

func (hal *Headless) WaitForNextFrame() error {
	return nil
}
