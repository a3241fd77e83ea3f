package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

var errFakeHAL = errors.New("fake hal failure")

type fakeEvent struct {
	key  Key
	down bool
}

type fakeHAL struct {
	frames int
	beeps  int
	polls  int
	waits  int

	events []fakeEvent

	// failAfter makes ReadInput fail on that poll. Zero disables it.
	failAfter int
}

func (h *fakeHAL) ReadInput(keyDown, keyUp func(Key)) error {
	h.polls++
	if h.failAfter > 0 && h.polls >= h.failAfter {
		return errFakeHAL
	}

	for _, e := range h.events {
		if e.down {
			keyDown(e.key)
		} else {
			keyUp(e.key)
		}
	}
	h.events = nil
	return nil
}

func (h *fakeHAL) Draw(_ *Framebuffer) error {
	h.frames++
	return nil
}

func (h *fakeHAL) Beep() error {
	h.beeps++
	return nil
}

func (h *fakeHAL) WaitForNextFrame() error {
	h.waits++
	return nil
}

func TestRunMaxCycles(t *testing.T) {
	machine := newTestVM(t, 0x70, 0x01, 0x12, 0x00) // add v0, 1; jmp 0x200
	hal := &fakeHAL{}

	err := machine.Run(context.Background(), hal, RunOptions{MaxCycles: 10})
	assert.NoError(t, err)
	assert.Equal(t, uint64(10), machine.Cycles())
	assert.Equal(t, uint8(5), machine.Register(0))
	assert.Equal(t, 10, hal.polls)
	assert.Equal(t, 10, hal.waits)
}

func TestRunStopOnHalt(t *testing.T) {
	machine := newTestVM(t, 0x00, 0xE0, 0x12, 0x02) // cls; jmp 0x202
	hal := &fakeHAL{}

	err := machine.Run(context.Background(), hal, RunOptions{StopOnHalt: true})
	assert.NoError(t, err)
	assert.True(t, machine.Halted())
	assert.Equal(t, uint64(2), machine.Cycles())
	assert.Equal(t, 1, hal.frames)
}

func TestRunIdlesAfterHalt(t *testing.T) {
	machine := newTestVM(t, 0x12, 0x00) // jmp 0x200
	hal := &fakeHAL{failAfter: 5}

	err := machine.Run(context.Background(), hal, RunOptions{})
	assert.True(t, errors.Is(err, errFakeHAL))
	assert.Equal(t, uint64(1), machine.Cycles())
}

func TestRunResetsMachine(t *testing.T) {
	machine := newTestVM(t, 0x12, 0x00)
	machine.registers[4] = 9
	machine.soundTimer = 30

	err := machine.Run(context.Background(), &fakeHAL{}, RunOptions{StopOnHalt: true})
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), machine.Register(4))
	assert.Equal(t, uint8(0), machine.SoundTimer())
}

func TestRunFatalError(t *testing.T) {
	machine := newTestVM(t, 0x00, 0xEE)

	err := machine.Run(context.Background(), &fakeHAL{}, RunOptions{})
	assert.True(t, errors.Is(err, ErrStackUnderflow))
}

func TestRunSkipsUnrecognizedOpcodes(t *testing.T) {
	machine := newTestVM(t, 0xFF, 0xFF, 0x60, 0x2A, 0x12, 0x04)

	err := machine.Run(context.Background(), &fakeHAL{}, RunOptions{StopOnHalt: true})
	assert.NoError(t, err)
	assert.Equal(t, uint8(0x2A), machine.Register(0))
	assert.Equal(t, uint64(3), machine.Cycles())
}

func TestRunHALError(t *testing.T) {
	machine := newTestVM(t, 0x12, 0x02, 0x12, 0x00)
	hal := &fakeHAL{failAfter: 3}

	err := machine.Run(context.Background(), hal, RunOptions{})
	assert.True(t, errors.Is(err, errFakeHAL))
	assert.Equal(t, uint64(3), machine.Cycles())
}

func TestRunBeeps(t *testing.T) {
	machine := newTestVM(t,
		0x60, 0x02, // mov v0, 2
		0xF0, 0x18, // ssound v0
		0x12, 0x04, // jmp 0x204
	)
	hal := &fakeHAL{}

	err := machine.Run(context.Background(), hal, RunOptions{StopOnHalt: true})
	assert.NoError(t, err)
	assert.Equal(t, 1, hal.beeps)
}

func TestRunDeliversKeys(t *testing.T) {
	machine := newTestVM(t,
		0xF1, 0x0A, // key v1
		0x12, 0x02, // jmp 0x202
	)
	hal := &fakeHAL{
		events: []fakeEvent{{key: Key9, down: true}, {key: Key9, down: false}},
	}

	err := machine.Run(context.Background(), hal, RunOptions{StopOnHalt: true})
	assert.NoError(t, err)
	assert.Equal(t, uint8(9), machine.Register(1))
	assert.Equal(t, uint64(3), machine.Cycles())
}

func TestRunCancelled(t *testing.T) {
	machine := newTestVM(t, 0x12, 0x02, 0x12, 0x00)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := machine.Run(ctx, &fakeHAL{}, RunOptions{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, uint64(0), machine.Cycles())
}
