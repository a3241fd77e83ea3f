package vm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	FontStart       = uint16(0x50)
	GlyphSize       = 5
	ProgramStart    = uint16(0x200)
	MaxProgramSize  = MemorySize - int(ProgramStart)
	InstructionSize = 2

	// VF doubles as the carry, borrow and collision flag.
	flagRegister = 0x0F

	addressMask = MemorySize - 1
)

// Framebuffer is the monochrome 64x32 display, indexed [row][column].
type Framebuffer [ScreenHeight][ScreenWidth]bool

type VM struct {
	memory    [MemorySize]uint8    // Memory (4k)
	registers [RegisterCount]uint8 // V registers (V0-VF)

	stack [StackSize]uint16 // Stack
	sp    uint16            // Stack pointer

	pc    uint16 // Program counter
	index uint16 // Index register

	delayTimer uint8 // Delay timer
	soundTimer uint8 // Sound timer

	gfx      Framebuffer // Graphics buffer
	drawFlag bool        // Indicates a draw has occurred

	opcode        uint16 // Last fetched instruction word
	waitingForKey bool
	halted        bool
	beeping       bool
	cycles        uint64

	input Input
	rand  *rand.Rand

	program []byte
}

type Option func(vm *VM)

// WithRand replaces the random source used by the Cxkk instruction.
func WithRand(r *rand.Rand) Option {
	return func(vm *VM) {
		vm.rand = r
	}
}

// WithInput replaces the default Keypad with another input collaborator.
func WithInput(input Input) Option {
	return func(vm *VM) {
		vm.input = input
	}
}

func New(opts ...Option) *VM {
	vm := &VM{
		input: NewKeypad(),
		rand:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}

	for _, opt := range opts {
		opt(vm)
	}

	vm.Reset()
	return vm
}

// Reset brings the machine back to its power-on state. A previously loaded
// program is copied back into memory so that the session can be rebooted.
func (vm *VM) Reset() {
	vm.pc = ProgramStart
	vm.index = 0
	vm.sp = 0
	vm.opcode = 0

	vm.gfx = Framebuffer{}
	vm.drawFlag = true

	slog.Debug("clear stack", "n", len(vm.stack))
	vm.stack = [StackSize]uint16{}

	slog.Debug("clear registers", "n", len(vm.registers))
	vm.registers = [RegisterCount]uint8{}

	slog.Debug("clear memory", "n", len(vm.memory))
	vm.memory = [MemorySize]uint8{}

	slog.Debug("load font", "at", fmt.Sprintf("0x%04x", FontStart), "n", len(fontSet))
	copy(vm.memory[FontStart:], fontSet[:])

	if len(vm.program) > 0 {
		copy(vm.memory[ProgramStart:], vm.program)
	}

	// Timers start inactive.
	vm.delayTimer = 0
	vm.soundTimer = 0

	vm.waitingForKey = false
	vm.halted = false
	vm.beeping = false
	vm.cycles = 0

	if r, ok := vm.input.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// Load copies a raw program image into memory at ProgramStart.
func (vm *VM) Load(program []byte) error {
	if len(program) > MaxProgramSize {
		return fmt.Errorf("%w: %d bytes, at most %d fit", ErrProgramTooLarge, len(program), MaxProgramSize)
	}

	vm.program = append([]byte(nil), program...)
	copy(vm.memory[ProgramStart:], vm.program)

	slog.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(program))
	return nil
}

// Step runs exactly one fetch-decode-execute cycle and then ticks both timers.
//
// A non-nil error for which IsFatal reports true ends the session. An
// *UnrecognizedOpcodeError is returned only after the cycle completed.
func (vm *VM) Step() error {
	opcode, err := vm.fetchOpcode()
	if err != nil {
		return err
	}

	addr := vm.pc
	vm.opcode = opcode
	vm.pc += InstructionSize
	vm.beeping = false

	execErr := vm.executeOpcode(addr, opcode)
	if IsFatal(execErr) {
		return execErr
	}

	vm.updateTimers()
	vm.cycles++

	return execErr
}

func (vm *VM) fetchOpcode() (uint16, error) {
	if int(vm.pc)+1 >= MemorySize {
		return 0, fmt.Errorf("%w: pc=0x%04x", ErrOutOfBoundsFetch, vm.pc)
	}

	hi := vm.memory[vm.pc]
	lo := vm.memory[vm.pc+1]

	opcode := uint16(hi)<<8 | uint16(lo) // Op code is two bytes
	return opcode, nil
}

func (vm *VM) updateTimers() {
	if vm.delayTimer > 0 {
		vm.delayTimer--
	}

	if vm.soundTimer > 0 {
		if vm.soundTimer == 1 {
			vm.beeping = true
		}
		vm.soundTimer--
	}
}

func (vm *VM) readMemory(addr uint16) uint8 {
	return vm.memory[addr&addressMask]
}

// writeMemory never lets a program touch the interpreter area, which holds the font.
func (vm *VM) writeMemory(addr uint16, value uint8) {
	addr &= addressMask
	if addr < ProgramStart {
		slog.Warn("write to reserved memory dropped",
			"addr", fmt.Sprintf("0x%04x", addr),
			"pc", fmt.Sprintf("0x%04x", vm.pc-InstructionSize),
		)
		return
	}

	vm.memory[addr] = value
}

func (vm *VM) PC() uint16 { return vm.pc }
func (vm *VM) Index() uint16 { return vm.index }
func (vm *VM) SP() uint16 { return vm.sp }
func (vm *VM) Opcode() uint16 { return vm.opcode }
func (vm *VM) DelayTimer() uint8 { return vm.delayTimer }
func (vm *VM) SoundTimer() uint8 { return vm.soundTimer }
func (vm *VM) Cycles() uint64 { return vm.cycles }
func (vm *VM) WaitingForKey() bool { return vm.waitingForKey }

// Halted reports whether the last jump targeted its own address.
func (vm *VM) Halted() bool { return vm.halted }

// Beeping reports whether the sound timer expired during the last Step.
func (vm *VM) Beeping() bool { return vm.beeping }

func (vm *VM) Register(i int) uint8 {
	return vm.registers[i&0x0F]
}

func (vm *VM) Memory() []uint8 {
	return append([]uint8(nil), vm.memory[:]...)
}

func (vm *VM) Pixel(x, y int) bool {
	return vm.gfx[y%ScreenHeight][x%ScreenWidth]
}

func (vm *VM) Framebuffer() Framebuffer {
	return vm.gfx
}

func (vm *VM) DrawFlag() bool {
	return vm.drawFlag
}

func (vm *VM) ClearDrawFlag() {
	vm.drawFlag = false
}

// LogState writes the register file at the given level.
func (vm *VM) LogState(level slog.Level) {
	if !slog.Default().Enabled(context.Background(), level) {
		return
	}

	attrs := []any{
		"pc", fmt.Sprintf("0x%04x", vm.pc),
		"i", fmt.Sprintf("0x%04x", vm.index),
		"sp", vm.sp,
		"dt", vm.delayTimer,
		"st", vm.soundTimer,
		"cycles", vm.cycles,
	}
	for i, v := range vm.registers {
		attrs = append(attrs, fmt.Sprintf("v%x", i), v)
	}

	slog.Log(context.Background(), level, "machine state", attrs...)
}
