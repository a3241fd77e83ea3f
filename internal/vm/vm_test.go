package vm

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func newTestVM(t *testing.T, program ...byte) *VM {
	t.Helper()

	machine := New(WithRand(rand.New(rand.NewPCG(1, 2))))
	assert.NoError(t, machine.Load(program))
	return machine
}

func stepN(t *testing.T, machine *VM, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		assert.NoError(t, machine.Step())
	}
}

func TestNewResetsState(t *testing.T) {
	machine := New()

	assert.Equal(t, ProgramStart, machine.PC())
	assert.Equal(t, uint16(0), machine.Index())
	assert.Equal(t, uint16(0), machine.SP())
	assert.Equal(t, uint8(0), machine.DelayTimer())
	assert.Equal(t, uint8(0), machine.SoundTimer())
	assert.Equal(t, Framebuffer{}, machine.Framebuffer())
	assert.False(t, machine.WaitingForKey())
	assert.False(t, machine.Halted())

	for i := 0; i < RegisterCount; i++ {
		assert.Equal(t, uint8(0), machine.Register(i))
	}

	mem := machine.Memory()
	assert.Equal(t, MemorySize, len(mem))
	assert.Equal(t, fontSet[:], mem[FontStart:int(FontStart)+len(fontSet)])
	assert.Equal(t, make([]uint8, int(FontStart)), mem[:FontStart])
}

func TestLoad(t *testing.T) {
	t.Run("fits", func(t *testing.T) {
		program := make([]byte, MaxProgramSize)
		program[0] = 0x12
		program[len(program)-1] = 0x34

		machine := New()
		assert.NoError(t, machine.Load(program))

		mem := machine.Memory()
		assert.Equal(t, uint8(0x12), mem[ProgramStart])
		assert.Equal(t, uint8(0x34), mem[MemorySize-1])
	})

	t.Run("too large", func(t *testing.T) {
		machine := New()
		err := machine.Load(make([]byte, MaxProgramSize+1))
		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrProgramTooLarge))
		assert.True(t, IsFatal(err))
	})
}

func TestResetKeepsProgram(t *testing.T) {
	machine := newTestVM(t, 0x60, 0x05, 0xA3, 0x00)
	stepN(t, machine, 2)
	assert.Equal(t, uint8(5), machine.Register(0))

	machine.Reset()

	assert.Equal(t, ProgramStart, machine.PC())
	assert.Equal(t, uint8(0), machine.Register(0))
	assert.Equal(t, uint16(0), machine.Index())
	assert.Equal(t, uint64(0), machine.Cycles())
	assert.Equal(t, []uint8{0x60, 0x05, 0xA3, 0x00}, machine.Memory()[ProgramStart:ProgramStart+4])
}

func TestStepFetchesBigEndian(t *testing.T) {
	machine := newTestVM(t, 0xA1, 0x23)
	stepN(t, machine, 1)

	assert.Equal(t, uint16(0xA123), machine.Opcode())
	assert.Equal(t, uint16(0x0123), machine.Index())
	assert.Equal(t, ProgramStart+2, machine.PC())
	assert.Equal(t, uint64(1), machine.Cycles())
}

func TestStepOutOfBoundsFetch(t *testing.T) {
	machine := newTestVM(t, 0x1F, 0xFF) // jmp 0xfff
	stepN(t, machine, 1)
	assert.Equal(t, uint16(0x0FFF), machine.PC())

	err := machine.Step()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfBoundsFetch))
	assert.True(t, IsFatal(err))
}

func TestStepAddScenario(t *testing.T) {
	// V0 = 5; V1 = 3; V0 += V1
	machine := newTestVM(t, 0x60, 0x05, 0x61, 0x03, 0x80, 0x14)
	stepN(t, machine, 3)

	assert.Equal(t, uint8(8), machine.Register(0))
	assert.Equal(t, uint8(3), machine.Register(1))
	assert.Equal(t, uint8(0), machine.Register(0xF))
	assert.Equal(t, uint16(0x206), machine.PC())
}

func TestStepCallReturnScenario(t *testing.T) {
	machine := newTestVM(t,
		0x22, 0x08, // 0x200: jsr 0x208
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0xEE, // 0x208: rts
	)

	stepN(t, machine, 1)
	assert.Equal(t, uint16(0x208), machine.PC())
	assert.Equal(t, uint16(1), machine.SP())

	stepN(t, machine, 1)
	assert.Equal(t, uint16(0x202), machine.PC())
	assert.Equal(t, uint16(0), machine.SP())
}

func TestAddImmediateProperty(t *testing.T) {
	tests := []struct {
		kk, kk2 uint8
	}{
		{0, 0},
		{5, 3},
		{0x7F, 0x80},
		{0xFF, 0x01},
		{0x80, 0x80},
		{0xFF, 0xFF},
	}

	for x := uint8(0); x < 0xF; x++ {
		for _, tt := range tests {
			machine := newTestVM(t, 0x60|x, tt.kk, 0x70|x, tt.kk2)
			stepN(t, machine, 2)

			sum := int(tt.kk) + int(tt.kk2)
			assert.Equal(t, uint8(sum%256), machine.Register(int(x)))

			carry := uint8(0)
			if sum > 255 {
				carry = 1
			}
			assert.Equal(t, carry, machine.Register(0xF))
		}
	}
}

func TestTimers(t *testing.T) {
	machine := newTestVM(t,
		0x60, 0x03, // mov v0, 3
		0xF0, 0x15, // sdelay v0
		0xF0, 0x18, // ssound v0
		0xF1, 0x07, // gdelay v1
		0x62, 0x00, // mov v2, 0
	)

	stepN(t, machine, 2)
	assert.Equal(t, uint8(2), machine.DelayTimer())
	assert.Equal(t, uint8(0), machine.SoundTimer())

	stepN(t, machine, 1)
	assert.Equal(t, uint8(1), machine.DelayTimer())
	assert.Equal(t, uint8(2), machine.SoundTimer())
	assert.False(t, machine.Beeping())

	stepN(t, machine, 1)
	assert.Equal(t, uint8(1), machine.Register(1))
	assert.Equal(t, uint8(0), machine.DelayTimer())
	assert.Equal(t, uint8(1), machine.SoundTimer())
	assert.False(t, machine.Beeping())

	stepN(t, machine, 1)
	assert.Equal(t, uint8(0), machine.SoundTimer())
	assert.True(t, machine.Beeping())
}

func TestUnrecognizedOpcodes(t *testing.T) {
	words := []uint16{
		0x0000, 0x0123, 0x01E0, 0x00E1, 0x5121, 0x512F,
		0x8008, 0x800D, 0x800F, 0x9121, 0xE000, 0xE19F,
		0xF000, 0xF0FF, 0xF156, 0xF264,
	}

	for _, word := range words {
		assertUnrecognizedStep(t, word)
	}
}

func FuzzUnrecognizedOpcode(f *testing.F) {
	for _, seed := range []uint16{0x0000, 0x5001, 0x800C, 0xE0FF, 0xF0A0, 0x6001} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, word uint16) {
		if _, ok := decode(word); ok {
			t.Skip()
		}
		assertUnrecognizedStep(t, word)
	})
}

func assertUnrecognizedStep(t *testing.T, word uint16) {
	t.Helper()

	machine := newTestVM(t, uint8(word>>8), uint8(word))
	machine.delayTimer = 5
	machine.soundTimer = 9
	machine.index = 0x345
	for i := range machine.registers {
		machine.registers[i] = uint8(i * 3)
	}
	machine.gfx[1][2] = true

	registers := machine.registers
	memory := machine.memory
	gfx := machine.gfx

	err := machine.Step()
	assert.Error(t, err)
	assert.False(t, IsFatal(err))

	var unknown *UnrecognizedOpcodeError
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, word, unknown.Opcode)
	assert.Equal(t, ProgramStart, unknown.Address)

	assert.Equal(t, ProgramStart+InstructionSize, machine.PC())
	assert.Equal(t, uint8(4), machine.DelayTimer())
	assert.Equal(t, uint8(8), machine.SoundTimer())
	assert.Equal(t, uint16(0x345), machine.Index())
	assert.Equal(t, uint16(0), machine.SP())
	assert.Equal(t, registers, machine.registers)
	assert.Equal(t, memory, machine.memory)
	assert.Equal(t, gfx, machine.gfx)
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(&UnrecognizedOpcodeError{Address: 0x200, Opcode: 0xFFFF}))
	assert.True(t, IsFatal(ErrStackOverflow))
	assert.True(t, IsFatal(ErrStackUnderflow))
	assert.True(t, IsFatal(ErrOutOfBoundsFetch))
}

func TestGlyphAddress(t *testing.T) {
	for g := uint8(0); g < 16; g++ {
		assert.Equal(t, 0x50+5*uint16(g), GlyphAddress(g))
	}
	assert.Equal(t, GlyphAddress(0xA), GlyphAddress(0x1A))
}
