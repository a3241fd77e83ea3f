package vm

import (
	"context"
	"fmt"
	"log/slog"
)

func (vm *VM) executeOpcode(addr, opcode uint16) error {
	instr, ok := decode(opcode)

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", addr),
			"opcode", fmt.Sprintf("0x%04x", opcode),
			"instr", instr.Name(opcode),
		)
	}

	if !ok {
		slog.Warn("unrecognized opcode",
			"pc", fmt.Sprintf("0x%04x", addr),
			"opcode", fmt.Sprintf("0x%04x", opcode),
		)
	}

	return instr.Execute(vm, opcode)
}

type instruction struct {
	Name    func(opcode uint16) string
	Execute func(vm *VM, opcode uint16) error
}

// familyMasks selects, per leading nibble, the bits that identify an
// operation. Families without a secondary field keep only the leading nibble.
var familyMasks = [16]uint16{
	0x0: 0xFFFF,
	0x1: 0xF000,
	0x2: 0xF000,
	0x3: 0xF000,
	0x4: 0xF000,
	0x5: 0xF00F,
	0x6: 0xF000,
	0x7: 0xF000,
	0x8: 0xF00F,
	0x9: 0xF00F,
	0xA: 0xF000,
	0xB: 0xF000,
	0xC: 0xF000,
	0xD: 0xF000,
	0xE: 0xF0FF,
	0xF: 0xF0FF,
}

// instructionSet maps the masked instruction word to its handler.
var instructionSet = map[uint16]instruction{
	0x00E0: clsInstruction,    // 00E0 - Clear screen
	0x00EE: rtsInstruction,    // 00EE - Return from subroutine
	0x1000: jmpInstruction,    // 1NNN - Jump to address NNN
	0x2000: jsrInstruction,    // 2NNN - Call subroutine at NNN
	0x3000: skeq1Instruction,  // 3XNN - Skip if VX == NN
	0x4000: skne1Instruction,  // 4XNN - Skip if VX != NN
	0x5000: skeq2Instruction,  // 5XY0 - Skip if VX == VY
	0x6000: mov1Instruction,   // 6XNN - VX = NN
	0x7000: add1Instruction,   // 7XNN - VX += NN
	0x8000: mov2Instruction,   // 8XY0 - VX = VY
	0x8001: orInstruction,     // 8XY1 - VX |= VY
	0x8002: andInstruction,    // 8XY2 - VX &= VY
	0x8003: xorInstruction,    // 8XY3 - VX ^= VY
	0x8004: add2Instruction,   // 8XY4 - VX += VY, VF = carry
	0x8005: subInstruction,    // 8XY5 - VX -= VY, VF = no borrow
	0x8006: shrInstruction,    // 8XY6 - VX >>= 1, VF = old bit 0
	0x8007: rsbInstruction,    // 8XY7 - VX = VY - VX, VF = no borrow
	0x800E: shlInstruction,    // 8XYE - VX <<= 1, VF = old bit 7
	0x9000: skne2Instruction,  // 9XY0 - Skip if VX != VY
	0xA000: mviInstruction,    // ANNN - I = NNN
	0xB000: jmiInstruction,    // BNNN - Jump to NNN + V0
	0xC000: randInstruction,   // CXNN - VX = random & NN
	0xD000: spriteInstruction, // DXYN - Draw sprite
	0xE09E: skprInstruction,   // EX9E - Skip if key VX pressed
	0xE0A1: skupInstruction,   // EXA1 - Skip if key VX not pressed
	0xF007: gdelayInstruction, // FX07 - VX = delay timer
	0xF00A: keyInstruction,    // FX0A - Wait for key, VX = key
	0xF015: sdelayInstruction, // FX15 - Delay timer = VX
	0xF018: ssoundInstruction, // FX18 - Sound timer = VX
	0xF01E: adiInstruction,    // FX1E - I += VX
	0xF029: fontInstruction,   // FX29 - I = glyph for VX
	0xF033: bcdInstruction,    // FX33 - BCD of VX at I..I+2
	0xF055: strInstruction,    // FX55 - Store V0..VX at I
	0xF065: ldrInstruction,    // FX65 - Load V0..VX from I
}

func decode(opcode uint16) (instruction, bool) {
	key := opcode & familyMasks[opcode>>12]

	instr, ok := instructionSet[key]
	if !ok {
		return unknownInstruction, false
	}

	return instr, true
}

func operandX(opcode uint16) uint16 { return (opcode & 0x0F00) >> 8 }
func operandY(opcode uint16) uint16 { return (opcode & 0x00F0) >> 4 }
func operandN(opcode uint16) uint16 { return opcode & 0x000F }
func operandKK(opcode uint16) uint8 { return uint8(opcode & 0x00FF) }
func operandNNN(opcode uint16) uint16 { return opcode & 0x0FFF }

func nameXY(mnemonic string) func(opcode uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s v%x, v%x", mnemonic, operandX(opcode), operandY(opcode))
	}
}

func nameXKK(mnemonic string) func(opcode uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s v%x, %d", mnemonic, operandX(opcode), operandKK(opcode))
	}
}

func nameX(mnemonic string) func(opcode uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s v%x", mnemonic, operandX(opcode))
	}
}

func nameNNN(mnemonic string) func(opcode uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s 0x%04x", mnemonic, operandNNN(opcode))
	}
}

// skipIf moves past the next instruction. The program counter already points
// at it when a handler runs.
func (vm *VM) skipIf(cond bool) {
	if cond {
		vm.pc += InstructionSize
	}
}

func (vm *VM) setFlag(set bool) {
	if set {
		vm.registers[flagRegister] = 1
	} else {
		vm.registers[flagRegister] = 0
	}
}

var (
	// 00E0	cls	Clear the screen
	clsInstruction = instruction{
		Name: func(opcode uint16) string {
			return "cls"
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.gfx = Framebuffer{}
			vm.drawFlag = true
			return nil
		},
	}

	// 00EE	rts	return from subroutine call
	rtsInstruction = instruction{
		Name: func(opcode uint16) string {
			return "rts"
		},
		Execute: func(vm *VM, opcode uint16) error {
			if vm.sp == 0 {
				return fmt.Errorf("%w: rts at 0x%04x", ErrStackUnderflow, vm.pc-InstructionSize)
			}

			vm.sp--
			vm.pc = vm.stack[vm.sp]
			return nil
		},
	}

	// 1xxx	jmp xxx	jump to address xxx
	jmpInstruction = instruction{
		Name: nameNNN("jmp"),
		Execute: func(vm *VM, opcode uint16) error {
			target := operandNNN(opcode)
			vm.halted = target == vm.pc-InstructionSize
			vm.pc = target
			return nil
		},
	}

	// 2xxx	jsr xxx	jump to subroutine at address xxx
	jsrInstruction = instruction{
		Name: nameNNN("jsr"),
		Execute: func(vm *VM, opcode uint16) error {
			if int(vm.sp) >= len(vm.stack) {
				return fmt.Errorf("%w: jsr at 0x%04x, depth %d", ErrStackOverflow, vm.pc-InstructionSize, vm.sp)
			}

			vm.stack[vm.sp] = vm.pc
			vm.sp++
			vm.pc = operandNNN(opcode)
			return nil
		},
	}

	// 3rxx	skeq vr,xx	skip if register r = constant
	skeq1Instruction = instruction{
		Name: nameXKK("skeq"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[operandX(opcode)] == operandKK(opcode))
			return nil
		},
	}

	// 4rxx	skne vr,xx	skip if register r <> constant
	skne1Instruction = instruction{
		Name: nameXKK("skne"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[operandX(opcode)] != operandKK(opcode))
			return nil
		},
	}

	// 5ry0	skeq vr,vy	skip if register r = register y
	skeq2Instruction = instruction{
		Name: nameXY("skeq"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[operandX(opcode)] == vm.registers[operandY(opcode)])
			return nil
		},
	}

	// 6rxx	mov vr,xx	move constant to register r
	mov1Instruction = instruction{
		Name: nameXKK("mov"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[operandX(opcode)] = operandKK(opcode)
			return nil
		},
	}

	// 7rxx	add vr,xx	add constant to register r, carry in vf
	add1Instruction = instruction{
		Name: nameXKK("add"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := operandX(opcode)
			sum := uint16(vm.registers[vX]) + uint16(operandKK(opcode))

			vm.registers[vX] = uint8(sum)
			vm.setFlag(sum > 0xFF)
			return nil
		},
	}

	// 8ry0	mov vr,vy	move register vy into vr
	mov2Instruction = instruction{
		Name: nameXY("mov"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[operandX(opcode)] = vm.registers[operandY(opcode)]
			return nil
		},
	}

	// 8ry1	or rx,ry	or register vy into register vx
	orInstruction = instruction{
		Name: nameXY("or"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[operandX(opcode)] |= vm.registers[operandY(opcode)]
			return nil
		},
	}

	// 8ry2	and rx,ry	and register vy into register vx
	andInstruction = instruction{
		Name: nameXY("and"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[operandX(opcode)] &= vm.registers[operandY(opcode)]
			return nil
		},
	}

	// 8ry3	xor rx,ry	exclusive or register ry into register rx
	xorInstruction = instruction{
		Name: nameXY("xor"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[operandX(opcode)] ^= vm.registers[operandY(opcode)]
			return nil
		},
	}

	// 8ry4	add vr,vy	add register vy to vr,carry in vf
	add2Instruction = instruction{
		Name: nameXY("add"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := operandX(opcode)
			sum := uint16(vm.registers[vX]) + uint16(vm.registers[operandY(opcode)])

			vm.registers[vX] = uint8(sum)
			vm.setFlag(sum > 0xFF)
			return nil
		},
	}

	// 8ry5	sub vr,vy	subtract register vy from vr, vf set to 1 if no borrow
	subInstruction = instruction{
		Name: nameXY("sub"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := operandX(opcode)
			x := vm.registers[vX]
			y := vm.registers[operandY(opcode)]

			vm.registers[vX] = x - y
			vm.setFlag(x >= y)
			return nil
		},
	}

	// 8r06	shr vr	shift register vr right, bit 0 goes into register vf
	shrInstruction = instruction{
		Name: nameX("shr"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := operandX(opcode)
			x := vm.registers[vX]

			vm.registers[vX] = x >> 1
			vm.registers[flagRegister] = x & 0x1
			return nil
		},
	}

	// 8ry7	rsb vr,vy	subtract register vr from register vy, result in vr, vf set to 1 if no borrow
	rsbInstruction = instruction{
		Name: nameXY("rsb"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := operandX(opcode)
			x := vm.registers[vX]
			y := vm.registers[operandY(opcode)]

			vm.registers[vX] = y - x
			vm.setFlag(y >= x)
			return nil
		},
	}

	// 8r0e	shl vr	shift register vr left, bit 7 goes into register vf
	shlInstruction = instruction{
		Name: nameX("shl"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := operandX(opcode)
			x := vm.registers[vX]

			vm.registers[vX] = x << 1
			vm.registers[flagRegister] = x >> 7
			return nil
		},
	}

	// 9ry0	skne rx,ry	skip if register rx <> register ry
	skne2Instruction = instruction{
		Name: nameXY("skne"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[operandX(opcode)] != vm.registers[operandY(opcode)])
			return nil
		},
	}

	// axxx	mvi xxx	Load index register with constant xxx
	mviInstruction = instruction{
		Name: nameNNN("mvi"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.index = operandNNN(opcode)
			return nil
		},
	}

	// bxxx	jmi xxx	Jump to address xxx+register v0
	jmiInstruction = instruction{
		Name: nameNNN("jmi"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.pc = operandNNN(opcode) + uint16(vm.registers[0])
			return nil
		},
	}

	// crxx	rand vr,xx	vr = random byte masked by xx
	randInstruction = instruction{
		Name: nameXKK("rand"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[operandX(opcode)] = uint8(vm.rand.UintN(256)) & operandKK(opcode)
			return nil
		},
	}

	// drys	sprite rx,ry,s	Draw sprite at screen location rx,ry height s
	// Sprites stored in memory at location in index register, 8 bits wide.
	// The anchor wraps around the screen, the sprite itself is clipped at the edges.
	// If when drawn, clears a pixel, vf is set to 1 otherwise it is zero.
	// All drawing is xor drawing (e.g. it toggles the screen pixels)
	spriteInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("sprite v%x, v%x, %d", operandX(opcode), operandY(opcode), operandN(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			xLocation := int(vm.registers[operandX(opcode)]) % ScreenWidth
			yLocation := int(vm.registers[operandY(opcode)]) % ScreenHeight
			height := int(operandN(opcode))

			hasCollision := false
			for row := 0; row < height; row++ {
				y := yLocation + row
				if y >= ScreenHeight {
					break
				}

				pixel := vm.readMemory(vm.index + uint16(row))

				for bit := 7; bit >= 0; bit-- {
					x := xLocation + (7 - bit)
					if x >= ScreenWidth {
						break
					}

					if (pixel>>bit)&0x1 == 0 {
						continue
					}

					if vm.gfx[y][x] {
						hasCollision = true
					}
					vm.gfx[y][x] = !vm.gfx[y][x]
				}
			}

			vm.setFlag(hasCollision)
			vm.drawFlag = true
			return nil
		},
	}

	// ek9e	skpr k	skip if key (register rk) pressed
	skprInstruction = instruction{
		Name: nameX("skpr"),
		Execute: func(vm *VM, opcode uint16) error {
			key := Key(vm.registers[operandX(opcode)] & 0x0F)
			vm.skipIf(vm.input.IsKeyDown(key))
			return nil
		},
	}

	// eka1	skup k	skip if key (register rk) not pressed
	skupInstruction = instruction{
		Name: nameX("skup"),
		Execute: func(vm *VM, opcode uint16) error {
			key := Key(vm.registers[operandX(opcode)] & 0x0F)
			vm.skipIf(!vm.input.IsKeyDown(key))
			return nil
		},
	}

	// fr07	gdelay vr	get delay timer into vr
	gdelayInstruction = instruction{
		Name: nameX("gdelay"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[operandX(opcode)] = vm.delayTimer
			return nil
		},
	}

	// fr0a	key vr	wait for for keypress,put key in register vr
	// The instruction is re-executed on every step until a key press arrives.
	keyInstruction = instruction{
		Name: nameX("key"),
		Execute: func(vm *VM, opcode uint16) error {
			if !vm.waitingForKey {
				// Only presses made after the wait started count.
				for {
					if _, ok := vm.input.NextKeyPress(); !ok {
						break
					}
				}
			}

			key, ok := vm.input.NextKeyPress()
			if !ok {
				vm.waitingForKey = true
				vm.pc -= InstructionSize
				return nil
			}

			vm.waitingForKey = false
			vm.registers[operandX(opcode)] = uint8(key) & 0x0F
			return nil
		},
	}

	// fr15	sdelay vr	set the delay timer to vr
	sdelayInstruction = instruction{
		Name: nameX("sdelay"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.delayTimer = vm.registers[operandX(opcode)]
			return nil
		},
	}

	// fr18	ssound vr	set the sound timer to vr
	ssoundInstruction = instruction{
		Name: nameX("ssound"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.soundTimer = vm.registers[operandX(opcode)]
			return nil
		},
	}

	// fr1e	adi vr	add register vr to the index register, vf set on range overflow
	adiInstruction = instruction{
		Name: nameX("adi"),
		Execute: func(vm *VM, opcode uint16) error {
			sum := vm.index + uint16(vm.registers[operandX(opcode)])

			vm.index = sum & addressMask
			vm.setFlag(sum > addressMask)
			return nil
		},
	}

	// fr29	font vr	point I to the sprite for hexadecimal character in vr
	fontInstruction = instruction{
		Name: nameX("font"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.index = GlyphAddress(vm.registers[operandX(opcode)])
			return nil
		},
	}

	// fr33	bcd vr	store the bcd representation of register vr at location I,I+1,I+2
	bcdInstruction = instruction{
		Name: nameX("bcd"),
		Execute: func(vm *VM, opcode uint16) error {
			x := vm.registers[operandX(opcode)]

			vm.writeMemory(vm.index, x/100)
			vm.writeMemory(vm.index+1, (x/10)%10)
			vm.writeMemory(vm.index+2, x%10)
			return nil
		},
	}

	// fr55	str v0-vr	store registers v0-vr at location I onwards, I is left unchanged
	strInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("str v0-v%x", operandX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			n := operandX(opcode)

			for i := uint16(0); i <= n; i++ {
				vm.writeMemory(vm.index+i, vm.registers[i])
			}
			return nil
		},
	}

	// fr65	ldr v0-vr	load registers v0-vr from location I onwards, I is left unchanged
	ldrInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ldr v0-v%x", operandX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			n := operandX(opcode)

			for i := uint16(0); i <= n; i++ {
				vm.registers[i] = vm.readMemory(vm.index + i)
			}
			return nil
		},
	}

	unknownInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("unknown 0x%04X", opcode)
		},
		Execute: func(vm *VM, opcode uint16) error {
			return &UnrecognizedOpcodeError{Address: vm.pc - InstructionSize, Opcode: opcode}
		},
	}
)
