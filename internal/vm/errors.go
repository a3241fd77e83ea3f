package vm

import (
	"errors"
	"fmt"
)

var (
	ErrProgramTooLarge  = errors.New("program too large")
	ErrOutOfBoundsFetch = errors.New("fetch out of bounds")
	ErrStackOverflow    = errors.New("stack overflow")
	ErrStackUnderflow   = errors.New("stack underflow")
)

// UnrecognizedOpcodeError reports an instruction word that matches no known
// operation. It does not stop the machine.
type UnrecognizedOpcodeError struct {
	Address uint16
	Opcode  uint16
}

func (e *UnrecognizedOpcodeError) Error() string {
	return fmt.Sprintf("unknown op code 0x%04X at 0x%04x", e.Opcode, e.Address)
}

// IsFatal reports whether err must end the emulation session.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var unknown *UnrecognizedOpcodeError
	return !errors.As(err, &unknown)
}
