package hal

import (
	"testing"

	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/retroenv/retrogolib/assert"
)

func TestKeyForRune(t *testing.T) {
	tests := []struct {
		r    rune
		key  vm.Key
		isOK bool
	}{
		{'x', vm.Key0, true},
		{'X', vm.Key0, true},
		{'1', vm.Key1, true},
		{'4', vm.KeyC, true},
		{'f', vm.KeyE, true},
		{'V', vm.KeyF, true},
		{'p', 0, false},
		{'5', 0, false},
	}

	for _, tt := range tests {
		key, ok := keyForRune(tt.r)
		assert.Equal(t, tt.isOK, ok)
		assert.Equal(t, tt.key, key)
	}
}

func TestRuneKeysCoverKeypad(t *testing.T) {
	seen := map[vm.Key]bool{}
	for _, key := range runeKeys {
		seen[key] = true
	}
	assert.Equal(t, vm.KeyCount, len(seen))
}
