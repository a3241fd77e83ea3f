package hal

import (
	"unicode"

	"github.com/kapitanov/chip8emu/internal/vm"
)

// Physical                Logical
// ================        =================
// | 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
// | q | w | e | r |       | 4 | 5 | 6 | D |
// | a | s | d | f |  <=>  | 7 | 8 | 9 | E |
// | z | x | c | v |       | A | 0 | B | F |
// ================        =================
var runeKeys = map[rune]vm.Key{
	'x': vm.Key0,
	'1': vm.Key1,
	'2': vm.Key2,
	'3': vm.Key3,
	'q': vm.Key4,
	'w': vm.Key5,
	'e': vm.Key6,
	'a': vm.Key7,
	's': vm.Key8,
	'd': vm.Key9,
	'z': vm.KeyA,
	'c': vm.KeyB,
	'4': vm.KeyC,
	'r': vm.KeyD,
	'f': vm.KeyE,
	'v': vm.KeyF,
}

func keyForRune(r rune) (vm.Key, bool) {
	key, ok := runeKeys[unicode.ToLower(r)]
	return key, ok
}
