package vm

type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

// Input is the keyboard collaborator of the machine.
type Input interface {
	// IsKeyDown reports whether the key is currently held.
	IsKeyDown(key Key) bool
	// NextKeyPress returns the oldest unconsumed key press, if any. It never blocks.
	NextKeyPress() (Key, bool)
}

const maxPendingPresses = 16

// Keypad tracks the 16-key hex keypad. Press and Release match the callbacks
// expected by HAL.ReadInput.
type Keypad struct {
	down    [KeyCount]bool
	presses []Key
}

func NewKeypad() *Keypad {
	return &Keypad{
		presses: make([]Key, 0, maxPendingPresses),
	}
}

func (k *Keypad) Press(key Key) {
	if int(key) >= KeyCount {
		return
	}

	// Auto-repeat from the host does not count as a new press.
	if !k.down[key] {
		if len(k.presses) == maxPendingPresses {
			k.presses = k.presses[1:]
		}
		k.presses = append(k.presses, key)
	}

	k.down[key] = true
}

func (k *Keypad) Release(key Key) {
	if int(key) >= KeyCount {
		return
	}

	k.down[key] = false
}

func (k *Keypad) IsKeyDown(key Key) bool {
	if int(key) >= KeyCount {
		return false
	}

	return k.down[key]
}

func (k *Keypad) NextKeyPress() (Key, bool) {
	if len(k.presses) == 0 {
		return 0, false
	}

	key := k.presses[0]
	k.presses = k.presses[1:]
	return key, true
}

func (k *Keypad) Reset() {
	k.down = [KeyCount]bool{}
	k.presses = k.presses[:0]
}
