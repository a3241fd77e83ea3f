package hal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/kapitanov/chip8emu/internal/config"
	"github.com/kapitanov/chip8emu/internal/vm"
	"golang.org/x/term"
)

const (
	keyCtrlC     = 0x03
	keyBackspace = 0x08
	keyEscape    = 0x1B
	keyDelete    = 0x7F

	// Terminals report presses only, so a key counts as held for this long.
	terminalKeyHold = 100 * time.Millisecond
)

// Terminal draws the framebuffer with ANSI colors and half-block characters,
// two pixel rows per text row, and reads keys from stdin in raw mode.
type Terminal struct {
	cfg     config.Config
	speaker Speaker

	fd       int
	oldState *term.State
	out      *bufio.Writer
	input    chan byte

	held     map[vm.Key]time.Time
	tooSmall bool
}

func NewTerminal(cfg config.Config, speaker Speaker) (*Terminal, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to set raw mode: %w", err)
	}

	hal := &Terminal{
		cfg:      cfg,
		speaker:  speaker,
		fd:       fd,
		oldState: oldState,
		out:      bufio.NewWriter(os.Stdout),
		input:    make(chan byte, 64),
		held:     make(map[vm.Key]time.Time),
	}

	// Hide the cursor and clear the screen.
	_, _ = hal.out.WriteString("\x1b[?25l\x1b[2J")
	_ = hal.out.Flush()

	go hal.pollKeyboard(os.Stdin)
	return hal, nil
}

// pollKeyboard blocks on stdin. It is left running at shutdown since a
// blocked read cannot be interrupted; the process exits right after.
func (hal *Terminal) pollKeyboard(r io.Reader) {
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			select {
			case hal.input <- b:
			default:
				slog.Debug("hal: terminal input dropped", "byte", b)
			}
		}
		if err != nil {
			return
		}
	}
}

func (hal *Terminal) Shutdown() {
	_, _ = hal.out.WriteString("\x1b[0m\x1b[?25h\r\n")
	_ = hal.out.Flush()

	if err := term.Restore(hal.fd, hal.oldState); err != nil {
		slog.Error("failed to restore terminal", "err", err)
	}
}

func (hal *Terminal) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	now := time.Now()
	for key, since := range hal.held {
		if now.Sub(since) >= terminalKeyHold {
			delete(hal.held, key)
			keyUp(key)
		}
	}

	for {
		select {
		case b := <-hal.input:
			if err := hal.processByte(b, now, keyDown); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (hal *Terminal) processByte(b byte, now time.Time, keyDown func(vm.Key)) error {
	switch b {
	case keyCtrlC, keyEscape:
		slog.Debug("hal: exit requested")
		return ErrQuit
	case keyBackspace, keyDelete:
		return ErrReboot
	}

	key, ok := keyForRune(rune(b))
	if !ok {
		return nil
	}

	if _, down := hal.held[key]; !down {
		keyDown(key)
	}
	hal.held[key] = now
	return nil
}

func (hal *Terminal) Draw(gfx *vm.Framebuffer) error {
	if width, height, err := term.GetSize(hal.fd); err == nil {
		small := width < vm.ScreenWidth || height < vm.ScreenHeight/2
		if small && !hal.tooSmall {
			slog.Warn("terminal too small", "width", width, "height", height)
		}
		hal.tooSmall = small
	}

	if err := renderANSI(hal.out, gfx, hal.cfg.Foreground, hal.cfg.Background); err != nil {
		return fmt.Errorf("failed to draw to terminal: %w", err)
	}

	return hal.out.Flush()
}

func (hal *Terminal) Beep() error {
	if hal.speaker != nil {
		hal.speaker.Beep()
		return nil
	}

	_, err := hal.out.WriteString("\a")
	return err
}

func (hal *Terminal) WaitForNextFrame() error {
	waitFor(hal.cfg.CycleDelay)
	return nil
}

// renderANSI writes the framebuffer starting at the top-left corner. Each
// text row shows two pixel rows: the upper one as the foreground of an upper
// half block, the lower one as its background.
func renderANSI(w io.StringWriter, gfx *vm.Framebuffer, fg, bg uint32) error {
	if _, err := w.WriteString("\x1b[H"); err != nil {
		return err
	}

	for y := 0; y < vm.ScreenHeight; y += 2 {
		for x := 0; x < vm.ScreenWidth; x++ {
			top, bottom := bg, bg
			if gfx[y][x] {
				top = fg
			}
			if gfx[y+1][x] {
				bottom = fg
			}

			cell := fmt.Sprintf("\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀",
				byte(top>>16), byte(top>>8), byte(top),
				byte(bottom>>16), byte(bottom>>8), byte(bottom),
			)
			if _, err := w.WriteString(cell); err != nil {
				return err
			}
		}

		if _, err := w.WriteString("\x1b[0m\r\n"); err != nil {
			return err
		}
	}

	return nil
}
