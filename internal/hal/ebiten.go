package hal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/kapitanov/chip8emu/internal/config"
	"github.com/kapitanov/chip8emu/internal/vm"
)

var ebitenKeys = map[ebiten.Key]vm.Key{
	ebiten.KeyX:      vm.Key0,
	ebiten.KeyDigit1: vm.Key1,
	ebiten.KeyDigit2: vm.Key2,
	ebiten.KeyDigit3: vm.Key3,
	ebiten.KeyQ:      vm.Key4,
	ebiten.KeyW:      vm.Key5,
	ebiten.KeyE:      vm.Key6,
	ebiten.KeyA:      vm.Key7,
	ebiten.KeyS:      vm.Key8,
	ebiten.KeyD:      vm.Key9,
	ebiten.KeyZ:      vm.KeyA,
	ebiten.KeyC:      vm.KeyB,
	ebiten.KeyDigit4: vm.KeyC,
	ebiten.KeyR:      vm.KeyD,
	ebiten.KeyF:      vm.KeyE,
	ebiten.KeyV:      vm.KeyF,
}

type keyEvent struct {
	key  vm.Key
	down bool
}

// ebitenGame runs on the ebiten goroutine. Everything it shares with the
// emulation loop is guarded by mutex.
type ebitenGame struct {
	mutex   sync.Mutex
	pixels  []byte
	events  []keyEvent
	reboot  bool
	quit    bool
	closing bool
}

func (g *ebitenGame) Update() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closing {
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.quit = true
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		g.reboot = true
	}

	for ek, key := range ebitenKeys {
		if inpututil.IsKeyJustPressed(ek) {
			g.events = append(g.events, keyEvent{key: key, down: true})
		}
		if inpututil.IsKeyJustReleased(ek) {
			g.events = append(g.events, keyEvent{key: key, down: false})
		}
	}

	return nil
}

func (g *ebitenGame) Draw(screen *ebiten.Image) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	screen.WritePixels(g.pixels)
}

func (g *ebitenGame) Layout(_, _ int) (int, int) {
	return vm.ScreenWidth, vm.ScreenHeight
}

type Ebiten struct {
	cfg     config.Config
	speaker Speaker
	game    *ebitenGame
	done    chan struct{}
}

func NewEbiten(cfg config.Config, speaker Speaker) (*Ebiten, error) {
	game := &ebitenGame{
		pixels: make([]byte, vm.ScreenWidth*vm.ScreenHeight*4),
	}
	fillRGBA(game.pixels, &vm.Framebuffer{}, cfg.Foreground, cfg.Background)

	ebiten.SetWindowSize(vm.ScreenWidth*cfg.Scale, vm.ScreenHeight*cfg.Scale)
	ebiten.SetWindowTitle("CHIP-8")
	ebiten.SetRunnableOnUnfocused(true)

	hal := &Ebiten{
		cfg:     cfg,
		speaker: speaker,
		game:    game,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(hal.done)
		if err := ebiten.RunGame(game); err != nil {
			slog.Error("ebiten stopped", "err", err)
		}
	}()

	slog.Debug("hal: ebiten window started")
	return hal, nil
}

func (hal *Ebiten) Shutdown() {
	hal.game.mutex.Lock()
	hal.game.closing = true
	hal.game.mutex.Unlock()

	select {
	case <-hal.done:
	case <-time.After(time.Second):
		slog.Warn("ebiten did not stop in time")
	}
}

func (hal *Ebiten) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	select {
	case <-hal.done:
		slog.Debug("hal: exit requested")
		return ErrQuit
	default:
	}

	hal.game.mutex.Lock()
	events := hal.game.events
	hal.game.events = nil
	reboot, quit := hal.game.reboot, hal.game.quit
	hal.game.reboot = false
	hal.game.mutex.Unlock()

	if quit {
		return ErrQuit
	}
	if reboot {
		return ErrReboot
	}

	for _, e := range events {
		if e.down {
			keyDown(e.key)
		} else {
			keyUp(e.key)
		}
	}

	return nil
}

func (hal *Ebiten) Draw(gfx *vm.Framebuffer) error {
	hal.game.mutex.Lock()
	fillRGBA(hal.game.pixels, gfx, hal.cfg.Foreground, hal.cfg.Background)
	hal.game.mutex.Unlock()
	return nil
}

func (hal *Ebiten) Beep() error {
	if hal.speaker != nil {
		hal.speaker.Beep()
	}
	return nil
}

func (hal *Ebiten) WaitForNextFrame() error {
	waitFor(hal.cfg.CycleDelay)
	return nil
}

// fillRGBA writes the framebuffer as RGBA bytes into dst.
func fillRGBA(dst []byte, gfx *vm.Framebuffer, fg, bg uint32) {
	for y := 0; y < vm.ScreenHeight; y++ {
		for x := 0; x < vm.ScreenWidth; x++ {
			color := bg
			if gfx[y][x] {
				color = fg
			}

			i := (x + y*vm.ScreenWidth) * 4
			dst[i] = byte(color >> 16)
			dst[i+1] = byte(color >> 8)
			dst[i+2] = byte(color)
			dst[i+3] = 0xFF
		}
	}
}
