package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	BackendSDL      = "sdl"
	BackendEbiten   = "ebiten"
	BackendTerminal = "terminal"
	BackendHeadless = "headless"

	// EnvBackend selects the backend when --backend is not given.
	EnvBackend = "CHIP8_BACKEND"
)

var Backends = []string{BackendSDL, BackendEbiten, BackendTerminal, BackendHeadless}

var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrInvalidValue   = errors.New("invalid value")
)

type Config struct {
	Verbose bool

	Backend    string
	CycleDelay time.Duration
	Scale      int
	Foreground uint32
	Background uint32
	Mute       bool
	Seed       uint64

	Cycles     uint64
	Screenshot string
}

func Default() Config {
	return Config{
		Backend:    BackendSDL,
		CycleDelay: 1200 * time.Microsecond,
		Scale:      16,
		Foreground: 0xbea700,
		Background: 0x000000,
	}
}

// BindFlags registers the flags shared by every command.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "enable verbose logging")
	fs.StringVarP(&c.Backend, "backend", "b", c.Backend, fmt.Sprintf("display backend (%s)", strings.Join(Backends, ", ")))
	fs.DurationVar(&c.CycleDelay, "cycle-delay", c.CycleDelay, "pause between two emulated cycles")
	fs.IntVar(&c.Scale, "scale", c.Scale, "pixel scale of the window or screenshot")
	fs.Uint32Var(&c.Foreground, "fg", c.Foreground, "foreground color as 0xRRGGBB")
	fs.Uint32Var(&c.Background, "bg", c.Background, "background color as 0xRRGGBB")
	fs.BoolVar(&c.Mute, "mute", c.Mute, "disable the sound timer tone")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed for the rand instruction, 0 picks one")
}

// BindExecFlags registers the flags of the headless exec command.
func (c *Config) BindExecFlags(fs *pflag.FlagSet) {
	fs.Uint64VarP(&c.Cycles, "cycles", "n", c.Cycles, "number of cycles to run, 0 runs until the program halts")
	fs.StringVarP(&c.Screenshot, "screenshot", "o", c.Screenshot, "write the final framebuffer to this PNG file")
}

// ApplyEnv fills values that were not set on the command line from the environment.
func (c *Config) ApplyEnv(fs *pflag.FlagSet, lookup func(string) (string, bool)) {
	if f := fs.Lookup("backend"); f != nil && f.Changed {
		return
	}

	if v, ok := lookup(EnvBackend); ok && v != "" {
		c.Backend = strings.ToLower(strings.TrimSpace(v))
	}
}

func (c Config) Validate() error {
	if !slices.Contains(Backends, c.Backend) {
		return fmt.Errorf("%w %q, expected one of %s", ErrUnknownBackend, c.Backend, strings.Join(Backends, ", "))
	}

	if c.Scale <= 0 {
		return fmt.Errorf("%w: scale must be positive, got %d", ErrInvalidValue, c.Scale)
	}

	if c.CycleDelay < 0 {
		return fmt.Errorf("%w: cycle delay must not be negative, got %s", ErrInvalidValue, c.CycleDelay)
	}

	if c.Foreground > 0xFFFFFF || c.Background > 0xFFFFFF {
		return fmt.Errorf("%w: colors are 24-bit 0xRRGGBB values", ErrInvalidValue)
	}

	return nil
}
