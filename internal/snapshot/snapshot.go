// Package snapshot renders the machine framebuffer into PNG images.
package snapshot

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/kapitanov/chip8emu/internal/vm"
	xdraw "golang.org/x/image/draw"
)

// RGB converts a 0xRRGGBB value into an opaque color.
func RGB(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}

// Image returns the framebuffer at its native 64x32 resolution.
func Image(gfx *vm.Framebuffer, fg, bg color.Color) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, vm.ScreenWidth, vm.ScreenHeight), color.Palette{bg, fg})

	for y := 0; y < vm.ScreenHeight; y++ {
		for x := 0; x < vm.ScreenWidth; x++ {
			if gfx[y][x] {
				img.SetColorIndex(x, y, 1)
			}
		}
	}

	return img
}

// Scaled returns the framebuffer enlarged by an integer factor with hard pixel edges.
func Scaled(gfx *vm.Framebuffer, scale int, fg, bg color.Color) *image.RGBA {
	if scale < 1 {
		scale = 1
	}

	src := Image(gfx, fg, bg)
	dst := image.NewRGBA(image.Rect(0, 0, vm.ScreenWidth*scale, vm.ScreenHeight*scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

func Encode(w io.Writer, gfx *vm.Framebuffer, scale int, fg, bg color.Color) error {
	if err := png.Encode(w, Scaled(gfx, scale, fg, bg)); err != nil {
		return fmt.Errorf("unable to encode png: %w", err)
	}
	return nil
}

func WriteFile(path string, gfx *vm.Framebuffer, scale int, fg, bg color.Color) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %q: %w", path, err)
	}

	if err := Encode(f, gfx, scale, fg, bg); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
