// Package beeper plays the sound timer tone through oto.
package beeper

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	SampleRate = 44100
	Frequency  = 440
	Duration   = 100 * time.Millisecond
	Volume     = 0.2
)

// Beeper is an io.Reader producing a square wave while a beep is pending and
// silence otherwise. oto pulls from it on its own goroutine.
type Beeper struct {
	ctx    *oto.Context
	player *oto.Player

	remaining atomic.Int64 // samples left in the current tone
	phase     int
	mutex     sync.Mutex
}

func New() (*Beeper, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready

	b := &Beeper{ctx: ctx}
	b.player = ctx.NewPlayer(b)
	b.player.Play()
	return b, nil
}

// Beep starts a tone of Duration. A beep during a running tone restarts it.
func (b *Beeper) Beep() {
	b.remaining.Store(int64(SampleRate * Duration / time.Second))
}

func (b *Beeper) Read(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	n := len(p) / 4
	b.fill(p[:n*4])
	return n * 4, nil
}

func (b *Beeper) fill(p []byte) {
	const halfPeriod = SampleRate / Frequency / 2

	for i := 0; i+4 <= len(p); i += 4 {
		sample := float32(0)
		if b.remaining.Load() > 0 {
			sample = Volume
			if (b.phase/halfPeriod)%2 == 1 {
				sample = -Volume
			}
			b.phase++
			b.remaining.Add(-1)
		} else {
			b.phase = 0
		}

		binary.LittleEndian.PutUint32(p[i:], math.Float32bits(sample))
	}
}

func (b *Beeper) Close() error {
	if b.player == nil {
		return nil
	}

	err := b.player.Close()
	b.player = nil
	return err
}
