package beeper

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func sampleAt(p []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
}

func TestReadSilenceWithoutBeep(t *testing.T) {
	b := &Beeper{}

	p := make([]byte, 64)
	n, err := b.Read(p)
	assert.NoError(t, err)
	assert.Equal(t, 64, n)

	for i := 0; i < 16; i++ {
		assert.Equal(t, float32(0), sampleAt(p, i))
	}
}

func TestReadSquareWave(t *testing.T) {
	b := &Beeper{}
	b.Beep()

	const halfPeriod = SampleRate / Frequency / 2
	p := make([]byte, 4*2*halfPeriod)
	n, err := b.Read(p)
	assert.NoError(t, err)
	assert.Equal(t, len(p), n)

	assert.Equal(t, float32(Volume), sampleAt(p, 0))
	assert.Equal(t, float32(Volume), sampleAt(p, halfPeriod-1))
	assert.Equal(t, float32(-Volume), sampleAt(p, halfPeriod))
	assert.Equal(t, float32(-Volume), sampleAt(p, 2*halfPeriod-1))
}

func TestToneEnds(t *testing.T) {
	b := &Beeper{}
	b.Beep()
	total := int(b.remaining.Load())

	p := make([]byte, 4*(total+8))
	_, err := b.Read(p)
	assert.NoError(t, err)

	assert.True(t, sampleAt(p, total-1) != 0)
	assert.Equal(t, float32(0), sampleAt(p, total))
	assert.Equal(t, int64(0), b.remaining.Load())
}

func TestReadIgnoresPartialSample(t *testing.T) {
	b := &Beeper{}

	n, err := b.Read(make([]byte, 7))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCloseWithoutPlayer(t *testing.T) {
	b := &Beeper{}
	assert.NoError(t, b.Close())
}
