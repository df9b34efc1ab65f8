package sfplay

import (
	"encoding/binary"
	"io"
	"math"
)

type (
	// AudioBuffer is a buffer of stereo audio samples of the form
	// [][2]float32{{left1, right1}, {left2, right2}, ...}.
	AudioBuffer [][2]float32

	// AudioContext is the audio output device abstraction. Play starts
	// playing a float32 LE interleaved stereo stream from the reader and
	// returns a CloserWaiter to wait for the stream to finish or to stop it
	// early.
	AudioContext interface {
		Play(r io.Reader) CloserWaiter
		Close() error
	}

	CloserWaiter interface {
		Close() error
		Wait()
	}

	// Renderer renders audio into a buffer; implemented by engine.Engine.
	// Render is called from the audio goroutine, never from control code.
	Renderer interface {
		Render(buffer AudioBuffer)
	}
)

// Source returns an io.Reader that reads the buffer as interleaved float32 LE
// bytes, suitable for AudioContext.Play.
func (buffer AudioBuffer) Source() io.Reader {
	return &bufferSource{buffer: buffer}
}

type bufferSource struct {
	buffer AudioBuffer
	frame  int // next frame to serialize
	tmp    [8]byte
	tmpLen int // unread bytes of a partially consumed frame
}

func (s *bufferSource) Read(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if s.tmpLen == 0 {
			if s.frame >= len(s.buffer) {
				if total == 0 {
					return 0, io.EOF
				}
				return total, nil
			}
			binary.LittleEndian.PutUint32(s.tmp[0:], math.Float32bits(s.buffer[s.frame][0]))
			binary.LittleEndian.PutUint32(s.tmp[4:], math.Float32bits(s.buffer[s.frame][1]))
			s.tmpLen = 8
			s.frame++
		}
		n := copy(p, s.tmp[8-s.tmpLen:])
		s.tmpLen -= n
		p = p[n:]
		total += n
	}
	return total, nil
}

// RenderSource returns an endless io.Reader that pulls audio from the
// renderer in blocks of blockFrames frames and serializes it as interleaved
// float32 LE, for feeding a real-time output.
func RenderSource(r Renderer, blockFrames int) io.Reader {
	if blockFrames <= 0 {
		blockFrames = 512
	}
	return &renderSource{renderer: r, block: make(AudioBuffer, blockFrames)}
}

type renderSource struct {
	renderer Renderer
	block    AudioBuffer
	pending  []byte
}

func (s *renderSource) Read(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if len(s.pending) == 0 {
			for i := range s.block {
				s.block[i] = [2]float32{}
			}
			s.renderer.Render(s.block)
			if cap(s.pending) < len(s.block)*8 {
				s.pending = make([]byte, len(s.block)*8)
			}
			s.pending = s.pending[:len(s.block)*8]
			for i, frame := range s.block {
				binary.LittleEndian.PutUint32(s.pending[i*8:], math.Float32bits(frame[0]))
				binary.LittleEndian.PutUint32(s.pending[i*8+4:], math.Float32bits(frame[1]))
			}
		}
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		p = p[n:]
		total += n
	}
	return total, nil
}
