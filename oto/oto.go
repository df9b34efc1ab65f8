// Package oto wraps ebitengine/oto v3 as an sfplay.AudioContext.
package oto

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hvirtane/sfplay"
)

type (
	Context struct {
		context *oto.Context
	}

	playerWaiter struct {
		player *oto.Player
	}
)

// NewContext initializes the audio device for float32 LE stereo output at
// the given sample rate and blocks until the device is ready.
func NewContext(sampleRate int) (*Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	}
	context, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{context: context}, nil
}

// Play starts playing the float32 LE stereo stream from r.
func (c *Context) Play(r io.Reader) sfplay.CloserWaiter {
	player := c.context.NewPlayer(r)
	player.Play()
	return &playerWaiter{player: player}
}

// Close suspends the device. oto v3 contexts cannot be torn down, so a
// suspended context is the closest equivalent; any error from the device is
// reported.
func (c *Context) Close() error {
	if err := c.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

func (p *playerWaiter) Close() error {
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

// Wait blocks until the player has drained its stream.
func (p *playerWaiter) Wait() {
	for p.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
}
