// Package midi connects a MIDI input device to the engine, translating
// note-on/off and sustain pedal messages into engine calls. Everything else
// on the wire is ignored.
package midi

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const sustainPedalController = 64 // MIDI CC64, hold pedal

type (
	// Handler receives the decoded events; implemented by engine.Engine.
	Handler interface {
		NoteOn(note, velocity int)
		NoteOff(note int)
		SetSustainPedal(down bool)
	}

	Context struct {
		driver             *rtmididrv.Driver
		currentIn          drivers.In
		inputDevices       []Device
		devicesInitialized bool
		handler            Handler
	}

	Device struct {
		context *Context
		in      drivers.In
	}
)

// NewContext opens the MIDI driver. A failing driver is not an error; the
// context just has no input devices then.
func NewContext(handler Handler) *Context {
	c := &Context{handler: handler}
	c.driver, _ = rtmididrv.New()
	return c
}

func (c *Context) InputDevices(yield func(Device) bool) {
	if c.devicesInitialized {
		c.yieldCachedInputDevices(yield)
	} else {
		c.initInputDevices(yield)
	}
}

func (c *Context) yieldCachedInputDevices(yield func(Device) bool) {
	for _, device := range c.inputDevices {
		if !yield(device) {
			break
		}
	}
}

func (c *Context) initInputDevices(yield func(Device) bool) {
	if c.driver == nil {
		return
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return
	}
	for i := 0; i < len(ins); i++ {
		device := Device{context: c, in: ins[i]}
		c.inputDevices = append(c.inputDevices, device)
		if !yield(device) {
			break
		}
	}
	c.devicesInitialized = true
}

// Open an input device while closing the currently open one if necessary.
func (d Device) Open() error {
	if d.context.currentIn == d.in {
		return nil
	}
	if d.context.driver == nil {
		return errors.New("no driver available")
	}
	if d.context.HasDeviceOpen() {
		d.context.currentIn.Close()
	}
	d.context.currentIn = d.in
	if err := d.in.Open(); err != nil {
		d.context.currentIn = nil
		return fmt.Errorf("opening MIDI input failed: %w", err)
	}
	_, err := midi.ListenTo(d.in, d.context.handleMessage)
	if err != nil {
		d.in.Close()
		d.context.currentIn = nil
	}
	return err
}

func (d Device) String() string {
	return d.in.String()
}

// TryToOpenBy opens the first device whose name has the given prefix, or
// simply the first device when takeFirst is set.
func (c *Context) TryToOpenBy(namePrefix string, takeFirst bool) bool {
	if namePrefix == "" && !takeFirst {
		return false
	}
	opened := false
	c.InputDevices(func(device Device) bool {
		if takeFirst || strings.HasPrefix(device.String(), namePrefix) {
			opened = device.Open() == nil
			return false
		}
		return true
	})
	return opened
}

func (c *Context) HasDeviceOpen() bool {
	return c.currentIn != nil && c.currentIn.IsOpen()
}

func (c *Context) Close() {
	if c.driver == nil {
		return
	}
	if c.currentIn != nil && c.currentIn.IsOpen() {
		c.currentIn.Close()
	}
	c.driver.Close()
}

func (c *Context) handleMessage(msg midi.Message, timestampms int32) {
	var channel, key, velocity, controller, value uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		c.handler.NoteOn(int(key), int(velocity))
	case msg.GetNoteEnd(&channel, &key):
		c.handler.NoteOff(int(key))
	case msg.GetControlChange(&channel, &controller, &value):
		if controller == sustainPedalController {
			c.handler.SetSustainPedal(value >= 64)
		}
	}
}
