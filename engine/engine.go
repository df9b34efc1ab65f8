// Package engine implements the sample playback engine: pitch and envelope
// calculation, the decoded-sample cache, stereo voice realization and the
// voice scheduler with polyphony enforcement, sustain pedal semantics and
// voice stealing.
package engine

import (
	"errors"
	"log"
	"sync"

	"github.com/hvirtane/sfplay"
	"github.com/hvirtane/sfplay/sf2"
)

const (
	DefaultSampleRate    = 44100
	DefaultMaxPolyphony  = 64
	DefaultCacheCapacity = 150

	// Playable key range of the engine; events outside it are rejected with
	// a warning, not an error.
	NoteMin = 21
	NoteMax = 108
)

const (
	// Gains below nearSilentGain release with a short linear ramp instead of
	// an audible exponential tail.
	nearSilentGain = 0.001
	// Exponential release decays towards this epsilon rather than zero.
	releaseEpsilon = 0.0005

	retriggerFadeSeconds = 0.02
	fastReleaseSeconds   = 0.01
	// Sources are stopped this long after the computed release completes.
	stopMarginSeconds = 0.1
)

type (
	// Config carries the tunables of an engine instance. The zero value gets
	// all defaults.
	Config struct {
		SampleRate    int `yaml:"samplerate,omitempty"`
		MaxPolyphony  int `yaml:"maxpolyphony,omitempty"`
		CacheCapacity int `yaml:"cachecapacity,omitempty"`
		MasterVolume  int `yaml:"mastervolume,omitempty"` // percent, 0..100
	}

	// Stats is a snapshot of the scheduler state.
	Stats struct {
		ActiveVoiceCount   int
		SustainedNoteCount int
		PedalDown          bool
		MaxPolyphony       int
	}

	// Engine owns the bank it plays, its sample cache and its voice
	// registry by composition; callers construct and close an engine value
	// with a clear lifetime. Control-plane methods (note on/off, pedal,
	// panic) and Render synchronize on one mutex: the registry has exactly
	// one logical writer, and the render goroutine advances the engine's
	// sample clock that all scheduling is expressed in.
	Engine struct {
		mu        sync.Mutex
		bank      *sfplay.Bank
		cfg       Config
		cache     *Cache
		logger    *log.Logger
		clock     int64
		reg       *registry
		sustained map[int]bool
		pedalDown bool
		master    float32
		events    chan Event
		closed    bool
	}
)

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.MaxPolyphony <= 0 {
		c.MaxPolyphony = DefaultMaxPolyphony
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
	if c.MasterVolume <= 0 {
		c.MasterVolume = 100
	}
	return c
}

// New creates an engine playing the given bank. The bank must not be
// mutated after this call.
func New(bank *sfplay.Bank, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		bank:      bank,
		cfg:       cfg,
		cache:     NewCache(bank, cfg.CacheCapacity),
		logger:    log.Default(),
		reg:       newRegistry(),
		sustained: make(map[int]bool),
		events:    make(chan Event, 256),
	}
	e.master = float32(cfg.MasterVolume) / 100
	return e
}

// Load parses a SoundFont-2 bank and builds an engine around it. The error
// is a *sf2.FormatError when the bank is structurally unusable.
func Load(bankBytes []byte, cfg Config) (*Engine, error) {
	bank, err := sf2.Parse(bankBytes)
	if err != nil {
		return nil, err
	}
	return New(bank, cfg), nil
}

// SetLogger redirects the engine's warnings. Must be called before the
// engine is in use.
func (e *Engine) SetLogger(logger *log.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Bank returns the bank the engine plays.
func (e *Engine) Bank() *sfplay.Bank {
	return e.bank
}

// NoteOn starts a voice for the note. Out-of-range note or velocity is
// rejected with a warning and no playback. Retriggering a note that already
// has live voices fades the old voices out over 20ms instead of cutting
// them, then starts a fresh voice. Realization failures (no stereo pair, no
// sample) silence this note only and never affect other voices.
func (e *Engine) NoteOn(note, velocity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if note < NoteMin || note > NoteMax {
		e.logger.Printf("engine: note %d outside playable range [%d,%d]; ignoring", note, NoteMin, NoteMax)
		return
	}
	if velocity < 0 || velocity > 127 {
		e.logger.Printf("engine: velocity %d outside [0,127]; ignoring note %d", velocity, note)
		return
	}
	zones := e.bank.ZonesForNote(note, velocity)
	if len(zones) == 0 {
		e.logger.Printf("engine: no zone matches note %d velocity %d; note will not sound", note, velocity)
		return
	}
	// The key is physically down again, so a release deferred into the
	// sustain set no longer applies to it.
	delete(e.sustained, note)
	for _, old := range e.reg.forNote(note) {
		e.fadeOut(old)
	}
	if e.reg.total() >= e.cfg.MaxPolyphony {
		e.stealOne()
	}
	voice, err := e.realizeStereo(note, velocity, zones, e.clock)
	if errors.Is(err, ErrMissingPair) {
		voice, err = e.realizeMono(note, velocity, zones, e.clock)
	}
	if err != nil {
		e.logger.Printf("engine: could not realize voice for note %d: %v", note, err)
		return
	}
	e.reg.add(voice)
	e.publish(VoiceStarted, voice)
}

// NoteOff releases the note's voices, or defers the release into the
// sustain set while the pedal is down.
func (e *Engine) NoteOff(note int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	voices := e.reg.forNote(note)
	if len(voices) == 0 {
		return
	}
	if e.pedalDown {
		e.sustained[note] = true
		return
	}
	for _, v := range voices {
		e.releaseVoice(v)
	}
}

// SetSustainPedal sets the pedal state. Lifting the pedal releases every
// sustained note and clears the sustain set.
func (e *Engine) SetSustainPedal(down bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || down == e.pedalDown {
		return
	}
	e.pedalDown = down
	if down {
		return
	}
	for _, v := range e.reg.voices {
		if e.sustained[v.Note] {
			e.releaseVoice(v)
		}
	}
	e.sustained = make(map[int]bool)
}

// AllNotesOff releases every held note, sustained ones included, in
// registry order. Musical releases still apply, unlike Panic.
func (e *Engine) AllNotesOff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, v := range e.reg.voices {
		e.releaseVoice(v)
	}
	e.sustained = make(map[int]bool)
}

// Panic stops every voice immediately without fade and clears all
// registries. Emergency silence, not a musical release.
func (e *Engine) Panic() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range e.reg.voices {
		v.stop()
	}
	e.reg.clear()
	e.sustained = make(map[int]bool)
}

// SetMasterVolume sets the output gain as a percentage, clamped to [0,100].
func (e *Engine) SetMasterVolume(percent int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	e.master = float32(percent) / 100
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		ActiveVoiceCount:   e.reg.total(),
		SustainedNoteCount: len(e.sustained),
		PedalDown:          e.pedalDown,
		MaxPolyphony:       e.cfg.MaxPolyphony,
	}
}

func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// PreloadPreset eagerly materializes every sample the first preset
// references, so the first notes do not pay the decode cost.
func (e *Engine) PreloadPreset() {
	if len(e.bank.Presets) == 0 {
		return
	}
	var ids []int
	seen := make(map[int]bool)
	for _, z := range e.bank.Presets[0].Zones {
		if z.SampleID != nil && !seen[*z.SampleID] {
			seen[*z.SampleID] = true
			ids = append(ids, *z.SampleID)
		}
	}
	e.cache.Preload(ids)
}

// Close stops all voices and marks the engine unusable. Closing twice is
// benign.
func (e *Engine) Close() {
	e.Panic()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Render mixes all live voices into the buffer and advances the engine
// clock. It overwrites the buffer. Voices that finish, hit their scheduled
// stop or were stopped during the pass are reaped afterwards: removed from
// the registry, their note dropped from the sustain set when it was the
// note's last voice.
func (e *Engine) Render(buffer sfplay.AudioBuffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range buffer {
		frame := e.clock + int64(i)
		var l, r float32
		for _, v := range e.reg.voices {
			vl, vr, _ := v.renderFrame(frame)
			l += vl
			r += vr
		}
		buffer[i][0] = l * e.master
		buffer[i][1] = r * e.master
	}
	e.clock += int64(len(buffer))
	e.reap()
}

func (e *Engine) reap() {
	for _, v := range append([]*Voice(nil), e.reg.voices...) {
		if v.state != StateStopped {
			continue
		}
		e.removeVoice(v)
		e.publish(VoiceFinished, v)
	}
}

// removeVoice takes the voice out of the registry and releases everything
// it holds; the note leaves the sustain set when this was its last voice.
func (e *Engine) removeVoice(v *Voice) {
	e.reg.remove(v)
	if len(e.reg.forNote(v.Note)) == 0 {
		delete(e.sustained, v.Note)
	}
	v.stop()
}

// releaseVoice transitions the voice to Releasing exactly once: pending gain
// automation is cancelled and replaced by a 10ms linear ramp when the voice
// is already near silent, or an exponential decay over the release duration
// of the voice's first zone. The source is scheduled to stop 0.1s after the
// release completes, so a voice can never linger as a leak.
func (e *Engine) releaseVoice(v *Voice) {
	if v.releasing || v.state == StateStopped {
		return
	}
	v.releasing = true
	v.state = StateReleasing
	g := v.gainAt(e.clock)
	var frames int64
	if g <= nearSilentGain {
		frames = e.secondsToFrames(fastReleaseSeconds)
		v.setRamp(e.clock, g, 0, frames, false)
	} else {
		frames = e.secondsToFrames(ReleaseSeconds(v.releaseTimecents))
		v.setRamp(e.clock, g, releaseEpsilon, frames, true)
	}
	v.stopFrame = e.clock + frames + e.secondsToFrames(stopMarginSeconds)
	e.publish(VoiceReleased, v)
}

// fadeOut schedules a short linear fade to silence, used when a note is
// retriggered while still sounding; cutting the old voice outright would
// click.
func (e *Engine) fadeOut(v *Voice) {
	if v.state == StateStopped {
		return
	}
	g := v.gainAt(e.clock)
	frames := e.secondsToFrames(retriggerFadeSeconds)
	v.setRamp(e.clock, g, 0, frames, false)
	v.stopFrame = e.clock + frames
	if !v.releasing {
		v.releasing = true
		v.state = StateReleasing
	}
}

// stealOne stops and removes the single lowest-priority voice across the
// whole registry. There is no partial or batch stealing.
func (e *Engine) stealOne() {
	var victim *Voice
	best := 0.0
	for _, v := range e.reg.voices {
		p := v.stealPriority(e.clock, e.cfg.SampleRate)
		if victim == nil || p < best {
			victim = v
			best = p
		}
	}
	if victim == nil {
		return
	}
	e.removeVoice(victim)
	e.publish(VoiceStolen, victim)
}

func (e *Engine) secondsToFrames(seconds float64) int64 {
	return int64(seconds * float64(e.cfg.SampleRate))
}
