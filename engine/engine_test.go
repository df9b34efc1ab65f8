package engine

import (
	"errors"
	"io"
	"log"
	"math"
	"testing"

	"github.com/hvirtane/sfplay"
)

// stereoBank builds an in-memory bank with one stereo-paired preset covering
// the full key range. The left sample holds a positive constant, the right a
// negative one, so channel routing shows up in the rendered signs.
func stereoBank() *sfplay.Bank {
	left := make([]int16, 44100)
	right := make([]int16, 44100)
	for i := range left {
		left[i] = 8000
		right[i] = -8000
	}
	return &sfplay.Bank{
		Samples: []sfplay.Sample{
			{Name: "test-L", Data: left, SampleRate: 44100, OriginalPitch: 60},
			{Name: "test-R", Data: right, SampleRate: 44100, OriginalPitch: 60},
		},
		Presets: []sfplay.Preset{{
			Name: "Test",
			Zones: []sfplay.Zone{
				{KeyRange: sfplay.FullRange, VelRange: sfplay.FullRange, Generators: sfplay.Generators{Pan: intp(-500), SampleID: intp(0)}},
				{KeyRange: sfplay.FullRange, VelRange: sfplay.FullRange, Generators: sfplay.Generators{Pan: intp(500), SampleID: intp(1)}},
			},
		}},
	}
}

func quietEngine(bank *sfplay.Bank, cfg Config) *Engine {
	e := New(bank, cfg)
	e.SetLogger(log.New(io.Discard, "", 0))
	return e
}

func drainEvents(e *Engine) []Event {
	var events []Event
	for {
		select {
		case ev := <-e.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func renderFrames(e *Engine, frames int) {
	buffer := make(sfplay.AudioBuffer, 512)
	for frames > 0 {
		n := len(buffer)
		if frames < n {
			n = frames
		}
		e.Render(buffer[:n])
		frames -= n
	}
}

func TestNoteOnStartsStereoVoice(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(60, 100)
	if got := e.Stats().ActiveVoiceCount; got != 1 {
		t.Fatalf("ActiveVoiceCount = %d, want 1", got)
	}
	v := e.reg.voices[0]
	if v.right == nil {
		t.Error("voice should be a stereo pair")
	}
	if v.rate != 1.0 {
		t.Errorf("rate = %v, want 1.0 at the sample's original pitch", v.rate)
	}
	if v.gain != velocityGain(100) {
		t.Errorf("gain = %v, want %v", v.gain, velocityGain(100))
	}
	events := drainEvents(e)
	if len(events) != 1 || events[0].Kind != VoiceStarted || events[0].Note != 60 {
		t.Errorf("events = %+v, want one VoiceStarted for note 60", events)
	}
}

func TestNoteOnRejectsOutOfRange(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(20, 100)  // below A0
	e.NoteOn(109, 100) // above C8
	e.NoteOn(60, -1)
	e.NoteOn(60, 128)
	if got := e.Stats().ActiveVoiceCount; got != 0 {
		t.Errorf("ActiveVoiceCount = %d, want 0 after rejected notes", got)
	}
	if events := drainEvents(e); len(events) != 0 {
		t.Errorf("rejected notes published events: %+v", events)
	}
}

func TestNoteOnNoMatchingZone(t *testing.T) {
	bank := stereoBank()
	for i := range bank.Presets[0].Zones {
		bank.Presets[0].Zones[i].KeyRange = sfplay.Range{Low: 60, High: 60}
	}
	e := quietEngine(bank, Config{})
	e.NoteOn(61, 100)
	if got := e.Stats().ActiveVoiceCount; got != 0 {
		t.Errorf("ActiveVoiceCount = %d, want 0 when no zone matches", got)
	}
}

func TestRenderRoutesChannels(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(60, 127)
	buffer := make(sfplay.AudioBuffer, 64)
	e.Render(buffer)
	wantLeft := 8000.0 / 32768
	if math.Abs(float64(buffer[0][0])-wantLeft) > 1e-5 {
		t.Errorf("left = %v, want %v", buffer[0][0], wantLeft)
	}
	if math.Abs(float64(buffer[0][1])+wantLeft) > 1e-5 {
		t.Errorf("right = %v, want %v", buffer[0][1], -wantLeft)
	}
}

func TestMasterVolume(t *testing.T) {
	e := quietEngine(stereoBank(), Config{MasterVolume: 50})
	e.NoteOn(60, 127)
	buffer := make(sfplay.AudioBuffer, 16)
	e.Render(buffer)
	want := 0.5 * 8000.0 / 32768
	if math.Abs(float64(buffer[0][0])-want) > 1e-5 {
		t.Errorf("left at 50%% volume = %v, want %v", buffer[0][0], want)
	}
	e.SetMasterVolume(0)
	e.Render(buffer)
	if buffer[0][0] != 0 || buffer[0][1] != 0 {
		t.Errorf("muted output = %v/%v, want silence", buffer[0][0], buffer[0][1])
	}
	e.SetMasterVolume(200) // clamped to 100
	e.Render(buffer)
	want = 8000.0 / 32768
	if math.Abs(float64(buffer[0][0])-want) > 1e-5 {
		t.Errorf("left at clamped volume = %v, want %v", buffer[0][0], want)
	}
}

func TestRetriggerFadesOldVoice(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(60, 100)
	e.NoteOn(60, 90)
	voices := e.reg.forNote(60)
	if len(voices) != 2 {
		t.Fatalf("len(forNote) = %d, want the fading old voice plus the new one", len(voices))
	}
	old, fresh := voices[0], voices[1]
	if !old.releasing || old.stopFrame < 0 {
		t.Error("old voice should be fading towards a scheduled stop")
	}
	if fresh.releasing {
		t.Error("fresh voice should not be releasing")
	}
	// The fade is 20ms; well past it only the fresh voice remains.
	renderFrames(e, 2048)
	if got := e.Stats().ActiveVoiceCount; got != 1 {
		t.Errorf("ActiveVoiceCount after the fade = %d, want 1", got)
	}
	if e.reg.voices[0] != fresh {
		t.Error("surviving voice is not the retriggered one")
	}
}

func TestPolyphonyStealsLowestVelocity(t *testing.T) {
	e := quietEngine(stereoBank(), Config{MaxPolyphony: 2})
	e.NoteOn(60, 100)
	e.NoteOn(62, 50)
	e.NoteOn(64, 120)
	if got := e.Stats().ActiveVoiceCount; got != 2 {
		t.Fatalf("ActiveVoiceCount = %d, want 2", got)
	}
	if len(e.reg.forNote(62)) != 0 {
		t.Error("note 62 had the lowest velocity and should have been stolen")
	}
	var stolen []Event
	for _, ev := range drainEvents(e) {
		if ev.Kind == VoiceStolen {
			stolen = append(stolen, ev)
		}
	}
	if len(stolen) != 1 || stolen[0].Note != 62 {
		t.Errorf("stolen events = %+v, want exactly one for note 62", stolen)
	}
}

func TestPolyphonyStealsReleasingFirst(t *testing.T) {
	e := quietEngine(stereoBank(), Config{MaxPolyphony: 2})
	e.NoteOn(60, 127)
	e.NoteOn(62, 10)
	e.NoteOff(60) // releasing, despite the highest velocity
	e.NoteOn(64, 1)
	if len(e.reg.forNote(60)) != 0 {
		t.Error("the releasing voice should be stolen before any held one")
	}
	if len(e.reg.forNote(62)) != 1 || len(e.reg.forNote(64)) != 1 {
		t.Error("held voices should survive the steal")
	}
}

func TestNoteOffStartsRelease(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(60, 100)
	v := e.reg.voices[0]
	e.NoteOff(60)
	if !v.releasing || v.state != StateReleasing {
		t.Fatal("voice should be releasing after NoteOff")
	}
	if v.ramp == nil || !v.ramp.exponential {
		t.Error("an audible voice should release exponentially")
	}
	// Default release is 0.2s plus the 0.1s stop margin.
	wantStop := v.ramp.start + e.secondsToFrames(0.2) + e.secondsToFrames(stopMarginSeconds)
	if v.stopFrame != wantStop {
		t.Errorf("stopFrame = %d, want %d", v.stopFrame, wantStop)
	}
}

func TestNoteOffNearSilentReleasesLinearly(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(60, 100)
	v := e.reg.voices[0]
	v.gain = nearSilentGain / 2
	e.NoteOff(60)
	if v.ramp == nil || v.ramp.exponential {
		t.Fatal("a near-silent voice should release with a linear ramp")
	}
	if got := v.ramp.end - v.ramp.start; got != e.secondsToFrames(fastReleaseSeconds) {
		t.Errorf("ramp length = %d frames, want %d", got, e.secondsToFrames(fastReleaseSeconds))
	}
}

func TestReleasedVoiceIsReaped(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(60, 100)
	e.NoteOff(60)
	// Past release (0.2s) plus the stop margin (0.1s).
	renderFrames(e, e.cfg.SampleRate/2)
	if got := e.Stats().ActiveVoiceCount; got != 0 {
		t.Fatalf("ActiveVoiceCount = %d, want 0 after the release ran out", got)
	}
	var finished int
	for _, ev := range drainEvents(e) {
		if ev.Kind == VoiceFinished && ev.Note == 60 {
			finished++
		}
	}
	if finished != 1 {
		t.Errorf("VoiceFinished events = %d, want 1", finished)
	}
}

func TestSustainPedalDefersRelease(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.SetSustainPedal(true)
	e.NoteOn(64, 100)
	e.NoteOff(64)
	v := e.reg.voices[0]
	if v.releasing {
		t.Fatal("NoteOff under the pedal must not release the voice")
	}
	stats := e.Stats()
	if stats.SustainedNoteCount != 1 || !stats.PedalDown {
		t.Fatalf("stats = %+v, want one sustained note and the pedal down", stats)
	}
	e.SetSustainPedal(false)
	if !v.releasing {
		t.Error("lifting the pedal must release the sustained voice")
	}
	stats = e.Stats()
	if stats.SustainedNoteCount != 0 || stats.PedalDown {
		t.Errorf("stats after pedal up = %+v, want an empty sustain set", stats)
	}
}

func TestSustainedNoteRetrigger(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.SetSustainPedal(true)
	e.NoteOn(60, 100)
	e.NoteOff(60) // deferred into the sustain set
	e.NoteOn(60, 90)
	if got := e.Stats().SustainedNoteCount; got != 0 {
		t.Fatalf("SustainedNoteCount = %d, want 0 while the key is held again", got)
	}
	// Past the retrigger fade only the fresh voice remains.
	renderFrames(e, 2048)
	voices := e.reg.forNote(60)
	if len(voices) != 1 {
		t.Fatalf("len(forNote) = %d, want 1 after the fade", len(voices))
	}
	e.SetSustainPedal(false)
	if voices[0].releasing {
		t.Error("lifting the pedal released a note that is still held on the keyboard")
	}
}

func TestSustainPedalHeldNoteUnaffected(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.SetSustainPedal(true)
	e.NoteOn(64, 100) // never gets a NoteOff
	e.SetSustainPedal(false)
	if e.reg.voices[0].releasing {
		t.Error("a note still held on the keyboard must survive the pedal lift")
	}
}

func TestAllNotesOff(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(60, 100)
	e.NoteOn(64, 100)
	e.SetSustainPedal(true)
	e.NoteOn(67, 100)
	e.NoteOff(67)
	e.AllNotesOff()
	for _, v := range e.reg.voices {
		if !v.releasing {
			t.Errorf("note %d not releasing after AllNotesOff", v.Note)
		}
	}
	if got := e.Stats().SustainedNoteCount; got != 0 {
		t.Errorf("SustainedNoteCount = %d, want 0", got)
	}
}

func TestPanicStopsImmediately(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(60, 100)
	e.NoteOn(64, 100)
	e.Panic()
	if got := e.Stats().ActiveVoiceCount; got != 0 {
		t.Fatalf("ActiveVoiceCount = %d, want 0 right after Panic", got)
	}
	buffer := make(sfplay.AudioBuffer, 16)
	e.Render(buffer)
	if buffer[0][0] != 0 || buffer[0][1] != 0 {
		t.Error("output should be silent after Panic")
	}
}

func TestRealizeStereoMissingPair(t *testing.T) {
	bank := stereoBank()
	bank.Presets[0].Zones = bank.Presets[0].Zones[:1] // left only
	e := quietEngine(bank, Config{})
	zones := bank.ZonesForNote(60, 100)
	v, err := e.realizeStereo(60, 100, zones, 0)
	if !errors.Is(err, ErrMissingPair) {
		t.Fatalf("realizeStereo = %v, want ErrMissingPair", err)
	}
	if v != nil {
		t.Error("no voice should be produced without a stereo pair")
	}
}

func TestNoteOnFallsBackToMono(t *testing.T) {
	bank := stereoBank()
	bank.Presets[0].Zones = bank.Presets[0].Zones[:1]
	e := quietEngine(bank, Config{})
	e.NoteOn(60, 100)
	if got := e.Stats().ActiveVoiceCount; got != 1 {
		t.Fatalf("ActiveVoiceCount = %d, want 1 mono fallback voice", got)
	}
	v := e.reg.voices[0]
	if v.right != nil {
		t.Error("fallback voice should be mono")
	}
	buffer := make(sfplay.AudioBuffer, 8)
	e.Render(buffer)
	if buffer[0][0] != buffer[0][1] {
		t.Errorf("mono voice should play centered, got %v/%v", buffer[0][0], buffer[0][1])
	}
}

func TestCacheFillsLazily(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	if got := e.CacheStats().ResidentCount; got != 0 {
		t.Fatalf("ResidentCount after construction = %d, want 0", got)
	}
	e.NoteOn(60, 100)
	if got := e.CacheStats().ResidentCount; got != 2 {
		t.Errorf("ResidentCount after one stereo note = %d, want 2", got)
	}
}

func TestPreloadPreset(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.PreloadPreset()
	if got := e.CacheStats().ResidentCount; got != 2 {
		t.Errorf("ResidentCount after PreloadPreset = %d, want 2", got)
	}
}

func TestClosedEngineIgnoresNotes(t *testing.T) {
	e := quietEngine(stereoBank(), Config{})
	e.NoteOn(60, 100)
	e.Close()
	if got := e.Stats().ActiveVoiceCount; got != 0 {
		t.Fatalf("Close should stop all voices, got %d", got)
	}
	e.NoteOn(64, 100)
	if got := e.Stats().ActiveVoiceCount; got != 0 {
		t.Errorf("a closed engine accepted a note")
	}
	e.Close() // closing twice is benign
}

func TestVoiceEndsAtSampleEnd(t *testing.T) {
	bank := stereoBank()
	short := make([]int16, 256)
	for i := range short {
		short[i] = 8000
	}
	bank.Samples[0].Data = short
	bank.Samples[1].Data = short
	e := quietEngine(bank, Config{})
	e.NoteOn(60, 100)
	renderFrames(e, 512)
	if got := e.Stats().ActiveVoiceCount; got != 0 {
		t.Errorf("ActiveVoiceCount = %d, want 0 once the sample data ran out", got)
	}
}
