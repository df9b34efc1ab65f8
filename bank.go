package sfplay

type (
	// Bank is the parsed instrument/sample collection loaded from a
	// SoundFont-2 file. A Bank is immutable once parsed and is owned by the
	// engine instance that parsed it; nothing in this package mutates it
	// after sf2.Parse returns.
	Bank struct {
		Info        Info
		Samples     []Sample
		Presets     []Preset
		Instruments []Instrument
	}

	// Info is the metadata of a bank, from the INFO list of the file.
	Info struct {
		Name         string `yaml:",omitempty"`
		SoundEngine  string `yaml:",omitempty"`
		VersionMajor int
		VersionMinor int
	}

	// Sample is one sample header together with its decoded 16-bit PCM data.
	// Data slices into a block shared by all samples of the bank. OriginalPitch
	// is the MIDI note at which Data plays back at its authored pitch and
	// PitchCorrection is an additional per-sample tuning in cents.
	Sample struct {
		Name            string
		Data            []int16
		SampleRate      int
		OriginalPitch   int
		PitchCorrection int
		LoopStart       int
		LoopEnd         int
	}

	// Range is an inclusive key or velocity range of a zone.
	Range struct {
		Low  byte
		High byte
	}

	// Generators is the fixed set of generator values a zone can carry.
	// A nil field means the generator was not present in the zone. Pan is in
	// SoundFont units (-500 full left .. +500 full right), FineTune in cents
	// and Release in timecents.
	Generators struct {
		Pan      *int
		FineTune *int
		Release  *int
		SampleID *int
	}

	// Zone is a key/velocity-range-scoped set of generators selecting and
	// tuning a sample. Preset zones that referenced an instrument are expanded
	// by the parser, so after parsing every zone either carries a SampleID or
	// is inert.
	Zone struct {
		KeyRange Range
		VelRange Range
		Generators
	}

	// Preset is one playable program of the bank. The engine always plays the
	// first preset of the bank.
	Preset struct {
		Name   string
		Bank   int
		Number int
		Zones  []Zone
	}

	// Instrument is a named group of zones referenced by preset zones. The
	// parser inlines instrument zones into the presets, but the instruments
	// are kept for inspection.
	Instrument struct {
		Name  string
		Zones []Zone
	}
)

// FullRange is the default key/velocity range of a zone that does not carry
// the corresponding range generator.
var FullRange = Range{Low: 0, High: 127}

func (r Range) Contains(v int) bool {
	return v >= int(r.Low) && v <= int(r.High)
}

// Matches reports whether the zone applies to the given note and velocity.
func (z *Zone) Matches(note, velocity int) bool {
	return z.KeyRange.Contains(note) && z.VelRange.Contains(velocity)
}

// PanValue returns the pan generator in SoundFont units, 0 if unset.
func (z *Zone) PanValue() int {
	if z.Pan == nil {
		return 0
	}
	return *z.Pan
}

// FineTuneCents returns the fine tune generator in cents, 0 if unset.
func (z *Zone) FineTuneCents() int {
	if z.FineTune == nil {
		return 0
	}
	return *z.FineTune
}

func (z *Zone) Copy() Zone {
	ret := *z
	ret.Pan = copyIntPtr(z.Pan)
	ret.FineTune = copyIntPtr(z.FineTune)
	ret.Release = copyIntPtr(z.Release)
	ret.SampleID = copyIntPtr(z.SampleID)
	return ret
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ZonesForNote returns the zones of the first preset matching the note and
// velocity. The returned slice aliases the bank and must not be mutated.
func (b *Bank) ZonesForNote(note, velocity int) []Zone {
	if len(b.Presets) == 0 {
		return nil
	}
	var ret []Zone
	for i, z := range b.Presets[0].Zones {
		if z.SampleID != nil && z.Matches(note, velocity) {
			ret = append(ret, b.Presets[0].Zones[i])
		}
	}
	return ret
}

// SampleForZone resolves the zone's sample reference, returning nil when the
// zone carries no sample id or the id is out of range.
func (b *Bank) SampleForZone(z *Zone) *Sample {
	if z.SampleID == nil || *z.SampleID < 0 || *z.SampleID >= len(b.Samples) {
		return nil
	}
	return &b.Samples[*z.SampleID]
}
