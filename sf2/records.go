package sf2

import (
	"encoding/binary"
	"log"

	"github.com/hvirtane/sfplay"
)

// Record widths of the fixed-width pdta sub-chunks, from the SoundFont-2
// specification.
const (
	presetHeaderSize = 38
	instHeaderSize   = 22
	bagSize          = 4
	generatorSize    = 4
	sampleHeaderSize = 46
)

// Generator operators. Only the six named ones are interpreted; unknown
// operators are consumed but ignored.
const (
	genPan           = 17
	genReleaseVolEnv = 38
	genInstrument    = 41
	genKeyRange      = 43
	genVelRange      = 44
	genFineTune      = 52
	genSampleID      = 53
)

type pdtaChunkSet struct {
	phdr []byte
	pbag []byte
	pgen []byte
	inst []byte
	ibag []byte
	igen []byte
	shdr []byte
}

// pdtaChunks walks the pdta list and collects the seven mandatory sub-chunks,
// failing with a FormatError if any is absent. pmod and imod are consumed to
// keep the stream aligned but not kept.
func pdtaChunks(data []byte) (*pdtaChunkSet, error) {
	var set pdtaChunkSet
	offset := 0
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		if size < 0 || offset+8+size > len(data) {
			return nil, formatErrorf("pdta chunk %q of size %d overruns the list", id, size)
		}
		body := data[offset+8 : offset+8+size]
		switch id {
		case "phdr":
			set.phdr = body
		case "pbag":
			set.pbag = body
		case "pgen":
			set.pgen = body
		case "inst":
			set.inst = body
		case "ibag":
			set.ibag = body
		case "igen":
			set.igen = body
		case "shdr":
			set.shdr = body
		}
		offset += 8 + size
	}
	for _, c := range []struct {
		name string
		data []byte
	}{
		{"phdr", set.phdr}, {"pbag", set.pbag}, {"pgen", set.pgen},
		{"inst", set.inst}, {"ibag", set.ibag}, {"igen", set.igen},
		{"shdr", set.shdr},
	} {
		if c.data == nil {
			return nil, formatErrorf("missing mandatory pdta sub-chunk %q", c.name)
		}
	}
	return &set, nil
}

// parseSampleHeaders decodes the 46-byte shdr records and extracts each
// sample's slice of the shared PCM block. Out-of-range offsets degrade to an
// empty, silent sample instead of failing the whole bank. The last record is
// the EOS terminator and is excluded.
func parseSampleHeaders(shdr []byte, pcm []int16, logger *log.Logger) []sfplay.Sample {
	count := len(shdr) / sampleHeaderSize
	if count < 1 {
		return nil
	}
	samples := make([]sfplay.Sample, 0, count-1)
	for i := 0; i < count-1; i++ {
		rec := shdr[i*sampleHeaderSize:]
		sample := sfplay.Sample{
			Name:            zeroTerminated(rec[0:20]),
			SampleRate:      int(binary.LittleEndian.Uint32(rec[36:40])),
			OriginalPitch:   int(rec[40]),
			PitchCorrection: int(int8(rec[41])),
		}
		if sample.OriginalPitch > 127 {
			// 255 marks an unpitched sample; fall back to middle C.
			sample.OriginalPitch = 60
		}
		start := int(binary.LittleEndian.Uint32(rec[20:24]))
		end := int(binary.LittleEndian.Uint32(rec[24:28]))
		loopStart := int(binary.LittleEndian.Uint32(rec[28:32]))
		loopEnd := int(binary.LittleEndian.Uint32(rec[32:36]))
		if start < 0 || start >= end || end > len(pcm) {
			logger.Printf("sf2: sample %d (%q) has bad offsets [%d,%d) in a block of %d; substituting silence", i, sample.Name, start, end, len(pcm))
			samples = append(samples, sample)
			continue
		}
		sample.Data = pcm[start:end]
		// Loop points are absolute in the file; store them relative to the
		// sample and drop them when they fail the bounds invariant.
		loopStart -= start
		loopEnd -= start
		if loopStart >= 0 && loopStart < loopEnd && loopEnd <= len(sample.Data) {
			sample.LoopStart = loopStart
			sample.LoopEnd = loopEnd
		}
		samples = append(samples, sample)
	}
	return samples
}

// zoneSpan resolves the zone list of record i: its generators span from its
// bag index to the next record's bag index. The caller guarantees a
// terminator record exists after i.
func zoneSpan(bags []byte, bagIndex, nextBagIndex int) (spans [][2]int) {
	bagCount := len(bags) / bagSize
	if bagIndex < 0 || nextBagIndex > bagCount || bagIndex > nextBagIndex {
		return nil
	}
	for b := bagIndex; b < nextBagIndex; b++ {
		genStart := int(binary.LittleEndian.Uint16(bags[b*bagSize:]))
		genEnd := 0
		if b+1 < bagCount {
			genEnd = int(binary.LittleEndian.Uint16(bags[(b+1)*bagSize:]))
		}
		if genEnd < genStart {
			continue
		}
		spans = append(spans, [2]int{genStart, genEnd})
	}
	return spans
}

// decodeZone interprets the generator records of one zone. The amount is a
// signed 16-bit integer except for the two range generators, which pack the
// low and high bound into one byte each. instrument is -1 when the zone does
// not carry an instrument generator.
func decodeZone(gens []byte, genStart, genEnd int) (zone sfplay.Zone, instrument int) {
	zone.KeyRange = sfplay.FullRange
	zone.VelRange = sfplay.FullRange
	instrument = -1
	genCount := len(gens) / generatorSize
	if genEnd > genCount {
		genEnd = genCount
	}
	for g := genStart; g < genEnd; g++ {
		rec := gens[g*generatorSize:]
		oper := binary.LittleEndian.Uint16(rec[0:2])
		amount := int(int16(binary.LittleEndian.Uint16(rec[2:4])))
		switch oper {
		case genKeyRange:
			zone.KeyRange = sfplay.Range{Low: rec[2], High: rec[3]}
		case genVelRange:
			zone.VelRange = sfplay.Range{Low: rec[2], High: rec[3]}
		case genPan:
			zone.Pan = &amount
		case genFineTune:
			zone.FineTune = &amount
		case genReleaseVolEnv:
			zone.Release = &amount
		case genSampleID:
			id := amount & 0xffff
			zone.SampleID = &id
		case genInstrument:
			instrument = amount & 0xffff
		}
	}
	return zone, instrument
}

// parseInstruments decodes the 22-byte inst records and their zones. The
// final record is the EOI terminator.
func parseInstruments(chunks *pdtaChunkSet) []sfplay.Instrument {
	count := len(chunks.inst) / instHeaderSize
	if count < 1 {
		return nil
	}
	instruments := make([]sfplay.Instrument, 0, count-1)
	for i := 0; i < count-1; i++ {
		rec := chunks.inst[i*instHeaderSize:]
		next := chunks.inst[(i+1)*instHeaderSize:]
		instr := sfplay.Instrument{Name: zeroTerminated(rec[0:20])}
		bagIndex := int(binary.LittleEndian.Uint16(rec[20:22]))
		nextBagIndex := int(binary.LittleEndian.Uint16(next[20:22]))
		for _, span := range zoneSpan(chunks.ibag, bagIndex, nextBagIndex) {
			zone, _ := decodeZone(chunks.igen, span[0], span[1])
			instr.Zones = append(instr.Zones, zone)
		}
		instruments = append(instruments, instr)
	}
	return instruments
}

// parsePresets decodes the 38-byte phdr records. Preset zones referencing an
// instrument inherit it as their whole sound source, so the instrument's
// zones are copied into the preset in place; zones directly carrying a
// sample id are kept as-is.
func parsePresets(chunks *pdtaChunkSet, bank *sfplay.Bank, logger *log.Logger) []sfplay.Preset {
	count := len(chunks.phdr) / presetHeaderSize
	if count < 1 {
		return nil
	}
	presets := make([]sfplay.Preset, 0, count-1)
	for i := 0; i < count-1; i++ {
		rec := chunks.phdr[i*presetHeaderSize:]
		next := chunks.phdr[(i+1)*presetHeaderSize:]
		preset := sfplay.Preset{
			Name:   zeroTerminated(rec[0:20]),
			Number: int(binary.LittleEndian.Uint16(rec[20:22])),
			Bank:   int(binary.LittleEndian.Uint16(rec[22:24])),
		}
		bagIndex := int(binary.LittleEndian.Uint16(rec[24:26]))
		nextBagIndex := int(binary.LittleEndian.Uint16(next[24:26]))
		for _, span := range zoneSpan(chunks.pbag, bagIndex, nextBagIndex) {
			zone, instrument := decodeZone(chunks.pgen, span[0], span[1])
			switch {
			case instrument >= 0:
				if instrument >= len(bank.Instruments) {
					logger.Printf("sf2: preset %q references instrument %d of %d; skipping zone", preset.Name, instrument, len(bank.Instruments))
					continue
				}
				for _, iz := range bank.Instruments[instrument].Zones {
					preset.Zones = append(preset.Zones, iz.Copy())
				}
			case zone.SampleID != nil:
				preset.Zones = append(preset.Zones, zone)
			default:
				// Global zone; carries no sound source.
				preset.Zones = append(preset.Zones, zone)
			}
		}
		presets = append(presets, preset)
	}
	return presets
}
