// Package sf2 decodes SoundFont-2 instrument banks into the sfplay domain
// model. Only the generators needed for one-shot sample playback are
// interpreted (key range, velocity range, sample id, pan, fine tune, release
// time); everything else is consumed to keep the record streams aligned and
// otherwise ignored.
package sf2

import (
	"encoding/binary"
	"log"

	"github.com/pkg/errors"

	"github.com/hvirtane/sfplay"
)

// FormatError means the bank is structurally unusable: wrong container
// signature or a missing mandatory sub-chunk. Smaller defects (a sample with
// bad offsets, for example) are degraded locally and logged instead.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return "sf2: " + e.Err.Error() }
func (e *FormatError) Unwrap() error { return e.Err }

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{Err: errors.Errorf(format, args...)}
}

// Parser parses SoundFont-2 banks. The zero value is usable; Logger receives
// warnings about locally recovered defects and defaults to log.Default().
type Parser struct {
	Logger *log.Logger
}

// Parse is shorthand for Parser{}.Parse with the default logger.
func Parse(data []byte) (*sfplay.Bank, error) {
	return Parser{}.Parse(data)
}

// Parse decodes the bank. It returns a *FormatError when the container
// signature is wrong or any of the seven mandatory pdta sub-chunks (phdr,
// pbag, pgen, inst, ibag, igen, shdr) is absent; a failed parse never
// returns a partial bank. The parser keeps no state between calls.
func (p Parser) Parse(data []byte) (*sfplay.Bank, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "sfbk" {
		return nil, formatErrorf("not a RIFF sfbk container")
	}
	info, sdta, pdta, err := topLevelLists(data[12:])
	if err != nil {
		return nil, err
	}
	bank := &sfplay.Bank{Info: parseInfo(info)}
	pcm := samplePCM(sdta)
	chunks, err := pdtaChunks(pdta)
	if err != nil {
		return nil, err
	}
	bank.Samples = parseSampleHeaders(chunks.shdr, pcm, logger)
	bank.Instruments = parseInstruments(chunks)
	bank.Presets = parsePresets(chunks, bank, logger)
	return bank, nil
}

// topLevelLists scans the top-level LIST chunks for the three required
// sections, walking (id, size) pairs and advancing by 8 + size.
func topLevelLists(data []byte) (info, sdta, pdta []byte, err error) {
	offset := 0
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		if size < 0 || offset+8+size > len(data) {
			return nil, nil, nil, formatErrorf("chunk %q of size %d overruns the file", id, size)
		}
		body := data[offset+8 : offset+8+size]
		if id == "LIST" && len(body) >= 4 {
			switch string(body[0:4]) {
			case "INFO":
				info = body[4:]
			case "sdta":
				sdta = body[4:]
			case "pdta":
				pdta = body[4:]
			}
		}
		offset += 8 + size
	}
	if sdta == nil {
		return nil, nil, nil, formatErrorf("missing sdta list")
	}
	if pdta == nil {
		return nil, nil, nil, formatErrorf("missing pdta list")
	}
	return info, sdta, pdta, nil
}

// parseInfo walks the INFO list; all sub-chunks are optional metadata.
func parseInfo(data []byte) sfplay.Info {
	var info sfplay.Info
	offset := 0
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		if size < 0 || offset+8+size > len(data) {
			break
		}
		body := data[offset+8 : offset+8+size]
		switch id {
		case "INAM":
			info.Name = zeroTerminated(body)
		case "isng":
			info.SoundEngine = zeroTerminated(body)
		case "ifil":
			if len(body) >= 4 {
				info.VersionMajor = int(binary.LittleEndian.Uint16(body[0:2]))
				info.VersionMinor = int(binary.LittleEndian.Uint16(body[2:4]))
			}
		}
		offset += 8 + size
	}
	return info
}

// samplePCM locates the smpl sub-chunk of the sdta list and decodes the
// shared 16-bit PCM block all sample headers index into.
func samplePCM(data []byte) []int16 {
	offset := 0
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		if size < 0 || offset+8+size > len(data) {
			return nil
		}
		if id == "smpl" {
			body := data[offset+8 : offset+8+size]
			pcm := make([]int16, len(body)/2)
			for i := range pcm {
				pcm[i] = int16(binary.LittleEndian.Uint16(body[i*2:]))
			}
			return pcm
		}
		offset += 8 + size
	}
	return nil
}

func zeroTerminated(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
