package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/viterin/vek/vek32"
	"gopkg.in/yaml.v3"

	"github.com/hvirtane/sfplay"
	"github.com/hvirtane/sfplay/engine"
	"github.com/hvirtane/sfplay/midi"
	"github.com/hvirtane/sfplay/oto"
	"github.com/hvirtane/sfplay/version"
)

type (
	// score is the yaml note list the CLI renders offline. Times are in
	// seconds from the start of the score.
	score struct {
		Notes []scoreNote  `yaml:"notes"`
		Pedal []pedalEvent `yaml:"pedal,omitempty"`
	}

	scoreNote struct {
		Note     int     `yaml:"note"`
		Velocity int     `yaml:"velocity"`
		Start    float64 `yaml:"start"`
		Duration float64 `yaml:"duration"`
	}

	pedalEvent struct {
		Time float64 `yaml:"time"`
		Down bool    `yaml:"down"`
	}
)

const renderTailSeconds = 2.0

func main() {
	help := flag.Bool("h", false, "Show help.")
	play := flag.Bool("p", false, "Play the rendered score (default behaviour when no other output is defined).")
	scoreFile := flag.String("score", "", "Score `file` (.yml) to render; a built-in demo score is used when omitted.")
	configFile := flag.String("config", "", "Engine configuration `file` (.yml).")
	live := flag.Bool("live", false, "Play live from a MIDI input instead of rendering a score.")
	midiPrefix := flag.String("midi", "", "Open the first MIDI input whose name starts with `prefix`; with an empty prefix, the first input found.")
	directory := flag.String("o", "", "Directory where to output all files. By default, everything is placed in the same directory where the bank file is.")
	rawOut := flag.Bool("r", false, "Output the rendered score as .raw file (stereo float32).")
	wavOut := flag.Bool("w", false, "Output the rendered score as .wav file.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.String())
		os.Exit(0)
	}
	if flag.NArg() != 1 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut {
		*play = true
	}

	bankFile := flag.Arg(0)
	bankBytes, err := os.ReadFile(bankFile)
	if err != nil {
		fatalf("could not read bank file %v: %v", bankFile, err)
	}
	var cfg engine.Config
	if *configFile != "" {
		configBytes, err := os.ReadFile(*configFile)
		if err != nil {
			fatalf("could not read config file %v: %v", *configFile, err)
		}
		if err := yaml.Unmarshal(configBytes, &cfg); err != nil {
			fatalf("could not parse config file %v: %v", *configFile, err)
		}
	}
	eng, err := engine.Load(bankBytes, cfg)
	if err != nil {
		fatalf("could not load bank %v: %v", bankFile, err)
	}
	defer eng.Close()
	eng.PreloadPreset()

	if *live {
		if err := playLive(eng, cfg, *midiPrefix); err != nil {
			fatalf("%v", err)
		}
		return
	}

	sc := demoScore()
	if *scoreFile != "" {
		scoreBytes, err := os.ReadFile(*scoreFile)
		if err != nil {
			fatalf("could not read score file %v: %v", *scoreFile, err)
		}
		if err := yaml.Unmarshal(scoreBytes, &sc); err != nil {
			fatalf("could not parse score file %v: %v", *scoreFile, err)
		}
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = engine.DefaultSampleRate
	}
	buffer := renderScore(eng, sc, sampleRate)
	normalize(buffer)

	output := func(extension string, contents []byte) error {
		dir := *directory
		if dir == "" {
			dir = filepath.Dir(bankFile)
		} else if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("could not create output directory %v: %w", dir, err)
		}
		_, name := filepath.Split(bankFile)
		name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
		f := filepath.Join(dir, name)
		if err := os.WriteFile(f, contents, 0644); err != nil {
			return fmt.Errorf("could not write file %v: %w", f, err)
		}
		return nil
	}
	if *rawOut {
		raw, err := buffer.Raw(*pcm)
		if err != nil {
			fatalf("could not generate .raw file: %v", err)
		}
		if err := output(".raw", raw); err != nil {
			fatalf("error outputting .raw file: %v", err)
		}
	}
	if *wavOut {
		wav, err := buffer.Wav(sampleRate, *pcm)
		if err != nil {
			fatalf("could not generate .wav file: %v", err)
		}
		if err := output(".wav", wav); err != nil {
			fatalf("error outputting .wav file: %v", err)
		}
	}
	if *play {
		audioContext, err := oto.NewContext(sampleRate)
		if err != nil {
			fatalf("could not acquire oto AudioContext: %v", err)
		}
		defer audioContext.Close()
		audioContext.Play(buffer.Source()).Wait()
	}
}

// renderScore renders the score offline, issuing the note and pedal events
// at their frame positions between render blocks.
func renderScore(eng *engine.Engine, sc score, sampleRate int) sfplay.AudioBuffer {
	type event struct {
		frame int64
		apply func()
	}
	var events []event
	var end float64
	for _, n := range sc.Notes {
		n := n
		events = append(events, event{
			frame: int64(n.Start * float64(sampleRate)),
			apply: func() { eng.NoteOn(n.Note, n.Velocity) },
		})
		events = append(events, event{
			frame: int64((n.Start + n.Duration) * float64(sampleRate)),
			apply: func() { eng.NoteOff(n.Note) },
		})
		if n.Start+n.Duration > end {
			end = n.Start + n.Duration
		}
	}
	for _, p := range sc.Pedal {
		p := p
		events = append(events, event{
			frame: int64(p.Time * float64(sampleRate)),
			apply: func() { eng.SetSustainPedal(p.Down) },
		})
		if p.Time > end {
			end = p.Time
		}
	}
	totalFrames := int64((end + renderTailSeconds) * float64(sampleRate))
	buffer := make(sfplay.AudioBuffer, 0, totalFrames)
	block := make(sfplay.AudioBuffer, 512)
	for frame := int64(0); frame < totalFrames; {
		for _, ev := range events {
			if ev.frame >= frame && ev.frame < frame+int64(len(block)) {
				ev.apply()
			}
		}
		n := totalFrames - frame
		if n > int64(len(block)) {
			n = int64(len(block))
		}
		eng.Render(block[:n])
		buffer = append(buffer, block[:n]...)
		frame += n
	}
	return buffer
}

// normalize scales the buffer down when its peak exceeds full scale, so
// exports and playback do not clip.
func normalize(buffer sfplay.AudioBuffer) {
	if len(buffer) == 0 {
		return
	}
	flat := make([]float32, 0, len(buffer)*2)
	for _, frame := range buffer {
		flat = append(flat, frame[0], frame[1])
	}
	vek32.Abs_Inplace(flat)
	peak := vek32.Max(flat)
	if peak <= 1 || peak == 0 {
		return
	}
	gain := float32(0.99) / peak
	for i := range buffer {
		buffer[i][0] *= gain
		buffer[i][1] *= gain
	}
}

// playLive renders the engine in real time and forwards a MIDI input to it
// until interrupted.
func playLive(eng *engine.Engine, cfg engine.Config, midiPrefix string) error {
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = engine.DefaultSampleRate
	}
	audioContext, err := oto.NewContext(sampleRate)
	if err != nil {
		return fmt.Errorf("could not acquire oto AudioContext: %w", err)
	}
	defer audioContext.Close()
	midiContext := midi.NewContext(eng)
	defer midiContext.Close()
	if !midiContext.TryToOpenBy(midiPrefix, midiPrefix == "") {
		return fmt.Errorf("could not open a MIDI input matching %q", midiPrefix)
	}
	player := audioContext.Play(sfplay.RenderSource(eng, 512))
	defer player.Close()
	fmt.Println("playing; press Ctrl-C to quit")
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	eng.Panic()
	return nil
}

func demoScore() score {
	// C major arpeggio with a pedaled chord at the end.
	return score{
		Notes: []scoreNote{
			{Note: 60, Velocity: 100, Start: 0.0, Duration: 0.4},
			{Note: 64, Velocity: 95, Start: 0.5, Duration: 0.4},
			{Note: 67, Velocity: 90, Start: 1.0, Duration: 0.4},
			{Note: 72, Velocity: 110, Start: 1.5, Duration: 0.8},
			{Note: 60, Velocity: 80, Start: 2.5, Duration: 0.2},
			{Note: 64, Velocity: 80, Start: 2.5, Duration: 0.2},
			{Note: 67, Velocity: 80, Start: 2.5, Duration: 0.2},
		},
		Pedal: []pedalEvent{
			{Time: 2.4, Down: true},
			{Time: 4.0, Down: false},
		},
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "SoundFont player for .sf2 banks.\nUsage: %s [flags] bank.sf2\n", os.Args[0])
	flag.PrintDefaults()
}
