// Package audio plays a metronome click in time with the beat clock.
//
// portaudio must be installed:
//
//	macos:   brew install portaudio
//	debian:  sudo apt-get install portaudio19-dev
//	windows: pacman -S mingw-w64-x86_64-portaudio
package audio

import (
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"
	"github.com/mjibson/go-dsp/window"
	"github.com/richinsley/shaderforge/beat"
	"github.com/richinsley/shaderforge/logging"
)

const (
	DefaultSampleRate = 44100

	clickFreq  = 880.0
	accentFreq = 1760.0
	clickLen   = 0.03
	clickGain  = 0.5
)

// Clicks maps a beat state to a metronome trigger: every quarter note
// clicks, and the first beat of a bar is accented.
func Clicks(s beat.State) (trigger, accent bool) {
	if s.HitBar {
		return true, true
	}
	return s.HitQuarter, false
}

// Click renders a Hann-shaped sine burst of freq Hz lasting seconds.
func Click(sampleRate int, freq, seconds float64) []float32 {
	n := int(math.Round(float64(sampleRate) * seconds))
	if n <= 0 {
		return nil
	}
	env := window.Hann(n)
	out := make([]float32, n)
	for i := range out {
		s := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		out[i] = float32(s * env[i] * clickGain)
	}
	return out
}

// voice is a click in progress.
type voice struct {
	samples []float32
	pos     int
}

// mix adds the voices into out, clamped to [-1, 1], and returns the voices
// still sounding.
func mix(out []float32, voices []voice) []voice {
	for i := range out {
		out[i] = 0
	}
	live := voices[:0]
	for _, v := range voices {
		n := copyAdd(out, v.samples[v.pos:])
		v.pos += n
		if v.pos < len(v.samples) {
			live = append(live, v)
		}
	}
	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}
	return live
}

func copyAdd(dst, src []float32) int {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] += src[i]
	}
	return n
}

// Metronome is a mono portaudio output stream that sounds a click on
// Trigger. Trigger is safe to call from the frame loop while the stream
// runs; Start and Stop are not concurrent with each other.
type Metronome struct {
	sampleRate    int
	click, accent []float32
	triggers      chan bool

	// voices is touched only by the audio callback.
	voices []voice

	stream  *portaudio.Stream
	running bool
}

func NewMetronome(sampleRate int) *Metronome {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Metronome{
		sampleRate: sampleRate,
		click:      Click(sampleRate, clickFreq, clickLen),
		accent:     Click(sampleRate, accentFreq, clickLen),
		triggers:   make(chan bool, 16),
	}
}

func (m *Metronome) SampleRate() int { return m.sampleRate }

// Trigger queues a click without blocking. Clicks are dropped when the
// audio callback falls behind.
func (m *Metronome) Trigger(accent bool) {
	select {
	case m.triggers <- accent:
	default:
		logging.With("audio").Debug("metronome queue full, dropping click")
	}
}

// OnBeat triggers a click if s calls for one.
func (m *Metronome) OnBeat(s beat.State) {
	if trigger, accent := Clicks(s); trigger {
		m.Trigger(accent)
	}
}

func (m *Metronome) process(out []float32) {
drain:
	for {
		select {
		case accent := <-m.triggers:
			src := m.click
			if accent {
				src = m.accent
			}
			m.voices = append(m.voices, voice{samples: src})
		default:
			break drain
		}
	}
	m.voices = mix(out, m.voices)
}

// Start initializes portaudio and opens the default output device.
func (m *Metronome) Start() error {
	if m.running {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	host, err := portaudio.DefaultHostApi()
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if host.DefaultOutputDevice == nil {
		portaudio.Terminate()
		return fmt.Errorf("no default audio output device")
	}

	params := portaudio.LowLatencyParameters(nil, host.DefaultOutputDevice)
	params.Output.Channels = 1
	params.SampleRate = float64(m.sampleRate)

	stream, err := portaudio.OpenStream(params, m.process)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	m.stream = stream
	m.running = true
	logging.With("audio").Info("metronome started", "device", host.DefaultOutputDevice.Name, "rate", m.sampleRate)
	return nil
}

// Stop closes the stream and releases portaudio.
func (m *Metronome) Stop() error {
	if !m.running {
		return nil
	}
	m.running = false
	if err := m.stream.Stop(); err != nil {
		logging.With("audio").Warn("failed to stop audio stream", "error", err)
	}
	if err := m.stream.Close(); err != nil {
		portaudio.Terminate()
		return err
	}
	m.stream = nil
	return portaudio.Terminate()
}
