// Package encoder pipes rendered frames into an ffmpeg process.
package encoder

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/richinsley/shaderforge/logging"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// numBuffers frames may be queued ahead of ffmpeg.
const numBuffers = 3

var ErrClosed = errors.New("encoder: recorder closed")

type Config struct {
	Width, Height int
	FPS           int
	// Codec is "h264" (default) or "hevc".
	Codec    string
	BitDepth int
	Output   string
	// FFmpegPath overrides the ffmpeg binary found on PATH.
	FFmpegPath string
	// Stream writes mpegts instead of letting ffmpeg pick from Output.
	Stream bool
	// Hardware selects the platform encoder (NVENC on linux,
	// VideoToolbox on darwin).
	Hardware bool
}

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("encoder: invalid frame size %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("encoder: invalid frame rate %d", c.FPS)
	}
	if c.Output == "" {
		return errors.New("encoder: no output")
	}
	switch c.Codec {
	case "", "h264", "hevc":
	default:
		return fmt.Errorf("encoder: unsupported codec %q", c.Codec)
	}
	return nil
}

// Args builds the ffmpeg input and output arguments for cfg.
func Args(cfg Config) (in, out ffmpeg.KwArgs) {
	return args(cfg, runtime.GOOS)
}

func args(cfg Config, goos string) (in, out ffmpeg.KwArgs) {
	in = ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"framerate": cfg.FPS,
	}

	outPixFmt := "yuv420p"
	if cfg.BitDepth > 8 {
		outPixFmt = "yuv420p10le"
	}
	hevc := cfg.Codec == "hevc"

	out = ffmpeg.KwArgs{}
	log := logging.With("encoder")
	switch {
	case cfg.Hardware && goos == "linux":
		log.Debug("using NVENC hardware encoding")
		out["vf"] = fmt.Sprintf("hwupload_cuda,scale_cuda=format=%s", outPixFmt)
		out["c:v"] = "h264_nvenc"
		if hevc {
			out["c:v"] = "hevc_nvenc"
		}
		out["preset"] = "p2"
	case cfg.Hardware && goos == "darwin":
		log.Debug("using VideoToolbox hardware encoding")
		out["c:v"] = "h264_videotoolbox"
		if hevc {
			out["c:v"] = "hevc_videotoolbox"
		}
		out["pix_fmt"] = outPixFmt
	default:
		out["c:v"] = "libx264"
		if hevc {
			out["c:v"] = "libx265"
		}
		out["pix_fmt"] = outPixFmt
	}

	if cfg.BitDepth > 8 {
		out["color_primaries"] = "bt2020"
		out["color_trc"] = "smpte2084"
		out["colorspace"] = "bt2020nc"
	}
	out["b:v"] = "25M"

	if hevc && strings.HasSuffix(cfg.Output, ".mp4") {
		out["tag:v"] = "hvc1"
	}
	if cfg.Stream {
		out["f"] = "mpegts"
	}
	return in, out
}

type frame struct {
	pixels []byte
	pts    int64
}

// startFunc runs ffmpeg reading raw frames from r until r hits EOF.
type startFunc func(cfg Config, in, out ffmpeg.KwArgs, r io.Reader) error

func runFFmpeg(cfg Config, in, out ffmpeg.KwArgs, r io.Reader) error {
	cmd := ffmpeg.Input("pipe:", in).
		Output(cfg.Output, out).
		OverWriteOutput().WithInput(r).ErrorToStdOut()
	if cfg.FFmpegPath != "" {
		cmd = cmd.SetFfmpegPath(cfg.FFmpegPath)
	}
	return cmd.Run()
}

// Recorder is the consumer side of a frame queue feeding ffmpeg. WriteFrame
// and Close are called from the render loop goroutine.
type Recorder struct {
	cfg    Config
	frames chan frame
	closed bool

	// exited is closed once ffmpeg returns, after ffErr is set
	exited chan struct{}
	ffErr  error

	// done is closed once the writer has drained frames, after err is set
	done chan struct{}
	err  error
}

// Start launches ffmpeg for cfg.
func Start(cfg Config) (*Recorder, error) {
	return start(cfg, runFFmpeg)
}

func start(cfg Config, run startFunc) (*Recorder, error) {
	if cfg.Codec == "" {
		cfg.Codec = "h264"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Recorder{
		cfg:    cfg,
		frames: make(chan frame, numBuffers),
		exited: make(chan struct{}),
		done:   make(chan struct{}),
	}
	in, out := args(cfg, runtime.GOOS)
	logging.With("encoder").Info("starting ffmpeg",
		"output", cfg.Output, "codec", out["c:v"], "size", in["s"], "fps", cfg.FPS)

	pr, pw := io.Pipe()
	go func() {
		err := run(cfg, in, out, pr)
		if err != nil {
			err = fmt.Errorf("ffmpeg: %w", err)
		}
		r.ffErr = err
		// unblock the writer if ffmpeg stopped reading
		pr.CloseWithError(io.ErrClosedPipe)
		close(r.exited)
	}()
	go r.write(pw)
	return r, nil
}

func (r *Recorder) write(pw *io.PipeWriter) {
	defer close(r.done)

	var werr error
	for f := range r.frames {
		if werr != nil {
			continue
		}
		if _, err := pw.Write(f.pixels); err != nil {
			werr = fmt.Errorf("failed to write frame %d to ffmpeg: %w", f.pts, err)
			logging.With("encoder").Error("pipe write failed", "pts", f.pts, "error", err)
		}
	}
	pw.Close()

	<-r.exited
	if r.ffErr != nil {
		// a failed write is a symptom of ffmpeg exiting
		r.err = r.ffErr
		return
	}
	r.err = werr
}

// WriteFrame queues one tightly packed RGBA frame. It blocks while the
// queue is full and fails once ffmpeg has exited.
func (r *Recorder) WriteFrame(pixels []byte, pts int64) error {
	if r.closed {
		return ErrClosed
	}
	if want := r.cfg.Width * r.cfg.Height * 4; len(pixels) != want {
		return fmt.Errorf("encoder: frame %d is %d bytes, want %d", pts, len(pixels), want)
	}
	// callers may reuse pixels once this returns
	buf := make([]byte, len(pixels))
	copy(buf, pixels)

	select {
	case <-r.exited:
		return r.exitErr()
	default:
	}
	select {
	case r.frames <- frame{pixels: buf, pts: pts}:
		return nil
	case <-r.exited:
		return r.exitErr()
	}
}

func (r *Recorder) exitErr() error {
	if r.ffErr != nil {
		return r.ffErr
	}
	return errors.New("encoder: ffmpeg exited early")
}

// Close flushes queued frames, waits for ffmpeg and returns its status.
func (r *Recorder) Close() error {
	if !r.closed {
		r.closed = true
		close(r.frames)
	}
	<-r.done
	return r.err
}
