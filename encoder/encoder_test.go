package encoder

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		goos string
		want map[string]interface{}
		not  []string
	}{
		{
			name: "software h264",
			cfg:  Config{Width: 640, Height: 360, FPS: 30, Codec: "h264", Output: "out.mp4"},
			goos: "linux",
			want: map[string]interface{}{"c:v": "libx264", "pix_fmt": "yuv420p", "b:v": "25M"},
			not:  []string{"tag:v", "vf", "f", "color_primaries"},
		},
		{
			name: "software hevc mp4",
			cfg:  Config{Width: 640, Height: 360, FPS: 30, Codec: "hevc", Output: "out.mp4"},
			goos: "windows",
			want: map[string]interface{}{"c:v": "libx265", "tag:v": "hvc1"},
		},
		{
			name: "hevc mkv has no tag",
			cfg:  Config{Width: 640, Height: 360, FPS: 30, Codec: "hevc", Output: "out.mkv"},
			goos: "linux",
			want: map[string]interface{}{"c:v": "libx265"},
			not:  []string{"tag:v"},
		},
		{
			name: "nvenc",
			cfg:  Config{Width: 640, Height: 360, FPS: 30, Codec: "hevc", Output: "out.mkv", Hardware: true},
			goos: "linux",
			want: map[string]interface{}{
				"c:v":    "hevc_nvenc",
				"preset": "p2",
				"vf":     "hwupload_cuda,scale_cuda=format=yuv420p",
			},
		},
		{
			name: "videotoolbox",
			cfg:  Config{Width: 640, Height: 360, FPS: 30, Codec: "h264", Output: "out.mov", Hardware: true},
			goos: "darwin",
			want: map[string]interface{}{"c:v": "h264_videotoolbox"},
		},
		{
			name: "hardware falls back on windows",
			cfg:  Config{Width: 640, Height: 360, FPS: 30, Output: "out.mp4", Hardware: true},
			goos: "windows",
			want: map[string]interface{}{"c:v": "libx264"},
		},
		{
			name: "high bit depth stream",
			cfg:  Config{Width: 640, Height: 360, FPS: 30, BitDepth: 10, Output: "udp://127.0.0.1:9000", Stream: true},
			goos: "linux",
			want: map[string]interface{}{
				"pix_fmt":         "yuv420p10le",
				"color_primaries": "bt2020",
				"color_trc":       "smpte2084",
				"colorspace":      "bt2020nc",
				"f":               "mpegts",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := args(tt.cfg, tt.goos)
			if in["f"] != "rawvideo" || in["pix_fmt"] != "rgba" {
				t.Errorf("input = %v, want rawvideo rgba", in)
			}
			if in["s"] != "640x360" {
				t.Errorf("input size = %v, want 640x360", in["s"])
			}
			if in["framerate"] != 30 {
				t.Errorf("input framerate = %v, want 30", in["framerate"])
			}
			for k, v := range tt.want {
				if out[k] != v {
					t.Errorf("out[%q] = %v, want %v", k, out[k], v)
				}
			}
			for _, k := range tt.not {
				if _, ok := out[k]; ok {
					t.Errorf("out[%q] = %v, want unset", k, out[k])
				}
			}
		})
	}
}

func TestStartValidates(t *testing.T) {
	run := func(Config, ffmpeg.KwArgs, ffmpeg.KwArgs, io.Reader) error {
		t.Error("ffmpeg started for an invalid config")
		return nil
	}
	for _, cfg := range []Config{
		{Width: 0, Height: 10, FPS: 30, Output: "a.mp4"},
		{Width: 10, Height: 10, FPS: 0, Output: "a.mp4"},
		{Width: 10, Height: 10, FPS: 30},
		{Width: 10, Height: 10, FPS: 30, Output: "a.mp4", Codec: "vp9"},
	} {
		if _, err := start(cfg, run); err == nil {
			t.Errorf("start(%+v) succeeded", cfg)
		}
	}
}

func TestRecorderPipesFrames(t *testing.T) {
	var got bytes.Buffer
	var gotCfg Config
	run := func(cfg Config, in, out ffmpeg.KwArgs, r io.Reader) error {
		gotCfg = cfg
		_, err := io.Copy(&got, r)
		return err
	}

	cfg := Config{Width: 2, Height: 2, FPS: 30, Output: "out.mp4"}
	r, err := start(cfg, run)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		pix := bytes.Repeat([]byte{byte(i)}, 16)
		if err := r.WriteFrame(pix, int64(i)); err != nil {
			t.Fatalf("WriteFrame(%d): %v", i, err)
		}
		pix[0] = 0xff
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got.Len() != 5*16 {
		t.Fatalf("ffmpeg read %d bytes, want %d", got.Len(), 5*16)
	}
	for i := 0; i < 5; i++ {
		if b := got.Bytes()[i*16]; b != byte(i) {
			t.Errorf("frame %d starts with %d, want %d", i, b, i)
		}
	}
	if gotCfg.Codec != "h264" {
		t.Errorf("codec = %q, want h264 default", gotCfg.Codec)
	}

	if err := r.WriteFrame(make([]byte, 16), 5); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteFrame after Close = %v, want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestRecorderRejectsShortFrame(t *testing.T) {
	run := func(cfg Config, in, out ffmpeg.KwArgs, r io.Reader) error {
		_, err := io.Copy(io.Discard, r)
		return err
	}
	r, err := start(Config{Width: 4, Height: 4, FPS: 30, Output: "out.mp4"}, run)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if err := r.WriteFrame(make([]byte, 10), 0); err == nil || !strings.Contains(err.Error(), "want 64") {
		t.Errorf("WriteFrame = %v, want size error", err)
	}
}

func TestRecorderReportsFFmpegExit(t *testing.T) {
	boom := errors.New("exit status 1")
	run := func(Config, ffmpeg.KwArgs, ffmpeg.KwArgs, io.Reader) error {
		return boom
	}
	r, err := start(Config{Width: 1, Height: 1, FPS: 30, Output: "out.mp4"}, run)
	if err != nil {
		t.Fatal(err)
	}
	<-r.exited

	if err := r.WriteFrame(make([]byte, 4), 0); !errors.Is(err, boom) {
		t.Errorf("WriteFrame = %v, want %v", err, boom)
	}
	if err := r.Close(); !errors.Is(err, boom) {
		t.Errorf("Close = %v, want %v", err, boom)
	}
}
