// Package options holds the command-line configuration of the shaderforge
// binary.
package options

import (
	"flag"
	"fmt"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/ftag"
)

type ShaderOptions struct {
	ProjectFile *string // YAML project file
	ShaderID    *string // fragment shader file, or a shader id with -api
	SceneID     *string // scene id, requires -api
	APIURL      *string // ShaderForge service base URL
	NoCache     *bool
	SaveProject *string // write the resolved project here before running

	Backend  *string // "gl" or "hal"
	WebGL2   *bool   // GL backend accepts GLSL ES 3.00
	Headless *bool   // GL backend renders to an EGL pbuffer
	Width    *int
	Height   *int
	BPM      *float64

	Record     *bool
	Duration   *float64
	FPS        *int
	OutputFile *string
	Codec      *string
	BitDepth   *int
	Hardware   *bool
	Stream     *bool
	FFMPEGPath *string

	Metronome *bool
	Verbose   *bool
	Help      *bool
}

// Register defines every flag on fs.
func Register(fs *flag.FlagSet) *ShaderOptions {
	return &ShaderOptions{
		ProjectFile: fs.String("project", "", "YAML project file"),
		ShaderID:    fs.String("shader", "", "Fragment shader file, or a shader id when -api is set"),
		SceneID:     fs.String("scene", "", "Scene id to fetch from -api"),
		APIURL:      fs.String("api", "", "ShaderForge service URL, e.g. http://localhost:5000"),
		NoCache:     fs.Bool("nocache", false, "Do not cache service responses"),
		SaveProject: fs.String("save", "", "Write the resolved project to this YAML file"),

		Backend:  fs.String("backend", "gl", "Graphics backend: gl or hal"),
		WebGL2:   fs.Bool("webgl2", false, "GL backend: shaders are GLSL ES 3.00"),
		Headless: fs.Bool("headless", false, "GL backend: render without a window (EGL, linux only)"),
		Width:    fs.Int("width", 1280, "Width of the output"),
		Height:   fs.Int("height", 720, "Height of the output"),
		BPM:      fs.Float64("bpm", 0, "Override the project tempo"),

		Record:     fs.Bool("record", false, "Render offscreen to -output instead of a window"),
		Duration:   fs.Float64("duration", 10.0, "Duration to record in seconds"),
		FPS:        fs.Int("fps", 60, "Frames per second for recording"),
		OutputFile: fs.String("output", "output.mp4", "Output file or URL for recording"),
		Codec:      fs.String("codec", "h264", "Video codec: h264 or hevc"),
		BitDepth:   fs.Int("bitdepth", 8, "Output bit depth: 8 or 10"),
		Hardware:   fs.Bool("hw", false, "Use the platform hardware encoder"),
		Stream:     fs.Bool("stream", false, "Write MPEG-TS, for streaming -output"),
		FFMPEGPath: fs.String("ffmpeg", "", "Path to ffmpeg executable"),

		Metronome: fs.Bool("metronome", false, "Play a click on every beat"),
		Verbose:   fs.Bool("v", false, "Verbose logging"),
		Help:      fs.Bool("help", false, "Show help message"),
	}
}

func invalid(msg string) error {
	return fault.New(msg, ftag.With(ftag.InvalidArgument))
}

// Validate rejects flag combinations that cannot run.
func (o *ShaderOptions) Validate() error {
	switch strings.ToLower(*o.Backend) {
	case "gl", "hal":
	default:
		return invalid(fmt.Sprintf("unknown backend %q", *o.Backend))
	}
	if *o.ProjectFile != "" && (*o.ShaderID != "" || *o.SceneID != "") {
		return invalid("-project cannot be combined with -shader or -scene")
	}
	if *o.SceneID != "" && *o.APIURL == "" {
		return invalid("-scene requires -api")
	}
	if *o.SceneID != "" && *o.ShaderID != "" {
		return invalid("-scene and -shader are exclusive")
	}
	if *o.Width <= 0 || *o.Height <= 0 {
		return invalid(fmt.Sprintf("invalid size %dx%d", *o.Width, *o.Height))
	}
	if *o.BPM < 0 {
		return invalid("-bpm must be positive")
	}
	if *o.Record {
		if *o.FPS <= 0 {
			return invalid("-fps must be positive")
		}
		if *o.Duration <= 0 {
			return invalid("-duration must be positive")
		}
		if *o.OutputFile == "" {
			return invalid("-record needs -output")
		}
		switch *o.Codec {
		case "h264", "hevc":
		default:
			return invalid(fmt.Sprintf("unknown codec %q", *o.Codec))
		}
		if *o.BitDepth != 8 && *o.BitDepth != 10 {
			return invalid("-bitdepth must be 8 or 10")
		}
	}
	if o.UseHAL() && !*o.Record {
		return invalid("the hal backend renders offscreen only; add -record")
	}
	if o.UseHAL() && *o.WebGL2 {
		return invalid("-webgl2 applies to the gl backend only")
	}
	return nil
}

func (o *ShaderOptions) UseHAL() bool { return strings.EqualFold(*o.Backend, "hal") }
