package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/richinsley/shaderforge/audio"
	"github.com/richinsley/shaderforge/driver"
	"github.com/richinsley/shaderforge/encoder"
	"github.com/richinsley/shaderforge/logging"
	"github.com/richinsley/shaderforge/options"
)

func init() {
	// GL contexts are bound to the thread that created them.
	runtime.LockOSThread()
}

func main() {
	fs := flag.NewFlagSet("shaderforge", flag.ExitOnError)
	opts := options.Register(fs)
	fs.Parse(os.Args[1:])

	if *opts.Help {
		fmt.Println("ShaderForge shader player/recorder")
		fs.PrintDefaults()
		return
	}

	level := slog.LevelInfo
	if *opts.Verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, "shaderforge:", err)
		if ftag.Get(err) == ftag.InvalidArgument {
			fmt.Fprintln(os.Stderr, "Run with -help for usage.")
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options.ShaderOptions) error {
	log := logging.With("main")
	if err := opts.Validate(); err != nil {
		return err
	}

	proj, err := loadProject(ctx, opts)
	if err != nil {
		return err
	}
	if proj != nil && *opts.BPM > 0 {
		proj.BPM = *opts.BPM
	}
	if proj != nil && *opts.SaveProject != "" {
		if err := proj.Save(*opts.SaveProject); err != nil {
			return err
		}
		log.Info("project saved", "path", *opts.SaveProject)
	}

	b, err := openBackend(opts)
	if err != nil {
		return fault.Wrap(err, fmsg.With("failed to open graphics backend"))
	}
	defer b.close()

	tr := newTracker(proj, opts)
	dopts := []driver.Option{
		driver.WithSize(*opts.Width, *opts.Height),
		driver.WithTracker(tr),
	}
	if proj != nil && len(proj.Scenes) > 0 {
		dopts = append(dopts, driver.WithGraph(proj.Graph(b.dev.Language())))
	}

	if *opts.Metronome {
		m := audio.NewMetronome(audio.DefaultSampleRate)
		if err := m.Start(); err != nil {
			log.Warn("metronome disabled", "error", err)
		} else {
			defer m.Stop()
			dopts = append(dopts, driver.WithOnFrame(func(st driver.FrameState) {
				if st.Beat != nil {
					m.OnBeat(*st.Beat)
				}
			}))
		}
	}

	d, err := driver.New(ctx, b.dev, dopts...)
	if err != nil {
		return fault.Wrap(err, fmsg.With("failed to start renderer"))
	}
	defer d.Destroy()

	if err := d.Graph().Wait(ctx); err != nil {
		return err
	}
	for _, r := range d.Graph().Results() {
		if !r.Result.OK {
			log.Error("pass failed to compile", "pass", r.Name, "error", r.Result.Error)
		}
	}

	if proj != nil {
		if err := loadPlaylist(ctx, d, proj); err != nil {
			return err
		}
	}

	if *opts.Record {
		return record(ctx, d, opts)
	}
	log.Info("starting interactive render loop")
	return d.Run(ctx, b.win, b.present)
}

func record(ctx context.Context, d *driver.Driver, opts *options.ShaderOptions) error {
	w, h := d.Size()
	rec, err := encoder.Start(encoder.Config{
		Width:      w,
		Height:     h,
		FPS:        *opts.FPS,
		Codec:      *opts.Codec,
		BitDepth:   *opts.BitDepth,
		Output:     *opts.OutputFile,
		FFmpegPath: *opts.FFMPEGPath,
		Stream:     *opts.Stream,
		Hardware:   *opts.Hardware,
	})
	if err != nil {
		return fault.Wrap(err, ftag.With(ftag.InvalidArgument))
	}

	rerr := d.Record(ctx, driver.RecordOptions{Duration: *opts.Duration, FPS: *opts.FPS}, rec)
	cerr := rec.Close()
	if rerr != nil {
		return fault.Wrap(rerr, fmsg.With("recording failed"))
	}
	if cerr != nil {
		return fault.Wrap(cerr, fmsg.With("encoder failed"))
	}
	logging.With("main").Info("recording finished", "output", *opts.OutputFile)
	return nil
}
