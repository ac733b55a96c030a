package main

import (
	"context"
	"os"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/mitchellh/go-homedir"
	"github.com/richinsley/shaderforge/api"
	"github.com/richinsley/shaderforge/driver"
	"github.com/richinsley/shaderforge/logging"
	"github.com/richinsley/shaderforge/options"
	"github.com/richinsley/shaderforge/project"
	"github.com/richinsley/shaderforge/tracker"
)

// loadProject resolves what to play: a project file, a scene or shader
// from the service, a local fragment shader, or nil for the default
// shader.
func loadProject(ctx context.Context, opts *options.ShaderOptions) (*project.Project, error) {
	log := logging.With("main")
	switch {
	case *opts.ProjectFile != "":
		log.Info("loading project", "path", *opts.ProjectFile)
		return project.Load(*opts.ProjectFile)

	case *opts.APIURL != "":
		c, err := newClient(opts)
		if err != nil {
			return nil, err
		}
		if *opts.SceneID != "" {
			log.Info("fetching scene", "id", *opts.SceneID)
			return c.Project(ctx, *opts.SceneID)
		}
		if *opts.ShaderID != "" {
			log.Info("fetching shader", "id", *opts.ShaderID)
			return c.ShaderProject(ctx, *opts.ShaderID)
		}
		return nil, fault.New("-api needs -scene or -shader", ftag.With(ftag.InvalidArgument))

	case *opts.ShaderID != "":
		return shaderFileProject(*opts.ShaderID)
	}
	return nil, nil
}

func newClient(opts *options.ShaderOptions) (*api.Client, error) {
	var copts []api.Option
	if !*opts.NoCache {
		dir, err := api.CacheDir("api")
		if err != nil {
			logging.With("main").Warn("response cache disabled", "error", err)
		} else {
			copts = append(copts, api.WithCache(dir))
		}
	}
	return api.NewClient(*opts.APIURL, copts...), nil
}

// shaderFileProject wraps a single fragment shader file in a one-scene
// project.
func shaderFileProject(path string) (*project.Project, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fault.Wrap(err, ftag.With(ftag.InvalidArgument))
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		kind := ftag.Internal
		if os.IsNotExist(err) {
			kind = ftag.NotFound
		}
		return nil, fault.Wrap(err, ftag.With(kind), fmsg.With("failed to read shader"))
	}
	p := &project.Project{Scenes: []project.Scene{{Name: "main", Fragment: string(data)}}}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func newTracker(p *project.Project, opts *options.ShaderOptions) *tracker.Tracker {
	if p != nil {
		return p.Tracker()
	}
	return tracker.New(tracker.Config{BPM: *opts.BPM})
}

func loadPlaylist(ctx context.Context, d *driver.Driver, p *project.Project) error {
	pl := p.Playlist()
	if pl == nil {
		return nil
	}
	results, err := d.SetPlaylist(ctx, pl)
	if err != nil {
		return fault.Wrap(err, fmsg.With("failed to load playlist"))
	}
	log := logging.With("main")
	for i, r := range results {
		if !r.OK {
			log.Error("playlist entry failed to compile", "index", i, "error", r.Error)
		}
	}
	log.Info("playlist loaded", "entries", pl.Len(), "bars", pl.TotalBars())
	return nil
}
