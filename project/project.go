// Package project loads YAML project files: the timeline, its tracks, the
// scene graph and an optional playlist.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/mitchellh/go-homedir"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/renderer"
	"github.com/richinsley/shaderforge/shader"
	"github.com/richinsley/shaderforge/tracker"
	"gopkg.in/yaml.v3"
)

// Scene is one named pass. Channels maps a slot (0..3) to the name of
// another scene whose output it samples.
type Scene struct {
	Name         string         `yaml:"name"`
	Fragment     string         `yaml:"fragment,omitempty"`
	FragmentFile string         `yaml:"fragment_file,omitempty"`
	Vertex       string         `yaml:"vertex,omitempty"`
	VertexCount  int            `yaml:"vertex_count,omitempty"`
	Channels     map[int]string `yaml:"channels,omitempty"`
}

type Effect struct {
	Fragment     string `yaml:"fragment,omitempty"`
	FragmentFile string `yaml:"fragment_file,omitempty"`
}

type PlaylistEntry struct {
	Name         string `yaml:"name"`
	Fragment     string `yaml:"fragment,omitempty"`
	FragmentFile string `yaml:"fragment_file,omitempty"`
	Vertex       string `yaml:"vertex,omitempty"`
	VertexCount  int    `yaml:"vertex_count,omitempty"`
	Bars         int    `yaml:"bars"`
}

type Project struct {
	tracker.Config `yaml:",inline"`

	Tracks   map[string][]tracker.Keyframe `yaml:"tracks,omitempty"`
	Scenes   []Scene                       `yaml:"scenes,omitempty"`
	Effects  []Effect                      `yaml:"effects,omitempty"`
	Sequence []PlaylistEntry               `yaml:"playlist,omitempty"`

	// Dir resolves relative shader files. Load sets it to the project
	// file's directory.
	Dir string `yaml:"-"`
}

// Load reads and validates the project at path. A leading ~ expands to
// the home directory.
func Load(path string) (*Project, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fault.Wrap(err, ftag.With(ftag.InvalidArgument), fmsg.With("failed to expand project path"))
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		kind := ftag.Internal
		if errors.Is(err, os.ErrNotExist) {
			kind = ftag.NotFound
		}
		return nil, fault.Wrap(err, ftag.With(kind), fmsg.With("failed to read project"))
	}
	return Parse(data, filepath.Dir(expanded))
}

// Parse decodes a project from YAML, reading shader files relative to dir.
// Unknown keys are rejected.
func Parse(data []byte, dir string) (*Project, error) {
	p := &Project{Dir: dir}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fault.Wrap(err, ftag.With(ftag.InvalidArgument), fmsg.With("failed to parse project"))
	}
	if err := p.resolve(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func invalid(format string, args ...any) error {
	return fault.New(fmt.Sprintf(format, args...), ftag.With(ftag.InvalidArgument))
}

// resolve inlines fragment_file and file vertex shaders.
func (p *Project) resolve() error {
	for i := range p.Scenes {
		s := &p.Scenes[i]
		src, err := p.fragment(s.Fragment, s.FragmentFile, "scene "+s.Name)
		if err != nil {
			return err
		}
		s.Fragment, s.FragmentFile = src, ""
		if s.Vertex, err = p.vertex(s.Vertex, "scene "+s.Name); err != nil {
			return err
		}
	}
	for i := range p.Effects {
		e := &p.Effects[i]
		src, err := p.fragment(e.Fragment, e.FragmentFile, fmt.Sprintf("effect %d", i))
		if err != nil {
			return err
		}
		e.Fragment, e.FragmentFile = src, ""
	}
	for i := range p.Sequence {
		e := &p.Sequence[i]
		src, err := p.fragment(e.Fragment, e.FragmentFile, "playlist entry "+e.Name)
		if err != nil {
			return err
		}
		e.Fragment, e.FragmentFile = src, ""
		if e.Vertex, err = p.vertex(e.Vertex, "playlist entry "+e.Name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Project) fragment(inline, file, what string) (string, error) {
	switch {
	case inline != "" && file != "":
		return "", invalid("%s: fragment and fragment_file are exclusive", what)
	case file != "":
		return p.readFile(file, what)
	case inline == "":
		return "", invalid("%s: no fragment shader", what)
	}
	return inline, nil
}

// vertex keeps built-in names and multi-line source as they are and
// inlines anything else as a file.
func (p *Project) vertex(v, what string) (string, error) {
	if isBuiltin(v) || strings.Contains(v, "\n") {
		return v, nil
	}
	return p.readFile(v, what)
}

func (p *Project) readFile(name, what string) (string, error) {
	path, err := homedir.Expand(name)
	if err != nil {
		return "", fault.Wrap(err, ftag.With(ftag.InvalidArgument), fmsg.With(what))
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.Dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		kind := ftag.Internal
		if errors.Is(err, os.ErrNotExist) {
			kind = ftag.NotFound
		}
		return "", fault.Wrap(err, ftag.With(kind), fmsg.With(what+": failed to read shader"))
	}
	return string(data), nil
}

// Validate checks the parts that would otherwise fail silently in the
// graph: scene names must be unique and non-empty, channel slots in
// range, and playlist entries at least one bar long.
func (p *Project) Validate() error {
	if len(p.Scenes) == 0 && len(p.Sequence) == 0 {
		return invalid("project has no scenes and no playlist")
	}
	seen := make(map[string]bool, len(p.Scenes))
	for _, s := range p.Scenes {
		if s.Name == "" {
			return invalid("scene with empty name")
		}
		if s.Name == renderer.PreviousLayer {
			return invalid("scene name %q is reserved", s.Name)
		}
		if seen[s.Name] {
			return invalid("duplicate scene name %q", s.Name)
		}
		seen[s.Name] = true
	}
	for _, s := range p.Scenes {
		for slot, src := range s.Channels {
			if slot < 0 || slot >= graphics.ChannelCount {
				return invalid("scene %q: channel slot %d out of range 0..%d", s.Name, slot, graphics.ChannelCount-1)
			}
			if src != renderer.PreviousLayer && !seen[src] {
				return invalid("scene %q: channel %d reads unknown scene %q", s.Name, slot, src)
			}
		}
		if !isBuiltin(s.Vertex) && s.VertexCount <= 0 {
			return invalid("scene %q: custom vertex shader needs vertex_count", s.Name)
		}
	}
	for _, e := range p.Sequence {
		if e.Bars <= 0 {
			return invalid("playlist entry %q: bars must be positive", e.Name)
		}
		if !isBuiltin(e.Vertex) && e.VertexCount <= 0 {
			return invalid("playlist entry %q: custom vertex shader needs vertex_count", e.Name)
		}
	}
	for name, keys := range p.Tracks {
		if name == "" {
			return invalid("track with empty name")
		}
		for _, k := range keys {
			if k.Row < 0 || math.IsNaN(k.Row) || math.IsInf(k.Row, 0) {
				return invalid("track %q: invalid row %v", name, k.Row)
			}
		}
	}
	return nil
}

func isBuiltin(v string) bool {
	_, _, ok := shader.Builtin(v, graphics.WGSL)
	return ok
}

// Graph builds the scene graph, resolving built-in vertex shaders for
// lang.
func (p *Project) Graph(lang graphics.Language) *renderer.Graph {
	g := renderer.New()
	for _, s := range p.Scenes {
		var opts []renderer.SceneOption
		if src, n, ok := shader.Builtin(s.Vertex, lang); ok {
			if s.Vertex != "" {
				opts = append(opts, renderer.WithVertex(src, n))
			}
		} else {
			opts = append(opts, renderer.WithVertex(s.Vertex, s.VertexCount))
		}
		for slot, src := range s.Channels {
			opts = append(opts, renderer.WithChannel(slot, src))
		}
		g.Scene(s.Name, s.Fragment, opts...)
	}
	for _, e := range p.Effects {
		g.Effect(e.Fragment)
	}
	return g
}

// Tracker creates a tracker with the project's timeline and tracks.
func (p *Project) Tracker(opts ...tracker.Option) *tracker.Tracker {
	t := tracker.New(p.Config, opts...)
	for name, keys := range p.Tracks {
		t.Track(name, keys)
	}
	return t
}

// Playlist returns nil when the project has none.
func (p *Project) Playlist() *tracker.Playlist {
	if len(p.Sequence) == 0 {
		return nil
	}
	pl := &tracker.Playlist{}
	for _, e := range p.Sequence {
		pl.Add(tracker.Entry{
			Name:         e.Name,
			Fragment:     e.Fragment,
			Vertex:       e.Vertex,
			VertexCount:  e.VertexCount,
			DurationBars: e.Bars,
		})
	}
	return pl
}

// Save writes the project as YAML with every shader inlined.
func (p *Project) Save(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fault.Wrap(err, ftag.With(ftag.InvalidArgument), fmsg.With("failed to expand project path"))
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fault.Wrap(err, fmsg.With("failed to encode project"))
	}
	if err := enc.Close(); err != nil {
		return fault.Wrap(err, fmsg.With("failed to encode project"))
	}
	if err := os.WriteFile(expanded, buf.Bytes(), 0o644); err != nil {
		return fault.Wrap(err, fmsg.With("failed to write project"))
	}
	return nil
}
