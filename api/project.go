package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/richinsley/shaderforge/graphics"
	"github.com/richinsley/shaderforge/project"
	"github.com/richinsley/shaderforge/shader"
	"github.com/richinsley/shaderforge/tracker"
)

// defaultVertexCount is drawn for a stored vertex shader; the service
// keeps no count alongside the source.
const defaultVertexCount = 6

// Project fetches a scene and every shader it references and builds a
// project from them.
func (c *Client) Project(ctx context.Context, sceneID string) (*project.Project, error) {
	scene, err := c.Scene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	shaders := make(map[string]*Shader, len(scene.Shaders))
	for _, e := range scene.Shaders {
		if _, ok := shaders[e.ShaderID]; ok {
			continue
		}
		sh, err := c.Shader(ctx, e.ShaderID)
		if err != nil {
			return nil, fault.Wrap(err, fmsg.With(fmt.Sprintf("scene %s: shader %s", sceneID, e.ShaderID)))
		}
		shaders[e.ShaderID] = sh
	}
	return ProjectFromScene(scene, shaders)
}

// ShaderProject fetches one shader and builds a single-scene project.
func (c *Client) ShaderProject(ctx context.Context, shaderID string) (*project.Project, error) {
	sh, err := c.Shader(ctx, shaderID)
	if err != nil {
		return nil, err
	}
	scene := &Scene{
		ID:      sh.ID,
		Name:    sh.Name,
		Shaders: []SceneShaderEntry{{ShaderID: shaderID, Type: PixelShader}},
	}
	return ProjectFromScene(scene, map[string]*Shader{shaderID: sh})
}

// ProjectFromScene turns a stored scene into a project. Pixel shaders
// become scenes and post effects become the effect chain, both in entry
// order. The first pixel shader seeds the tempo, and its tracker and
// playlist documents, if any, become the project's tracks and playlist.
func ProjectFromScene(scene *Scene, shaders map[string]*Shader) (*project.Project, error) {
	entries := make([]SceneShaderEntry, len(scene.Shaders))
	copy(entries, scene.Shaders)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Order < entries[j].Order })

	p := &project.Project{}
	names := make(map[string]int)
	var lead *Shader
	for _, e := range entries {
		sh, ok := shaders[e.ShaderID]
		if !ok {
			return nil, fault.New(fmt.Sprintf("scene %q references unknown shader %s", scene.Name, e.ShaderID), ftag.With(ftag.NotFound))
		}
		if e.Type == PostFx {
			p.Effects = append(p.Effects, project.Effect{Fragment: sh.FragmentShaderCode})
			continue
		}
		if lead == nil {
			lead = sh
		}
		vertex, count := storedVertex(sh.VertexShaderCode)
		p.Scenes = append(p.Scenes, project.Scene{
			Name:        uniqueName(names, sh),
			Fragment:    sh.FragmentShaderCode,
			Vertex:      vertex,
			VertexCount: count,
		})
	}

	if lead != nil {
		p.BPM = lead.BPM
		if err := applyTracker(p, lead.TrackerDataJSON); err != nil {
			return nil, fault.Wrap(err, fmsg.With("shader "+lead.ID))
		}
		if err := applyPlaylist(p, lead.PlaylistDataJSON); err != nil {
			return nil, fault.Wrap(err, fmsg.With("shader "+lead.ID))
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fault.Wrap(err, fmsg.With("scene "+scene.Name))
	}
	return p, nil
}

// storedVertex maps the service's vertex field to a project vertex: empty
// or whitespace selects the fullscreen quad.
func storedVertex(src string) (string, int) {
	if strings.TrimSpace(src) == "" {
		return "", 0
	}
	if _, n, ok := shader.Builtin(src, graphics.WGSL); ok {
		return strings.TrimSpace(src), n
	}
	return src, defaultVertexCount
}

func uniqueName(seen map[string]int, sh *Shader) string {
	base := sh.Name
	if base == "" {
		base = sh.ID
	}
	seen[base]++
	if n := seen[base]; n > 1 {
		return fmt.Sprintf("%s#%d", base, n)
	}
	return base
}

func applyTracker(p *project.Project, doc string) error {
	if strings.TrimSpace(doc) == "" {
		return nil
	}
	var td trackerData
	if err := json.Unmarshal([]byte(doc), &td); err != nil {
		return fault.Wrap(err, ftag.With(ftag.InvalidArgument), fmsg.With("invalid tracker data"))
	}
	if td.BPM > 0 {
		p.BPM = td.BPM
	}
	p.RowsPerBeat, p.BeatsPerBar, p.Rows = td.RowsPerBeat, td.BeatsPerBar, td.Rows
	if len(td.Tracks) > 0 {
		p.Tracks = make(map[string][]tracker.Keyframe, len(td.Tracks))
	}
	for name, keys := range td.Tracks {
		out := make([]tracker.Keyframe, len(keys))
		for i, k := range keys {
			out[i] = tracker.Keyframe{Row: k.Row, Value: k.Value, Interp: k.Interpolation}
		}
		p.Tracks[name] = out
	}
	return nil
}

func applyPlaylist(p *project.Project, doc string) error {
	if strings.TrimSpace(doc) == "" {
		return nil
	}
	var entries []playlistEntry
	if err := json.Unmarshal([]byte(doc), &entries); err != nil {
		return fault.Wrap(err, ftag.With(ftag.InvalidArgument), fmsg.With("invalid playlist data"))
	}
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("entry%d", i)
		}
		vertex, count := storedVertex(e.VertexShader)
		if e.VertexCount > 0 {
			count = e.VertexCount
		}
		p.Sequence = append(p.Sequence, project.PlaylistEntry{
			Name:        name,
			Fragment:    e.FragmentShader,
			Vertex:      vertex,
			VertexCount: count,
			Bars:        e.DurationBars,
		})
	}
	return nil
}
