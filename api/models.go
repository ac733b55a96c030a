package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/richinsley/shaderforge/tracker"
)

// --- Structs for ShaderForge API responses ---

// Timestamp decodes RFC 3339 times and the zone-less form the service
// writes for unspecified dates.
type Timestamp struct {
	time.Time
}

const zoneless = "2006-01-02T15:04:05.999999999"

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t, err = time.Parse(zoneless, s); err != nil {
			return fmt.Errorf("invalid timestamp %q", s)
		}
	}
	ts.Time = t
	return nil
}

type ShaderType int

const (
	PixelShader ShaderType = iota
	PostFx
)

func (t ShaderType) String() string {
	if t == PostFx {
		return "PostFx"
	}
	return "PixelShader"
}

func (t ShaderType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// UnmarshalJSON accepts the enum name or its number; the service emits
// either depending on its serializer settings.
func (t *ShaderType) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		if n != int(PixelShader) && n != int(PostFx) {
			return fmt.Errorf("unknown scene shader type %d", n)
		}
		*t = ShaderType(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "PixelShader":
		*t = PixelShader
	case "PostFx":
		*t = PostFx
	default:
		return fmt.Errorf("unknown scene shader type %q", s)
	}
	return nil
}

type SceneShaderEntry struct {
	ShaderID string     `json:"shaderId"`
	Type     ShaderType `json:"type"`
	Order    int        `json:"order"`
}

type Scene struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Shaders   []SceneShaderEntry `json:"shaders"`
	CreatedBy string             `json:"createdBy,omitempty"`
	CreatedAt Timestamp          `json:"createdAt"`
	UpdatedAt Timestamp          `json:"updatedAt"`
	IsPublic  bool               `json:"isPublic"`
}

type Shader struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	VertexShaderCode   string    `json:"vertexShaderCode"`
	FragmentShaderCode string    `json:"fragmentShaderCode"`
	Description        string    `json:"description,omitempty"`
	CreatedAt          Timestamp `json:"createdAt"`
	UpdatedAt          Timestamp `json:"updatedAt"`
	CreatedBy          string    `json:"createdBy,omitempty"`
	Thumbnail          string    `json:"thumbnail,omitempty"`
	IsPublic           bool      `json:"isPublic"`
	BPM                float64   `json:"bpm"`
	Tags               []string  `json:"tags"`
	TrackerDataJSON    string    `json:"trackerDataJson,omitempty"`
	PlaylistDataJSON   string    `json:"playlistDataJson,omitempty"`
}

// trackerData is the document stored in Shader.TrackerDataJSON.
type trackerData struct {
	BPM         float64                `json:"bpm"`
	RowsPerBeat int                    `json:"rowsPerBeat"`
	BeatsPerBar int                    `json:"beatsPerBar"`
	Rows        int                    `json:"rows"`
	Tracks      map[string][]keyframe `json:"tracks"`
}

type keyframe struct {
	Row           float64               `json:"row"`
	Value         float64               `json:"value"`
	Interpolation tracker.Interpolation `json:"interpolation"`
}

// playlistEntry is one element of Shader.PlaylistDataJSON.
type playlistEntry struct {
	Name           string `json:"name"`
	FragmentShader string `json:"fragmentShader"`
	VertexShader   string `json:"vertexShader,omitempty"`
	VertexCount    int    `json:"vertexCount,omitempty"`
	DurationBars   int    `json:"durationBars"`
}
