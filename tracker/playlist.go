package tracker

// Entry is one shader in a playlist, played for DurationBars bars.
// An empty Vertex selects the fullscreen quad.
type Entry struct {
	Name         string
	Fragment     string
	Vertex       string
	VertexCount  int
	DurationBars int
}

// Playlist sequences shaders by bar.
type Playlist struct {
	entries []Entry
}

func (p *Playlist) Add(e Entry) *Playlist {
	p.entries = append(p.entries, e)
	return p
}

func (p *Playlist) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

func (p *Playlist) Len() int { return len(p.entries) }

// TotalBars is the summed duration of all entries with a positive length.
func (p *Playlist) TotalBars() int {
	total := 0
	for _, e := range p.entries {
		if e.DurationBars > 0 {
			total += e.DurationBars
		}
	}
	return total
}

// Resolve finds the entry playing at bar and the bar offset inside it.
// It reports false once bar runs past the end of the list.
func (p *Playlist) Resolve(bar int) (Entry, int, bool) {
	if bar < 0 {
		return Entry{}, 0, false
	}
	i, local, ok := p.index(bar)
	if !ok {
		return Entry{}, 0, false
	}
	return p.entries[i], local, true
}

// Index is Resolve returning the entry position instead of the entry.
func (p *Playlist) Index(bar int) (int, int, bool) {
	if bar < 0 {
		return 0, 0, false
	}
	return p.index(bar)
}

func (p *Playlist) index(bar int) (int, int, bool) {
	remaining := bar
	for i, e := range p.entries {
		if e.DurationBars <= 0 {
			continue
		}
		if remaining < e.DurationBars {
			return i, remaining, true
		}
		remaining -= e.DurationBars
	}
	return 0, 0, false
}
