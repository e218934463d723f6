package theme

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var builtinPresets []byte

// Preset is a saved theme that a prompt can mention by id.
type Preset struct {
	ID     string `yaml:"id" json:"id"`
	Label  string `yaml:"label" json:"label"`
	Styles Styles `yaml:"styles" json:"styles"`
}

// PresetStore looks up saved themes by id.
type PresetStore interface {
	Preset(id string) (Preset, bool)
	List() []Preset
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Registry is a PresetStore backed by the built-in preset catalogue plus an
// optional user YAML file. User presets replace built-ins with the same id.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Preset
}

// LoadRegistry reads the built-in presets and, when userPath is set, the user
// file on top. A missing user file is not an error.
func LoadRegistry(userPath string) (*Registry, error) {
	r := &Registry{byID: make(map[string]Preset)}
	if err := r.load(builtinPresets, "builtin"); err != nil {
		return nil, err
	}

	userPath = strings.TrimSpace(userPath)
	if userPath == "" {
		return r, nil
	}

	content, err := os.ReadFile(userPath)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}
	if err := r.load(content, userPath); err != nil {
		return nil, err
	}

	return r, nil
}

// NewRegistry builds a registry from presets held in memory.
func NewRegistry(presets ...Preset) *Registry {
	r := &Registry{byID: make(map[string]Preset)}
	for _, p := range presets {
		r.put(p)
	}
	return r
}

func (r *Registry) load(content []byte, source string) error {
	var file presetFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return fmt.Errorf("parse presets from %s: %w", source, err)
	}

	for i, p := range file.Presets {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return fmt.Errorf("preset %d in %s has no id", i, source)
		}
		if strings.TrimSpace(p.Label) == "" {
			p.Label = p.ID
		}
		r.put(p)
	}
	return nil
}

func (r *Registry) put(p Preset) {
	p.Styles = p.Styles.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.byID[p.ID] = p
}

func (r *Registry) Preset(id string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return Preset{}, false
	}
	p.Styles = p.Styles.Clone()
	return p, true
}

func (r *Registry) List() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Preset, 0, len(r.order))
	for _, id := range r.order {
		p := r.byID[id]
		p.Styles = p.Styles.Clone()
		out = append(out, p)
	}
	return out
}
