package theme

import (
	"encoding/json"
	"maps"
)

const (
	ModeLight = "light"
	ModeDark  = "dark"
)

// StyleMap maps a token name (primary, font-sans, radius, shadow-blur, ...) to
// its CSS value. A partial map only carries the tokens that were set.
type StyleMap map[string]string

// Styles is a theme with one style map per color mode.
type Styles struct {
	Light StyleMap `json:"light" yaml:"light"`
	Dark  StyleMap `json:"dark" yaml:"dark"`
}

// Empty returns styles with both modes present but no tokens set.
func Empty() Styles {
	return Styles{Light: StyleMap{}, Dark: StyleMap{}}
}

func (s Styles) Clone() Styles {
	return Styles{Light: cloneMap(s.Light), Dark: cloneMap(s.Dark)}
}

func (s Styles) IsZero() bool {
	return len(s.Light) == 0 && len(s.Dark) == 0
}

// Mode returns the style map for "light" or "dark". Unknown modes return nil.
func (s Styles) Mode(mode string) StyleMap {
	switch mode {
	case ModeLight:
		return s.Light
	case ModeDark:
		return s.Dark
	default:
		return nil
	}
}

// MarshalJSON always emits both modes so that consumers never see null maps.
func (s Styles) MarshalJSON() ([]byte, error) {
	type wire struct {
		Light StyleMap `json:"light"`
		Dark  StyleMap `json:"dark"`
	}
	out := wire{Light: s.Light, Dark: s.Dark}
	if out.Light == nil {
		out.Light = StyleMap{}
	}
	if out.Dark == nil {
		out.Dark = StyleMap{}
	}
	return json.Marshal(out)
}

// MergeWithDefaults fills every default token missing from s. Tokens present in
// s win, including ones the defaults do not know about. The merge is flat per
// mode; nothing is merged below the token level.
func MergeWithDefaults(s Styles) Styles {
	defaults := Defaults()
	return Styles{
		Light: fill(defaults.Light, s.Light),
		Dark:  fill(defaults.Dark, s.Dark),
	}
}

func fill(base StyleMap, overrides StyleMap) StyleMap {
	out := make(StyleMap, len(base)+len(overrides))
	maps.Copy(out, base)
	for token, value := range overrides {
		out[token] = value
	}
	return out
}

func cloneMap(m StyleMap) StyleMap {
	if m == nil {
		return StyleMap{}
	}
	return maps.Clone(m)
}
