package prompt

import (
	"errors"
	"fmt"

	"themeforge/pkg/theme"
)

const (
	CurrentThemeMentionID = "editor:current-changes"
	CurrentThemeLabel     = "Current Theme"
)

var ErrPresetNotFound = errors.New("theme preset not found")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mention is a reference to a theme embedded in the prompt text as @Label.
type Mention struct {
	ID        string       `json:"id"`
	Label     string       `json:"label"`
	ThemeData theme.Styles `json:"themeData"`
}

type Image struct {
	URL string `json:"url"`
}

// Data is a flattened prompt: free text with @Label references that line up
// with Mentions by label, plus attached images.
type Data struct {
	Content  string    `json:"content"`
	Mentions []Mention `json:"mentions"`
	Images   []Image   `json:"images,omitempty"`
}

// ChatMessage is one entry of the conversation log. User messages carry
// PromptData; assistant messages carry Content and optionally the theme that
// turn produced.
type ChatMessage struct {
	ID          string        `json:"id"`
	Role        Role          `json:"role"`
	Timestamp   int64         `json:"timestamp"`
	PromptData  *Data         `json:"promptData,omitempty"`
	Content     string        `json:"content,omitempty"`
	ThemeStyles *theme.Styles `json:"themeStyles,omitempty"`
	IsError     bool          `json:"isError,omitempty"`
}

// Clone returns a deep copy so callers can hand messages out without sharing
// the underlying maps and slices.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.PromptData != nil {
		data := m.PromptData.Clone()
		out.PromptData = &data
	}
	if m.ThemeStyles != nil {
		styles := m.ThemeStyles.Clone()
		out.ThemeStyles = &styles
	}
	return out
}

func (d Data) Clone() Data {
	out := Data{Content: d.Content}
	if d.Mentions != nil {
		out.Mentions = make([]Mention, len(d.Mentions))
		for i, m := range d.Mentions {
			out.Mentions[i] = Mention{ID: m.ID, Label: m.Label, ThemeData: m.ThemeData.Clone()}
		}
	}
	if d.Images != nil {
		out.Images = append([]Image(nil), d.Images...)
	}
	return out
}

// Resolver turns mention ids into theme data. The current-theme id reads the
// editor; anything else is looked up as a preset.
type Resolver struct {
	Editor  theme.Editor
	Presets theme.PresetStore
}

// Resolve returns the mention for id. ok is false when the id names a preset
// that does not exist.
func (r Resolver) Resolve(id string) (Mention, bool) {
	if id == CurrentThemeMentionID {
		return r.currentTheme(), true
	}

	if r.Presets == nil {
		return Mention{ID: id, Label: id, ThemeData: theme.Empty()}, false
	}
	preset, ok := r.Presets.Preset(id)
	if !ok {
		return Mention{ID: id, Label: id, ThemeData: theme.Empty()}, false
	}

	label := preset.Label
	if label == "" {
		label = id
	}
	return Mention{ID: id, Label: label, ThemeData: preset.Styles.Clone()}, true
}

func (r Resolver) currentTheme() Mention {
	styles := theme.Empty()
	if r.Editor != nil {
		styles = r.Editor.Current()
	}
	return Mention{ID: CurrentThemeMentionID, Label: CurrentThemeLabel, ThemeData: styles}
}

func presetNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrPresetNotFound, id)
}
