package prompt

import (
	"encoding/json"
	"strings"

	"themeforge/pkg/theme"
)

// FromMentions builds prompt data that references the given mention ids.
// Unlike Extract, a missing preset is an error: the caller picked these ids
// explicitly and must not silently send an empty theme.
func FromMentions(content string, ids []string, resolver Resolver) (Data, error) {
	mentions := make([]Mention, 0, len(ids))
	for _, id := range ids {
		mention, ok := resolver.Resolve(id)
		if !ok {
			return Data{}, presetNotFound(id)
		}
		mentions = append(mentions, mention)
	}
	return Data{Content: content, Mentions: mentions}, nil
}

func FromPreset(content string, presetID string, resolver Resolver) (Data, error) {
	return FromMentions(content, []string{presetID}, resolver)
}

// CurrentThemePrompt asks for changes against whatever the editor holds now.
func CurrentThemePrompt(request string, editor theme.Editor) Data {
	mention := Resolver{Editor: editor}.currentTheme()
	return Data{
		Content:  "Make the following changes to the @" + CurrentThemeLabel + ":\n" + request,
		Mentions: []Mention{mention},
	}
}

func AttachCurrentTheme(data Data, editor theme.Editor) Data {
	out := data.Clone()
	out.Mentions = append(out.Mentions, Resolver{Editor: editor}.currentTheme())
	return out
}

func MentionsCurrentTheme(data Data) bool {
	for _, m := range data.Mentions {
		if m.ID == CurrentThemeMentionID {
			return true
		}
	}
	return false
}

// BuildForAPI renders the text sent to the model: the prompt followed by one
// "@Label = <theme json>" block per mention. The model has no other channel for
// the referenced themes.
func BuildForAPI(data Data) string {
	refs := make([]string, 0, len(data.Mentions))
	for _, m := range data.Mentions {
		raw, err := json.Marshal(m.ThemeData)
		if err != nil {
			raw = []byte(`{"light":{},"dark":{}}`)
		}
		refs = append(refs, "@"+m.Label+" = \n  "+string(raw))
	}
	return data.Content + "\n\n" + strings.Join(refs, "\n")
}

// IsEmpty reports whether there is nothing worth sending: blank text and no
// images.
func IsEmpty(data *Data, images []Image) bool {
	if data != nil && strings.TrimSpace(data.Content) != "" {
		return false
	}
	if len(images) > 0 {
		return false
	}
	return data == nil || len(data.Images) == 0
}
