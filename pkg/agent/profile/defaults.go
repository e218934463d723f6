package profile

const (
	ThemeProfile  = "theme"
	OutputProfile = "output"
)

// defaultTemplateNames lists the templates that make up the system prompt, in
// order.
var defaultTemplateNames = []string{ThemeProfile, OutputProfile}
