package profile

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.md
var templatesFS embed.FS

// ResolveSystemProfile assembles the system prompt used for theme generation.
func ResolveSystemProfile() (string, error) {
	sections := make([]string, 0, len(defaultTemplateNames))
	for _, name := range defaultTemplateNames {
		section, err := LoadTemplate(name)
		if err != nil {
			return "", err
		}
		sections = append(sections, section)
	}
	return strings.Join(sections, "\n\n"), nil
}

func LoadTemplate(templateName string) (string, error) {
	content, err := templatesFS.ReadFile(templatePath(templateName))
	if err != nil {
		return "", fmt.Errorf("load %s profile template: %w", templateName, err)
	}

	profile := strings.TrimSpace(string(content))
	if profile == "" {
		return "", fmt.Errorf("profile template %q is empty", templateName)
	}

	return profile, nil
}

func templatePath(templateName string) string {
	return "templates/" + strings.TrimSpace(templateName) + ".md"
}
