package theme

var defaultLight = StyleMap{
	"background":                 "#ffffff",
	"foreground":                 "#0a0a0a",
	"card":                       "#ffffff",
	"card-foreground":            "#0a0a0a",
	"popover":                    "#ffffff",
	"popover-foreground":         "#0a0a0a",
	"primary":                    "#171717",
	"primary-foreground":         "#fafafa",
	"secondary":                  "#f5f5f5",
	"secondary-foreground":       "#171717",
	"muted":                      "#f5f5f5",
	"muted-foreground":           "#737373",
	"accent":                     "#f5f5f5",
	"accent-foreground":          "#171717",
	"destructive":                "#e7000b",
	"destructive-foreground":     "#ffffff",
	"border":                     "#e5e5e5",
	"input":                      "#e5e5e5",
	"ring":                       "#a1a1a1",
	"chart-1":                    "#f54a00",
	"chart-2":                    "#009689",
	"chart-3":                    "#104e64",
	"chart-4":                    "#ffb900",
	"chart-5":                    "#fe9a00",
	"sidebar":                    "#fafafa",
	"sidebar-foreground":         "#0a0a0a",
	"sidebar-primary":            "#171717",
	"sidebar-primary-foreground": "#fafafa",
	"sidebar-accent":             "#f5f5f5",
	"sidebar-accent-foreground":  "#171717",
	"sidebar-border":             "#e5e5e5",
	"sidebar-ring":               "#a1a1a1",
	"font-sans":                  "ui-sans-serif, system-ui, sans-serif",
	"font-serif":                 "ui-serif, Georgia, Cambria, serif",
	"font-mono":                  "ui-monospace, SFMono-Regular, Menlo, monospace",
	"radius":                     "0.625rem",
	"shadow-color":               "#000000",
	"shadow-opacity":             "0.1",
	"shadow-blur":                "3px",
	"shadow-spread":              "0px",
	"shadow-offset-x":            "0",
	"shadow-offset-y":            "1px",
	"letter-spacing":             "0em",
	"spacing":                    "0.25rem",
}

var defaultDark = StyleMap{
	"background":                 "#0a0a0a",
	"foreground":                 "#fafafa",
	"card":                       "#171717",
	"card-foreground":            "#fafafa",
	"popover":                    "#262626",
	"popover-foreground":         "#fafafa",
	"primary":                    "#e5e5e5",
	"primary-foreground":         "#171717",
	"secondary":                  "#262626",
	"secondary-foreground":       "#fafafa",
	"muted":                      "#262626",
	"muted-foreground":           "#a1a1a1",
	"accent":                     "#404040",
	"accent-foreground":          "#fafafa",
	"destructive":                "#ff6467",
	"destructive-foreground":     "#fafafa",
	"border":                     "#282828",
	"input":                      "#343434",
	"ring":                       "#737373",
	"chart-1":                    "#1447e6",
	"chart-2":                    "#00bc7d",
	"chart-3":                    "#fe9a00",
	"chart-4":                    "#ad46ff",
	"chart-5":                    "#ff2056",
	"sidebar":                    "#171717",
	"sidebar-foreground":         "#fafafa",
	"sidebar-primary":            "#1447e6",
	"sidebar-primary-foreground": "#fafafa",
	"sidebar-accent":             "#262626",
	"sidebar-accent-foreground":  "#fafafa",
	"sidebar-border":             "#282828",
	"sidebar-ring":               "#525252",
	"font-sans":                  "ui-sans-serif, system-ui, sans-serif",
	"font-serif":                 "ui-serif, Georgia, Cambria, serif",
	"font-mono":                  "ui-monospace, SFMono-Regular, Menlo, monospace",
	"radius":                     "0.625rem",
	"shadow-color":               "#000000",
	"shadow-opacity":             "0.1",
	"shadow-blur":                "3px",
	"shadow-spread":              "0px",
	"shadow-offset-x":            "0",
	"shadow-offset-y":            "1px",
	"letter-spacing":             "0em",
	"spacing":                    "0.25rem",
}

// Defaults returns a fresh copy of the default theme.
func Defaults() Styles {
	return Styles{Light: cloneMap(defaultLight), Dark: cloneMap(defaultDark)}
}
