// ABOUTME: Localized notice catalog loaded from embedded TOML files
// ABOUTME: The engine emits language-independent keys; this package renders them

package i18n

import (
	"embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed locales/*.toml
var localeFS embed.FS

// DefaultLanguage is used when a participant has no stored preference.
const DefaultLanguage = "ru"

// SupportedLanguages lists the catalog languages in preference order.
var SupportedLanguages = []string{"ru", "en"}

// Catalog renders localized notices by key.
type Catalog struct {
	languages map[string]map[string]string
}

// Load parses the embedded locale files into a catalog.
func Load() (*Catalog, error) {
	c := &Catalog{languages: make(map[string]map[string]string)}

	for _, lang := range SupportedLanguages {
		data, err := localeFS.ReadFile("locales/" + lang + ".toml")
		if err != nil {
			return nil, fmt.Errorf("reading locale %s: %w", lang, err)
		}
		texts := make(map[string]string)
		if err := toml.Unmarshal(data, &texts); err != nil {
			return nil, fmt.Errorf("parsing locale %s: %w", lang, err)
		}
		c.languages[lang] = texts
	}

	return c, nil
}

// Supported reports whether the language has a catalog.
func (c *Catalog) Supported(lang string) bool {
	_, ok := c.languages[lang]
	return ok
}

// Render returns the localized text for a key, substituting {arg} placeholders.
// Unknown languages fall back to the default; unknown keys render as the key
// itself so a missing translation is visible rather than silent.
func (c *Catalog) Render(lang, key string, args map[string]string) string {
	texts, ok := c.languages[lang]
	if !ok {
		texts = c.languages[DefaultLanguage]
	}
	text, ok := texts[key]
	if !ok {
		return key
	}
	for name, value := range args {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// Keys returns all keys present in the given language catalog.
func (c *Catalog) Keys(lang string) []string {
	var out []string
	for k := range c.languages[lang] {
		out = append(out, k)
	}
	return out
}
