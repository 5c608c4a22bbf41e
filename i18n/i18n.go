package i18n

import (
	"ArtBot/lib/sl"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Localizer resolves user-facing message templates by language tag. The
// translation table is loaded once at startup and read-only afterwards.
type Localizer struct {
	translations map[string]map[string]string
	defaultLang  string
}

func NewLocalizer(dir, defaultLang string, log *slog.Logger) *Localizer {
	l := &Localizer{
		translations: make(map[string]map[string]string),
		defaultLang:  defaultLang,
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		log.Warn("listing locale files", sl.Err(err))
		return l
	}
	for _, file := range files {
		lang := strings.TrimSuffix(filepath.Base(file), ".json")
		content, err := os.ReadFile(file)
		if err != nil {
			log.Warn("reading locale file", slog.String("file", file), sl.Err(err))
			continue
		}
		var table map[string]string
		if err := json.Unmarshal(content, &table); err != nil {
			log.Warn("parsing locale file", slog.String("file", file), sl.Err(err))
			continue
		}
		l.translations[lang] = table
		log.Info("loaded locale", slog.String("lang", lang), slog.Int("keys", len(table)))
	}
	return l
}

// Get returns the template for key in lang, falling back to the default
// language and finally to the key itself so a missing translation is
// visible rather than silent.
func (l *Localizer) Get(lang, key string) string {
	if lang == "" {
		lang = l.defaultLang
	}
	if table, ok := l.translations[lang]; ok {
		if val, ok := table[key]; ok {
			return val
		}
	}
	if table, ok := l.translations[l.defaultLang]; ok {
		if val, ok := table[key]; ok {
			return val
		}
	}
	return key
}
