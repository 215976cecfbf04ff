// Package settings manages the user preference file. Unlike the process
// configuration (environment driven, see the config package) these values
// persist across runs and are edited through the config subcommands.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	validator "github.com/go-playground/validator/v10"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/packtrack/internal/common"
)

// Settings are the per-user tracking preferences.
type Settings struct {
	// CacheSeconds is the max age for an in-transit cache entry to be
	// reused. Zero means in-transit entries are never reused; delivered
	// ones still are.
	CacheSeconds int `koanf:"cache_seconds" json:"cache_seconds" validate:"min=0"`
	// CacheMaxEntries bounds the cached history per URL. Zero means
	// unbounded.
	CacheMaxEntries int    `koanf:"cache_max_entries" json:"cache_max_entries" validate:"min=0"`
	UseCache        bool   `koanf:"use_cache" json:"use_cache"`
	Postcode        string `koanf:"postcode" json:"postcode" validate:"omitempty,alphanum,max=16"`
	Language        string `koanf:"language" json:"language" validate:"omitempty,bcp47_language_tag"`
	URLsFile        string `koanf:"urls_file" json:"urls_file" validate:"required"`
}

// Default returns the settings used when no file exists yet. The URL list
// defaults to a dotfile-style location in the user's home directory.
func Default() Settings {
	urlsFile := "packtrack.urls"
	if home, err := os.UserHomeDir(); err == nil {
		urlsFile = filepath.Join(home, "packtrack.urls")
	}
	return Settings{
		CacheSeconds:    30,
		CacheMaxEntries: 10,
		UseCache:        true,
		Language:        "en",
		URLsFile:        urlsFile,
	}
}

// DefaultPath returns the settings file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "packtrack", "settings.json"), nil
}

// Store reads and writes the settings file.
type Store struct {
	Path     string
	Validate *validator.Validate
}

// NewStore returns a store for the settings file at path.
func NewStore(path string, v *validator.Validate) *Store {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Store{Path: path, Validate: v}
}

// Load merges the settings file over the defaults, so a partial file is
// fine and a missing one yields pure defaults. Unknown keys in the file
// are ignored; a corrupt file is an error.
func (s *Store) Load() (Settings, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultsMap(Default()), "."), nil); err != nil {
		return Settings{}, fmt.Errorf("load default settings: %w", err)
	}
	if _, err := os.Stat(s.Path); err == nil {
		if err := k.Load(file.Provider(s.Path), kjson.Parser()); err != nil {
			return Settings{}, fmt.Errorf("load settings %s: %w", s.Path, err)
		}
	}
	var out Settings
	if err := k.Unmarshal("", &out); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", s.Path, err)
	}
	if err := s.Validate.Struct(out); err != nil {
		return Settings{}, fmt.Errorf("validate settings %s: %w", s.Path, err)
	}
	return out, nil
}

// Save writes the settings file wholesale, creating parent directories.
func (s *Store) Save(sets Settings) error {
	if err := s.Validate.Struct(sets); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}
	if err := common.SaveJSON(s.Path, sets); err != nil {
		return fmt.Errorf("save settings %s: %w", s.Path, err)
	}
	return nil
}

// Set parses and applies one key=value update on top of the current
// settings, then validates and saves the result.
func (s *Store) Set(key, value string) (Settings, error) {
	sets, err := s.Load()
	if err != nil {
		return Settings{}, err
	}
	switch key {
	case "cache_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return Settings{}, fmt.Errorf("cache_seconds must be an integer: %w", err)
		}
		sets.CacheSeconds = n
	case "cache_max_entries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return Settings{}, fmt.Errorf("cache_max_entries must be an integer: %w", err)
		}
		sets.CacheMaxEntries = n
	case "use_cache":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return Settings{}, fmt.Errorf("use_cache must be a boolean: %w", err)
		}
		sets.UseCache = b
	case "postcode":
		sets.Postcode = value
	case "language":
		sets.Language = value
	case "urls_file":
		sets.URLsFile = value
	default:
		return Settings{}, fmt.Errorf("unknown settings key %q", key)
	}
	if err := s.Save(sets); err != nil {
		return Settings{}, err
	}
	return sets, nil
}

// Reset rewrites the settings file with pure defaults.
func (s *Store) Reset() (Settings, error) {
	sets := Default()
	if err := s.Save(sets); err != nil {
		return Settings{}, err
	}
	return sets, nil
}

// KeyValue is one settings entry for display.
type KeyValue struct {
	Key   string
	Value string
}

// List renders the settings as key/value pairs in stable key order.
func (s Settings) List() []KeyValue {
	return []KeyValue{
		{Key: "cache_max_entries", Value: strconv.Itoa(s.CacheMaxEntries)},
		{Key: "cache_seconds", Value: strconv.Itoa(s.CacheSeconds)},
		{Key: "language", Value: s.Language},
		{Key: "postcode", Value: s.Postcode},
		{Key: "urls_file", Value: s.URLsFile},
		{Key: "use_cache", Value: strconv.FormatBool(s.UseCache)},
	}
}

func defaultsMap(d Settings) map[string]any {
	return map[string]any{
		"cache_seconds":     d.CacheSeconds,
		"cache_max_entries": d.CacheMaxEntries,
		"use_cache":         d.UseCache,
		"postcode":          d.Postcode,
		"language":          d.Language,
		"urls_file":         d.URLsFile,
	}
}
