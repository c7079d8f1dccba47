package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/guyvdb/dsearch/docstore"
	"github.com/guyvdb/dsearch/schema"
)

var (
	errConfigFileRead = errors.New("cannot read config file")
	errConfigInvalid  = errors.New("invalid config")
	errNoFields       = errors.New("config declares no fields")
)

// Config is read from a JSON file that may contain comments and trailing
// commas:
//
//	{
//	  "db": "books.db",
//	  "index_dir": "books.idx",
//	  "tree": "books",
//	  "keys": "field",
//	  "fields": [
//	    {"name": "isbn", "type": "keyword", "pk": true},
//	    {"name": "title", "type": "text", "search": true},
//	    {"name": "rating", "type": "numeric"},
//	  ],
//	}
type Config struct {
	DB       string        `json:"db"`
	IndexDir string        `json:"index_dir"`
	Tree     string        `json:"tree"`
	Codec    string        `json:"codec"`
	Keys     string        `json:"keys"`
	LogLevel string        `json:"log_level"`
	Fields   []FieldConfig `json:"fields"`
}

// FieldConfig declares one field of the dynamic record schema.
type FieldConfig struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Search    bool   `json:"search"`
	Skip      bool   `json:"skip"`
	PK        bool   `json:"pk"`
	Analyzer  string `json:"analyzer"`
	Store     bool   `json:"store"`
	DocValues bool   `json:"docvalues"`
}

func loadConfig(path string, mustExist bool) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if mustExist || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
		}
		return Config{}, nil
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

// mergeConfig lays the non-empty values of overlay over base.
func mergeConfig(base, overlay Config) Config {
	if overlay.DB != "" {
		base.DB = overlay.DB
	}
	if overlay.IndexDir != "" {
		base.IndexDir = overlay.IndexDir
	}
	if overlay.Tree != "" {
		base.Tree = overlay.Tree
	}
	if overlay.Codec != "" {
		base.Codec = overlay.Codec
	}
	if overlay.Keys != "" {
		base.Keys = overlay.Keys
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if len(overlay.Fields) > 0 {
		base.Fields = overlay.Fields
	}
	return base
}

func (c Config) validate() error {
	if c.DB == "" {
		return fmt.Errorf("%w: db is required", errConfigInvalid)
	}
	if c.IndexDir == "" {
		return fmt.Errorf("%w: index_dir is required", errConfigInvalid)
	}
	if c.Tree == "" {
		return fmt.Errorf("%w: tree is required", errConfigInvalid)
	}
	if len(c.Fields) == 0 {
		return errNoFields
	}
	return nil
}

// Schema builds the record schema from the field declarations.
func (c Config) Schema() (*schema.Schema, error) {
	b := schema.NewBuilder(c.Tree)

	for _, fc := range c.Fields {
		ft := schema.Text
		if fc.Type != "" {
			t, err := schema.ParseFieldType(fc.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fc.Name, err)
			}
			ft = t
		}

		b.Field(schema.Field{
			Name: fc.Name,
			Type: ft,
			Options: schema.Options{
				Analyzer:  fc.Analyzer,
				Store:     fc.Store,
				DocValues: fc.DocValues,
			},
			DefaultSearch: fc.Search,
			Skip:          fc.Skip,
			PrimaryKey:    fc.PK,
		})
	}

	return b.Build()
}

// KeyStrategy maps the "keys" setting. Empty picks the store default.
func (c Config) KeyStrategy() (docstore.KeyStrategy, error) {
	switch strings.ToLower(c.Keys) {
	case "":
		return 0, nil
	case "auto":
		return docstore.KeyAuto, nil
	case "field":
		return docstore.KeyField, nil
	case "uuid":
		return docstore.KeyUUID, nil
	}
	return 0, fmt.Errorf("%w: unknown keys %q", errConfigInvalid, c.Keys)
}

func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level: %w", errConfigInvalid, err)
	}
	return level, nil
}
