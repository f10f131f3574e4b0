package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	EnvAPIKey    = "BINANCE_API_KEY"
	EnvSecretKey = "BINANCE_SECRET_KEY"
)

// Load reads the YAML file at path (following include: lists), fills defaults
// for keys the file leaves unset and validates the result.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	files, err := newIncludeResolver().resolve(root)
	if err != nil {
		return nil, err
	}

	merged := viper.New()
	merged.SetConfigType("yaml")
	for _, file := range files {
		part, err := readFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		if err := merged.MergeConfigMap(part.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := merged.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	keys := make(keySet)
	markKeys("", merged.AllSettings(), keys)
	cfg.applyDefaults(keys)
	cfg.Exchange.applyEnv()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeHook(dc *mapstructure.DecoderConfig) {
	dc.TagName = "toml"
	dc.WeaklyTypedInput = true
}

func readFile(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

// Credentials left blank in the file are taken from the environment.
func (e *ExchangeConfig) applyEnv() {
	if strings.TrimSpace(e.APIKey) == "" {
		e.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	}
	if strings.TrimSpace(e.SecretKey) == "" {
		e.SecretKey = strings.TrimSpace(os.Getenv(EnvSecretKey))
	}
}

// includeResolver orders config files depth-first so that included files
// are merged before the file that includes them.
type includeResolver struct {
	done     map[string]bool
	visiting map[string]bool
	order    []string
}

func newIncludeResolver() *includeResolver {
	return &includeResolver{done: map[string]bool{}, visiting: map[string]bool{}}
}

func (r *includeResolver) resolve(path string) ([]string, error) {
	if err := r.visit(filepath.Clean(path)); err != nil {
		return nil, err
	}
	return r.order, nil
}

func (r *includeResolver) visit(path string) error {
	switch {
	case r.visiting[path]:
		return fmt.Errorf("config include cycle at %s", path)
	case r.done[path]:
		return nil
	}
	r.visiting[path] = true
	v, err := readFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	includes, err := includeList(v.Get("include"))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.visit(filepath.Clean(inc)); err != nil {
			return err
		}
	}
	delete(r.visiting, path)
	r.done[path] = true
	r.order = append(r.order, path)
	return nil
}

func includeList(raw any) ([]string, error) {
	var items []any
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		items = []any{val}
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	case []any:
		items = val
	default:
		return nil, fmt.Errorf("include must be a list of paths")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include entries must be strings, got %T", item)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// markKeys records every leaf key path present in the merged settings so
// defaults never overwrite an explicit zero value.
func markKeys(prefix string, node any, keys keySet) {
	join := func(k string) string {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			if next := join(k); next != "" {
				markKeys(next, child, keys)
			}
		}
	case map[any]any:
		for k, child := range val {
			if s, ok := k.(string); ok {
				if next := join(s); next != "" {
					markKeys(next, child, keys)
				}
			}
		}
	default:
		if prefix != "" {
			keys.mark(prefix)
		}
	}
}
