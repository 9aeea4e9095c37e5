package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/portfolio-globe/backend/internal/util"
)

const (
	EnvPrefix   = "GLOBE_"
	DefaultFile = "globe.toml"
)

type Server struct {
	Port      int    `koanf:"port" validate:"min=1,max=65535"`
	BodyLimit string `koanf:"bodylimit"`
	// Idle closes sessions without requests or frame streams for that
	// long. Zero disables it.
	Idle time.Duration `koanf:"idle" validate:"min=0"`
}

type Log struct {
	Debug bool `koanf:"debug"`
	JSON  bool `koanf:"json"`
}

type Local struct {
	URL      string `koanf:"url"`
	Model    string `koanf:"model"`
	Parallel int64  `koanf:"parallel" validate:"min=1"`
}

type Remote struct {
	URL   string `koanf:"url"`
	Key   string `koanf:"key"`
	Model string `koanf:"model"`
}

type AI struct {
	Provider string `koanf:"provider" validate:"oneof=local remote openrouter"`
	Local    Local  `koanf:"local"`
	Remote   Remote `koanf:"remote"`
}

type Ledger struct {
	URL      string `koanf:"url"`
	Program  string `koanf:"program"`
	Module   string `koanf:"module"`
	Function string `koanf:"function"`
	PageSize int    `koanf:"pagesize" validate:"min=1,max=100"`
	Tries    int    `koanf:"tries" validate:"min=1"`
}

type Proxy struct {
	RPS     float64       `koanf:"rps" validate:"min=0"`
	Burst   int           `koanf:"burst" validate:"min=0"`
	Timeout time.Duration `koanf:"timeout"`
}

// Storage configures the image cache. An empty bucket keeps images in
// memory, bounded by Memory bytes.
type Storage struct {
	Bucket   string `koanf:"bucket"`
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`
	Access   string `koanf:"access"`
	Secret   string `koanf:"secret"`
	Memory   int64  `koanf:"memory" validate:"min=0"`
}

type Globe struct {
	Polygons string `koanf:"polygons"`
}

type Graph struct {
	Seeds []string `koanf:"seeds"`
}

type Render struct {
	FPS   int           `koanf:"fps" validate:"min=1,max=120"`
	Decay time.Duration `koanf:"decay"`
}

// Config holds all configuration of the service.
type Config struct {
	Server  Server  `koanf:"server"`
	Log     Log     `koanf:"log"`
	AI      AI      `koanf:"ai"`
	Ledger  Ledger  `koanf:"ledger"`
	Proxy   Proxy   `koanf:"proxy"`
	Storage Storage `koanf:"storage"`
	Globe   Globe   `koanf:"globe"`
	Graph   Graph   `koanf:"graph"`
	Render  Render  `koanf:"render"`
}

// Defaults are the lowest configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":       8080,
		"server.bodylimit":  "1M",
		"server.idle":       "10m",
		"log.debug":         false,
		"log.json":          false,
		"ai.provider":       "local",
		"ai.local.url":      "http://127.0.0.1:11434",
		"ai.local.model":    "llama3.2",
		"ai.local.parallel": 4,
		"ai.remote.url":     "https://openrouter.ai/api/v1",
		"ai.remote.key":     "",
		"ai.remote.model":   "meta-llama/llama-3.1-8b-instruct:free",
		"ledger.url":        "https://fullnode.devnet.sui.io:443",
		"ledger.program":    "0x650f80cba49c47fafa4ed605f2afbb683ec960cfe2f16eb9a612a5838a82f159",
		"ledger.module":     "my_nft",
		"ledger.function":   "mint",
		"ledger.pagesize":   50,
		"ledger.tries":      2,
		"proxy.rps":         10.0,
		"proxy.burst":       20,
		"proxy.timeout":     "15s",
		"storage.bucket":    "",
		"storage.region":    "us-east-1",
		"storage.endpoint":  "",
		"storage.access":    "",
		"storage.secret":    "",
		"storage.memory":    64 << 20,
		"globe.polygons":    "ne_110m_admin_0_countries.geojson",
		"graph.seeds":       []string{"ocean", "music", "light"},
		"render.fps":        30,
		"render.decay":      "50ms",
	}
}

// Flags registers the command-line overrides Load understands.
func Flags(f *pflag.FlagSet) {
	f.String("config", util.GetEnvString(EnvPrefix+"CONFIG", DefaultFile), "path to a toml configuration file")
	f.Int("server.port", 8080, "HTTP port")
	f.Bool("log.debug", false, "enable debug logging")
	f.Bool("log.json", false, "log as JSON")
	f.String("ai.provider", "local", "default relation provider: local or remote")
	f.String("globe.polygons", "ne_110m_admin_0_countries.geojson", "country polygons GeoJSON file")
}

// Load layers defaults, the toml file, GLOBE_ environment variables and
// changed flags, in increasing priority.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path := DefaultFile
	if f != nil {
		if p, err := f.GetString("config"); err == nil && p != "" {
			path = p
		}
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// GLOBE_AI_REMOTE_KEY -> ai.remote.key
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

type mapProvider map[string]any

func (p mapProvider) Read() (map[string]any, error) {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return unflatten(out), nil
}

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("not implemented")
}

// unflatten turns dotted keys into nested maps.
func unflatten(flat map[string]any) map[string]any {
	out := map[string]any{}
	for key, v := range flat {
		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	return out
}
