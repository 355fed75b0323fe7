package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider      string `yaml:"provider"`
	APIKey        string `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel    string `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	ProjectID     string `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location      string `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	Dim           int    `yaml:"providerDim" envconfig:"EMBED_DIM"`
	ModelCacheDir string `yaml:"modelCacheDir" split_words:"true"`

	StoreBackend string `yaml:"storeBackend" split_words:"true"`
	PersistDir   string `yaml:"persistDir" split_words:"true"`
	Compress     bool   `yaml:"compress"`
	Database     string `yaml:"database" envconfig:"DB_URL"`
	Collection   string `yaml:"collection"`

	SourcePath   string `yaml:"sourcePath" split_words:"true"`
	SourceID     string `yaml:"sourceID" split_words:"true"`
	ChunkSize    int    `yaml:"chunkSize" split_words:"true"`
	ChunkOverlap int    `yaml:"chunkOverlap" split_words:"true"`
	BatchSize    int    `yaml:"batchSize" split_words:"true"`
	TopK         int    `yaml:"topK" split_words:"true"`

	Generation    GenerationSpecification `yaml:"generation"`
	AssistantName string                  `yaml:"assistantName" split_words:"true"`

	LogLevel    string            `yaml:"logLevel" split_words:"true"`
	Port        int               `yaml:"port" split_words:"true"`
	FrontendDir string            `yaml:"frontendDir" split_words:"true"`
	Auth        AuthSpecification `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type GenerationSpecification struct {
	Backend      string        `yaml:"backend"`
	URL          string        `yaml:"url"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey" split_words:"true"`
	MaxNewTokens int           `yaml:"maxNewTokens" split_words:"true"`
	Temperature  float64       `yaml:"temperature"`
	ProbeTimeout time.Duration `yaml:"probeTimeout" split_words:"true"`
	Timeout      time.Duration `yaml:"timeout"`
}

type AuthSpecification struct {
	Enabled   bool   `yaml:"enabled"`
	JwtSecret string `yaml:"jwtSecret" split_words:"true"`
}

const envPrefix = "DOCCHAT"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover. args are the command line
// arguments without the program name.
func Load(configPath string, fs *pflag.FlagSet, args []string) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg, args)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/docchat.yaml",
				"config/config.yaml",
				"./docchat.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(args); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if err := cfg.Validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail deep inside a build
// or a request.
func (s *Specification) Validate() error {
	var errs []error
	if s.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunkSize must be positive, got %d", s.ChunkSize))
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		errs = append(errs, fmt.Errorf("chunkOverlap must be in [0, chunkSize), got %d", s.ChunkOverlap))
	}
	if s.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batchSize must be positive, got %d", s.BatchSize))
	}
	if s.TopK <= 0 {
		errs = append(errs, fmt.Errorf("topK must be positive, got %d", s.TopK))
	}
	switch strings.ToLower(strings.TrimSpace(s.StoreBackend)) {
	case "chromem", "":
		if strings.TrimSpace(s.PersistDir) == "" {
			errs = append(errs, errors.New(envPrefix+"_PERSIST_DIR is required for the chromem store"))
		}
	case "postgres":
		if strings.TrimSpace(s.Database) == "" {
			errs = append(errs, errors.New(envPrefix+"_DB_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storeBackend %q", s.StoreBackend))
	}
	if s.Auth.Enabled && strings.TrimSpace(s.Auth.JwtSecret) == "" {
		errs = append(errs, errors.New(envPrefix+"_AUTH_JWT_SECRET is required when auth is enabled"))
	}
	return errors.Join(errs...)
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification, args []string) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range args {
		if a == "--config" {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Embedding provider (stub|openai|vertexai|fastembed)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality (0 = provider default)")
	fs.String("model-cache-dir", c.ModelCacheDir, "Directory for downloaded local models")

	fs.String("store-backend", c.StoreBackend, "Vector store backend (chromem|postgres)")
	fs.String("persist-dir", c.PersistDir, "Vector database directory (chromem)")
	fs.Bool("compress", c.Compress, "Gzip persisted documents (chromem)")
	fs.String("db-url", c.Database, "Database URL (DSN, postgres)")
	fs.String("collection", c.Collection, "Collection name")

	fs.String("source", c.SourcePath, "Text file or directory to index")
	fs.String("source-id", c.SourceID, "Source id for a single file (default: file name)")
	fs.Int("chunk-size", c.ChunkSize, "Chunk size in characters")
	fs.Int("chunk-overlap", c.ChunkOverlap, "Overlap between consecutive chunks in characters")
	fs.Int("batch-size", c.BatchSize, "Chunks embedded and stored per batch")
	fs.Int("top-k", c.TopK, "Chunks retrieved per question")

	fs.String("generation-backend", c.Generation.Backend, "Generation backend (completions|vertexai)")
	fs.String("generation-url", c.Generation.URL, "Generation server base URL")
	fs.String("generation-model", c.Generation.Model, "Generation model")
	fs.String("generation-api-key", c.Generation.APIKey, "Generation server API key")
	fs.Int("max-new-tokens", c.Generation.MaxNewTokens, "Maximum tokens to generate")
	fs.Float64("temperature", c.Generation.Temperature, "Sampling temperature")
	fs.Duration("probe-timeout", c.Generation.ProbeTimeout, "Generation liveness probe timeout")
	fs.Duration("generation-timeout", c.Generation.Timeout, "Generation request timeout")
	fs.String("assistant-name", c.AssistantName, "Subject the assistant is an expert in")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")
	fs.String("frontend-dir", c.FrontendDir, "Directory of static frontend files to serve")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require a bearer token on /chat")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for verifying tokens")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}
	setDur := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			v, _ := fs.GetDuration(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setInt("embed-dim", &c.Dim)
	setStr("model-cache-dir", &c.ModelCacheDir)

	setStr("store-backend", &c.StoreBackend)
	setStr("persist-dir", &c.PersistDir)
	setBool("compress", &c.Compress)
	setStr("db-url", &c.Database)
	setStr("collection", &c.Collection)

	setStr("source", &c.SourcePath)
	setStr("source-id", &c.SourceID)
	setInt("chunk-size", &c.ChunkSize)
	setInt("chunk-overlap", &c.ChunkOverlap)
	setInt("batch-size", &c.BatchSize)
	setInt("top-k", &c.TopK)

	setStr("generation-backend", &c.Generation.Backend)
	setStr("generation-url", &c.Generation.URL)
	setStr("generation-model", &c.Generation.Model)
	setStr("generation-api-key", &c.Generation.APIKey)
	setInt("max-new-tokens", &c.Generation.MaxNewTokens)
	setFloat("temperature", &c.Generation.Temperature)
	setDur("probe-timeout", &c.Generation.ProbeTimeout)
	setDur("generation-timeout", &c.Generation.Timeout)
	setStr("assistant-name", &c.AssistantName)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)
	setStr("frontend-dir", &c.FrontendDir)

	// Auth flags
	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
}

func setDefaults(c *Specification) {
	c.LogLevel = "info"
	c.Provider = "stub"
	c.Location = "us-central1"
	c.Dim = 0
	c.ModelCacheDir = "local_cache"

	c.StoreBackend = "chromem"
	c.PersistDir = "chroma_db"
	c.Collection = "docs"

	c.SourcePath = "docs.txt"
	c.ChunkSize = 500
	c.ChunkOverlap = 100
	c.BatchSize = 64
	c.TopK = 5

	c.Generation.Backend = "completions"
	c.Generation.URL = "http://localhost:1234"
	c.Generation.Model = "qwen2.5-7b-instruct"
	c.Generation.MaxNewTokens = 400
	c.Generation.Temperature = 0.2
	c.Generation.ProbeTimeout = 5 * time.Second
	c.Generation.Timeout = 60 * time.Second
	c.AssistantName = "documentation"

	c.Port = 5000
	c.Auth.Enabled = false
}
