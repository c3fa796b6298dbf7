package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"

	"github.com/datar-psa/goanchor/api"
	"github.com/datar-psa/goanchor/embedcache"
	"github.com/datar-psa/goanchor/gemini"
	"github.com/datar-psa/goanchor/openai"
)

const (
	defaultGeminiModel  = "text-embedding-005"
	defaultGoogleRegion = "us-central1"
)

const (
	providerFlag      = "provider"
	modelFlag         = "model"
	projectFlag       = "project"
	regionFlag        = "region"
	googleAPIKeyFlag  = "google-api-key"
	openaiBaseURLFlag = "openai-base-url"
	openaiAPIKeyFlag  = "openai-api-key"
	timeoutFlag       = "timeout"

	cacheDBFlag   = "cache-db"
	redisAddrFlag = "redis-addr"
	redisTTLFlag  = "redis-ttl"
)

func providerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    providerFlag,
			Usage:   "Embedding provider [gemini, openai]",
			Value:   providerGemini,
			Sources: cli.EnvVars("GOANCHOR_PROVIDER"),
		},
		&cli.StringFlag{
			Name:    modelFlag,
			Usage:   "Embedding model (optional, defaults per provider)",
			Sources: cli.EnvVars("GOANCHOR_MODEL"),
		},
		&cli.StringFlag{
			Name:    projectFlag,
			Usage:   "Google Cloud project for Vertex AI",
			Sources: cli.EnvVars("GOOGLE_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:    regionFlag,
			Usage:   "Google Cloud region for Vertex AI",
			Value:   defaultGoogleRegion,
			Sources: cli.EnvVars("GOOGLE_REGION"),
		},
		&cli.StringFlag{
			Name:    googleAPIKeyFlag,
			Usage:   "Gemini API key; uses the Gemini API instead of Vertex AI when set",
			Sources: cli.EnvVars("GOOGLE_API_KEY"),
		},
		&cli.StringFlag{
			Name:    openaiBaseURLFlag,
			Usage:   "OpenAI-compatible API root",
			Value:   openai.DefaultBaseURL,
			Sources: cli.EnvVars("OPENAI_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    openaiAPIKeyFlag,
			Usage:   "OpenAI API key",
			Sources: cli.EnvVars("OPENAI_API_KEY"),
		},
		&cli.DurationFlag{
			Name:    timeoutFlag,
			Usage:   "Per-request timeout for HTTP embedding providers",
			Value:   60 * time.Second,
			Sources: cli.EnvVars("GOANCHOR_TIMEOUT"),
		},
	}
}

func cacheFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    cacheDBFlag,
			Usage:   "Path to a SQLite file caching embeddings across runs (optional)",
			Sources: cli.EnvVars("GOANCHOR_CACHE_DB"),
		},
		&cli.StringFlag{
			Name:    redisAddrFlag,
			Usage:   "Redis address caching embeddings across processes (optional)",
			Sources: cli.EnvVars("GOANCHOR_REDIS_ADDR"),
		},
		&cli.DurationFlag{
			Name:    redisTTLFlag,
			Usage:   "Expiry of embeddings cached in Redis, 0 keeps them",
			Sources: cli.EnvVars("GOANCHOR_REDIS_TTL"),
		},
	}
}

type providerConfig struct {
	Provider      string
	Model         string
	Project       string
	Region        string
	GoogleAPIKey  string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	Timeout       time.Duration
}

func providerConfigFrom(cmd *cli.Command) providerConfig {
	return providerConfig{
		Provider:      cmd.String(providerFlag),
		Model:         cmd.String(modelFlag),
		Project:       cmd.String(projectFlag),
		Region:        cmd.String(regionFlag),
		GoogleAPIKey:  cmd.String(googleAPIKeyFlag),
		OpenAIBaseURL: cmd.String(openaiBaseURLFlag),
		OpenAIAPIKey:  cmd.String(openaiAPIKeyFlag),
		Timeout:       cmd.Duration(timeoutFlag),
	}
}

// embedderFactory builds the backend embedder and reports the model it uses
type embedderFactory func(ctx context.Context, cfg providerConfig) (api.Embedder, string, error)

func newProviderEmbedder(ctx context.Context, cfg providerConfig) (api.Embedder, string, error) {
	switch cfg.Provider {
	case providerGemini:
		clientConfig := &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.Project,
			Location: cfg.Region,
		}
		if cfg.GoogleAPIKey != "" {
			clientConfig = &genai.ClientConfig{
				Backend: genai.BackendGeminiAPI,
				APIKey:  cfg.GoogleAPIKey,
			}
		} else if cfg.Project == "" {
			return nil, "", errors.New("gemini provider requires --project (GOOGLE_PROJECT_ID) or --google-api-key")
		}

		client, err := genai.NewClient(ctx, clientConfig)
		if err != nil {
			return nil, "", fmt.Errorf("error creating genai client: %w", err)
		}
		model := cfg.Model
		if model == "" {
			model = defaultGeminiModel
		}
		return gemini.NewEmbedder(client, model, gemini.EmbedderOptions{TaskType: "SEMANTIC_SIMILARITY"}), model, nil

	case providerOpenAI:
		e := openai.NewEmbedder(openai.Options{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Logger:  slog.Default(),
		})
		return e, e.Model(), nil

	default:
		return nil, "", fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

// openStore picks the embedding cache store from the cache flags.
// The returned func releases the store.
func openStore(ctx context.Context, cmd *cli.Command) (embedcache.Store, func(), error) {
	dbPath := cmd.String(cacheDBFlag)
	redisAddr := cmd.String(redisAddrFlag)

	switch {
	case dbPath != "" && redisAddr != "":
		return nil, nil, errors.New("--cache-db and --redis-addr are mutually exclusive")

	case dbPath != "":
		store, err := embedcache.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("using sqlite embedding cache", "path", dbPath)
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("error closing embedding cache", "error", err)
			}
		}, nil

	case redisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("error connecting to redis at %s: %w", redisAddr, err)
		}
		slog.Debug("using redis embedding cache", "addr", redisAddr)
		store := embedcache.NewRedisStore(client, "", cmd.Duration(redisTTLFlag))
		return store, func() { client.Close() }, nil

	default:
		return embedcache.NewMemoryStore(), func() {}, nil
	}
}

// buildEmbedder wires the provider behind the embedding cache
func (a *app) buildEmbedder(ctx context.Context, cmd *cli.Command) (*embedcache.CachingEmbedder, func(), error) {
	cfg := providerConfigFrom(cmd)
	backend, model, err := a.newEmbedder(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := openStore(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}

	cached := embedcache.New(backend, embedcache.Options{
		Store:  store,
		Model:  cfg.Provider + "/" + model,
		Logger: slog.Default(),
	})
	return cached, closeStore, nil
}
