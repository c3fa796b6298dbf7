package goanchor

import (
	"log/slog"

	"google.golang.org/genai"

	"github.com/datar-psa/goanchor/anchors"
	"github.com/datar-psa/goanchor/api"
	"github.com/datar-psa/goanchor/embedcache"
	"github.com/datar-psa/goanchor/embedding"
	"github.com/datar-psa/goanchor/gemini"
	"github.com/datar-psa/goanchor/ssr"
)

const (
	// DefaultTemperature is the softmax temperature of scorers built without WithTemperature
	DefaultTemperature = ssr.DefaultTemperature
	// DefaultEpsilon is the probability floor of scorers built without WithEpsilon
	DefaultEpsilon = ssr.DefaultEpsilon
)

type AnchorScorer = ssr.Scorer
type BatchScorer = ssr.BatchScorer
type Outcome = ssr.Outcome

// Options configures the constructors of this package
type Options struct {
	embedder    api.Embedder
	catalog     *anchors.Catalog
	temperature float64
	epsilon     *float64
	logger      *slog.Logger
	cacheStore  embedcache.Store
	cacheModel  string

	genaiClient *genai.Client
	modelName   string
}

// WithEmbedder sets the embedder used to embed answers and anchors
func WithEmbedder(embedder api.Embedder) func(*Options) {
	return func(opts *Options) {
		opts.embedder = embedder
	}
}

// WithCatalog sets the anchor catalog; the built-in catalog is used otherwise
func WithCatalog(catalog *anchors.Catalog) func(*Options) {
	return func(opts *Options) {
		opts.catalog = catalog
	}
}

// WithTemperature sets the softmax temperature
func WithTemperature(temperature float64) func(*Options) {
	return func(opts *Options) {
		opts.temperature = temperature
	}
}

// WithEpsilon sets the probability floor. Zero disables it.
func WithEpsilon(epsilon float64) func(*Options) {
	return func(opts *Options) {
		opts.epsilon = &epsilon
	}
}

// WithLogger sets the logger of the scorer and the batch scorer
func WithLogger(logger *slog.Logger) func(*Options) {
	return func(opts *Options) {
		opts.logger = logger
	}
}

// WithEmbeddingCache puts a CachingEmbedder backed by store in front of the embedder.
// Scorers sharing a store share their embeddings; model scopes the cache keys.
func WithEmbeddingCache(store embedcache.Store, model string) func(*Options) {
	return func(opts *Options) {
		opts.cacheStore = store
		opts.cacheModel = model
	}
}

// WithGenaiClient sets the Gemini client for Gemini constructors
func WithGenaiClient(client *genai.Client) func(*Options) {
	return func(opts *Options) {
		opts.genaiClient = client
	}
}

// WithModelName sets the embedding model for Gemini constructors
func WithModelName(modelName string) func(*Options) {
	return func(opts *Options) {
		opts.modelName = modelName
	}
}

func newOptions(opts []func(*Options)) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func (o *Options) resolvedEmbedder() api.Embedder {
	if o.embedder == nil {
		return nil
	}
	if o.cacheStore != nil {
		return embedcache.New(o.embedder, embedcache.Options{
			Store:  o.cacheStore,
			Model:  o.cacheModel,
			Logger: o.logger,
		})
	}
	return o.embedder
}

// NewScorer creates an anchor scorer using functional options
func NewScorer(opts ...func(*Options)) *AnchorScorer {
	return newOptions(opts).scorer()
}

func (o *Options) scorer() *AnchorScorer {
	return ssr.NewScorer(o.resolvedEmbedder(), o.catalog, ssr.Options{
		Temperature: o.temperature,
		Epsilon:     o.epsilon,
		Logger:      o.logger,
	})
}

// NewBatchScorer creates a batch scorer over a new anchor scorer
func NewBatchScorer(opts ...func(*Options)) *BatchScorer {
	options := newOptions(opts)
	return ssr.NewBatchScorer(options.scorer(), options.logger)
}

// NewGeminiScorer creates an anchor scorer embedding with Gemini.
// Example model: "text-embedding-005".
func NewGeminiScorer(opts ...func(*Options)) *AnchorScorer {
	options := newOptions(opts)

	// Only set the embedder if genaiClient and modelName are provided
	if options.genaiClient != nil && options.modelName != "" {
		options.embedder = gemini.NewEmbedder(options.genaiClient, options.modelName, gemini.EmbedderOptions{
			TaskType: "SEMANTIC_SIMILARITY",
		})
		if options.cacheModel == "" {
			options.cacheModel = options.modelName
		}
	}

	return options.scorer()
}

// Embedding wraps an embedder and exposes convenient constructors for embedding-based scorers.
type Embedding struct{ embedder api.Embedder }

// NewEmbedding creates a new Embedding wrapper using functional options.
func NewEmbedding(opts ...func(*Options)) *Embedding {
	return &Embedding{embedder: newOptions(opts).resolvedEmbedder()}
}

// NewGeminiEmbedding creates an Embedding using Gemini client and model name.
// Example model: "text-embedding-005".
func NewGeminiEmbedding(opts ...func(*Options)) *Embedding {
	options := newOptions(opts)
	if options.genaiClient != nil && options.modelName != "" {
		options.embedder = gemini.NewEmbedder(options.genaiClient, options.modelName, gemini.EmbedderOptions{})
	}
	return &Embedding{embedder: options.resolvedEmbedder()}
}

type EmbeddingSimilarityOptions = embedding.EmbeddingSimilarityOptions

// Similarity returns a scorer that measures semantic similarity using embeddings.
func (e *Embedding) Similarity(opts EmbeddingSimilarityOptions) api.Scorer {
	return embedding.EmbeddingSimilarity(e.embedder, opts)
}
