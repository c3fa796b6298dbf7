package testutils

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/areknoster/hypert"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/genai"

	"github.com/datar-psa/goanchor/gemini"
)

// ShouldUpdate returns true if tests should update cached HTTP responses
// Set UPDATE_TESTS=true environment variable to update cached responses
func ShouldUpdate() bool {
	return os.Getenv("UPDATE_TESTS") == "true"
}

// HypertClientConfig configures hypert client creation
type HypertClientConfig struct {
	TestDataDir string
	SubDir      string // Optional subdirectory for organizing test data
}

func (c HypertClientConfig) dir() string {
	if c.SubDir != "" {
		return filepath.Join(c.TestDataDir, c.SubDir)
	}
	return c.TestDataDir
}

// SkipWithoutRecordings skips the test when no recorded responses exist and
// recording is not enabled, so replay never hits the network
func SkipWithoutRecordings(t *testing.T, config HypertClientConfig) {
	t.Helper()
	if ShouldUpdate() {
		return
	}
	if _, err := os.Stat(config.dir()); err != nil {
		t.Skipf("no recorded responses in %s; run with UPDATE_TESTS=true to record", config.dir())
	}
}

// NewHypertClient creates a new hypert client for caching HTTP requests
// In record mode the client authenticates with application default credentials
func NewHypertClient(t *testing.T, config HypertClientConfig) *http.Client {
	namingScheme, err := hypert.NewContentHashNamingScheme(config.dir())
	if err != nil {
		t.Fatalf("failed to create naming scheme: %v", err)
	}

	hypertClient := hypert.TestClient(t, ShouldUpdate(),
		hypert.WithNamingScheme(namingScheme),
		hypert.WithRequestValidator(hypert.ComposedRequestValidator(
			hypert.PathValidator(),
			hypert.QueryParamsValidator(),
			hypert.MethodValidator(),
		)),
	)

	if ShouldUpdate() {
		ctx := context.Background()
		creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			t.Fatalf("failed to get default credentials: %v", err)
		}
		return oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, hypertClient), creds.TokenSource)
	}

	return hypertClient
}

// GeminiTestConfig configures Gemini client creation for tests
type GeminiTestConfig struct {
	Project  string
	Location string
	SubDir   string // Subdirectory for hypert test data
}

// DefaultGeminiTestConfig returns a default configuration for Gemini testing
func DefaultGeminiTestConfig(subDir string) GeminiTestConfig {
	return GeminiTestConfig{
		Project:  os.Getenv("GOOGLE_PROJECT_ID"),
		Location: os.Getenv("GOOGLE_REGION"),
		SubDir:   subDir,
	}
}

// NewGeminiClient creates a new Gemini client for testing with hypert caching
// The test is skipped when there is nothing to replay
func NewGeminiClient(t *testing.T, config GeminiTestConfig) *genai.Client {
	ctx := context.Background()

	hypertConfig := HypertClientConfig{
		TestDataDir: "testdata",
		SubDir:      config.SubDir,
	}
	SkipWithoutRecordings(t, hypertConfig)

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:    genai.BackendVertexAI,
		Project:    config.Project,
		Location:   config.Location,
		HTTPClient: NewHypertClient(t, hypertConfig),
	})
	if err != nil {
		t.Fatalf("failed to create genai client: %v", err)
	}

	return genaiClient
}

// NewGeminiEmbedder creates a new Gemini embedder for testing
func NewGeminiEmbedder(t *testing.T, config GeminiTestConfig, modelName string) *gemini.Embedder {
	genaiClient := NewGeminiClient(t, config)
	return gemini.NewEmbedder(genaiClient, modelName, gemini.EmbedderOptions{TaskType: "SEMANTIC_SIMILARITY"})
}
