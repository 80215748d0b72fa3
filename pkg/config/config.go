package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Paths         PathsConfig
	Matching      MatchingConfig
	OCR           OCRConfig
	Embedding     EmbeddingConfig
	Enrichment    EnrichmentConfig
	Cron          CronConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxUploadBytes     int64
}

// PathsConfig describes the on-disk layout: the training corpus, the derived
// text cache, the persisted model artifacts and the layout metadata store.
type PathsConfig struct {
	TrainingDir  string
	CacheDir     string
	ArtifactsDir string
	MetadataFile string
	MappingFile  string
	TempDir      string
}

type MatchingConfig struct {
	Scorer   string // keyword | tfidf | embedding
	TopN     int
	MaxPages int // PDF pages read per document
}

type OCRConfig struct {
	Enabled      bool
	PdftoppmBin  string
	TesseractBin string
	Language     string
	DPI          int
	ImageTimeout time.Duration
}

type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type EnrichmentConfig struct {
	BaseURL string
	Secret  string
	Timeout time.Duration
}

// CronConfig holds the schedules for background jobs in standard 5-field
// cron format. An empty spec disables the job.
type CronConfig struct {
	RetrainSpec  string
	MetadataSpec string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
			MaxUploadBytes:     int64(getEnvAsInt("SERVER_MAX_UPLOAD_MB", 32)) << 20,
		},
		Paths: PathsConfig{
			TrainingDir:  getEnv("TRAINING_DIR", "arquivos_de_treinamento"),
			CacheDir:     getEnv("TEXT_CACHE_DIR", "cache_de_texto"),
			ArtifactsDir: getEnv("ARTIFACTS_DIR", "model"),
			MetadataFile: getEnv("METADATA_FILE", "layouts.json"),
			MappingFile:  getEnv("MAPPING_FILE", "mapeamento_layouts.xlsx"),
			TempDir:      getEnv("TEMP_DIR", "temp_files"),
		},
		Matching: MatchingConfig{
			Scorer:   getEnv("MATCH_SCORER", "tfidf"),
			TopN:     getEnvAsInt("MATCH_TOP_N", 5),
			MaxPages: getEnvAsInt("MATCH_MAX_PDF_PAGES", 4),
		},
		OCR: OCRConfig{
			Enabled:      getEnvAsBool("OCR_ENABLED", true),
			PdftoppmBin:  getEnv("OCR_PDFTOPPM_BIN", "pdftoppm"),
			TesseractBin: getEnv("OCR_TESSERACT_BIN", "tesseract"),
			Language:     getEnv("OCR_LANGUAGE", "por"),
			DPI:          getEnvAsInt("OCR_DPI", 200),
			ImageTimeout: getEnvAsDuration("OCR_IMAGE_TIMEOUT", 20*time.Second),
		},
		Embedding: EmbeddingConfig{
			BaseURL: getEnv("EMBEDDING_BASE_URL", ""),
			APIKey:  getEnv("EMBEDDING_API_KEY", ""),
			Model:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout: getEnvAsDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Enrichment: EnrichmentConfig{
			BaseURL: getEnv("ENRICHMENT_BASE_URL", ""),
			Secret:  getEnv("ENRICHMENT_SECRET", ""),
			Timeout: getEnvAsDuration("ENRICHMENT_TIMEOUT", 15*time.Second),
		},
		Cron: CronConfig{
			RetrainSpec:  getEnv("CRON_RETRAIN_SPEC", ""),
			MetadataSpec: getEnv("CRON_METADATA_SPEC", "0 3 * * *"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	switch cfg.Matching.Scorer {
	case "keyword", "tfidf", "embedding":
	default:
		return nil, fmt.Errorf("MATCH_SCORER must be keyword, tfidf or embedding, got %q", cfg.Matching.Scorer)
	}

	if cfg.Matching.Scorer == "embedding" && cfg.Embedding.BaseURL == "" {
		return nil, fmt.Errorf("EMBEDDING_BASE_URL is required when MATCH_SCORER=embedding")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
