package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pita/internal/logger"
	"pita/internal/signature"
)

type Config struct {
	// Folder layout
	RootDir    string
	InboxDir   string
	OCRDir     string
	ErrorDir   string
	JSONDir    string
	TXTDir     string
	LogDir     string
	ArchiveDir string

	// Retry and scheduling
	MaxErrors int
	MaxTmpAge time.Duration
	Workers   int

	// OCR Configuration
	OCREngine    string // ocrmypdf, vision, documentai, textlayer
	OCRCommand   string
	OCRLanguages string
	OCRTimeout   time.Duration

	// Extraction Configuration
	ExtractionTimeout    time.Duration
	ExtractionCompletion string // "", openai
	OpenAIAPIKey         string
	OpenAIModel          string

	// Google Cloud Configuration
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string
	GCSArchiveBucket           string
	GCSArchiveFolder           string

	// Run summary export
	GoogleSheetURL       string
	GoogleSheetWorksheet string
	SummaryXLSX          string

	// Validation
	RequiredDocuments []string

	// Signature detection
	SignatureImageAnalysis  bool
	SignatureInkPercent     float64
	SignatureMinStrokes     int
	SignatureWeakInkPercent float64
	SignatureWeakMinStrokes int
	SignatureRegion         float64
	SignatureDarkThreshold  int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
	LogNoColor    bool
	LogFile       string
}

// Layout is the folder contract shared with the external automation.
type Layout struct {
	Inbox   string
	OCR     string
	Error   string
	JSON    string
	TXT     string
	Logs    string
	Archive string
}

// LogFile is the audit log path inside the logs folder.
func (l Layout) LogFile() string {
	return filepath.Join(l.Logs, "estado_procesamiento.csv")
}

// Dirs returns every folder of the layout.
func (l Layout) Dirs() []string {
	return []string{l.Inbox, l.OCR, l.Error, l.JSON, l.TXT, l.Logs, l.Archive}
}

func Load() (*Config, error) {
	root := getEnv("PITA_ROOT", "BotPITA")

	config := &Config{
		RootDir:    root,
		InboxDir:   getEnv("PITA_INBOX_DIR", filepath.Join(root, "Inbox")),
		OCRDir:     getEnv("PITA_OCR_DIR", filepath.Join(root, "Processing_OCR")),
		ErrorDir:   getEnv("PITA_ERROR_DIR", filepath.Join(root, "Error")),
		JSONDir:    getEnv("PITA_JSON_DIR", filepath.Join(root, "Done_JSON")),
		TXTDir:     getEnv("PITA_TXT_DIR", filepath.Join(root, "Done_TXT")),
		LogDir:     getEnv("PITA_LOG_DIR", filepath.Join(root, "Logs")),
		ArchiveDir: getEnv("PITA_ARCHIVE_DIR", filepath.Join(root, "Historial_OCR")),

		MaxErrors: getEnvInt("MAX_ERRORES", 2),
		MaxTmpAge: getEnvDuration("MAX_TMP_AGE", time.Hour),
		Workers:   getEnvInt("WORKERS", 1),

		OCREngine:    strings.ToLower(getEnv("OCR_ENGINE", "ocrmypdf")),
		OCRCommand:   getEnv("OCR_COMMAND", "ocrmypdf"),
		OCRLanguages: getEnv("OCR_LANGUAGES", "spa+eng"),
		OCRTimeout:   getEnvDuration("OCR_TIMEOUT", 10*time.Minute),

		ExtractionTimeout:    getEnvDuration("EXTRACTION_TIMEOUT", 2*time.Minute),
		ExtractionCompletion: strings.ToLower(getEnv("EXTRACTION_COMPLETION", "")),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		GCSArchiveBucket:           getEnv("GCS_ARCHIVE_BUCKET", ""),
		GCSArchiveFolder:           getEnv("GCS_ARCHIVE_FOLDER", ""),

		GoogleSheetURL:       getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet: getEnv("GOOGLE_SHEET_WORKSHEET", "Paquetes"),
		SummaryXLSX:          getEnv("SUMMARY_XLSX", ""),

		RequiredDocuments: getEnvList("REQUIRED_DOCUMENTS", []string{
			"CARTA_SOLICITUD",
			"ESTUDIO_TITULO",
			"AUTORIZACION_SEGUROS",
			"DIVULGACIONES_PRODUCTOS",
			"DIVULGACIONES_TITULO",
		}),

		SignatureImageAnalysis:  getEnvBool("SIGNATURE_IMAGE_ANALYSIS", true),
		SignatureInkPercent:     getEnvFloat("SIGNATURE_INK_PERCENT", 0.5),
		SignatureMinStrokes:     getEnvInt("SIGNATURE_MIN_STROKES", 3),
		SignatureWeakInkPercent: getEnvFloat("SIGNATURE_WEAK_INK_PERCENT", 0.2),
		SignatureWeakMinStrokes: getEnvInt("SIGNATURE_WEAK_MIN_STROKES", 2),
		SignatureRegion:         getEnvFloat("SIGNATURE_REGION", 0.4),
		SignatureDarkThreshold:  getEnvInt("SIGNATURE_DARK_THRESHOLD", 200),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
		LogNoColor:    getEnvBool("LOG_NO_COLOR", false),
		LogFile:       getEnv("LOG_FILE", ""),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.MaxErrors < 0 {
		return fmt.Errorf("MAX_ERRORES must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1")
	}
	switch c.OCREngine {
	case "ocrmypdf", "vision", "textlayer":
	case "documentai":
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for OCR_ENGINE=documentai")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for OCR_ENGINE=documentai")
		}
	default:
		return fmt.Errorf("unknown OCR_ENGINE: %s", c.OCREngine)
	}
	if c.ExtractionCompletion == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for EXTRACTION_COMPLETION=openai")
	}
	if c.SignatureRegion <= 0 || c.SignatureRegion > 1 {
		return fmt.Errorf("SIGNATURE_REGION must be in (0, 1]")
	}
	if c.SignatureDarkThreshold < 1 || c.SignatureDarkThreshold > 255 {
		return fmt.Errorf("SIGNATURE_DARK_THRESHOLD must be in [1, 255]")
	}
	return nil
}

// Layout returns the folder layout from the configuration.
func (c *Config) Layout() Layout {
	return Layout{
		Inbox:   c.InboxDir,
		OCR:     c.OCRDir,
		Error:   c.ErrorDir,
		JSON:    c.JSONDir,
		TXT:     c.TXTDir,
		Logs:    c.LogDir,
		Archive: c.ArchiveDir,
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
		NoColor:    c.LogNoColor,
		File:       c.LogFile,
	}
}

// SignatureThresholds returns the handwriting analysis tuning.
func (c *Config) SignatureThresholds() signature.Thresholds {
	return signature.Thresholds{
		InkPercent:     c.SignatureInkPercent,
		MinStrokes:     c.SignatureMinStrokes,
		WeakInkPercent: c.SignatureWeakInkPercent,
		WeakMinStrokes: c.SignatureWeakMinStrokes,
		Region:         c.SignatureRegion,
		DarkThreshold:  uint8(c.SignatureDarkThreshold),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.ToUpper(item))
		}
	}
	return out
}
