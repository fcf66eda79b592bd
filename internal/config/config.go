package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the registry backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" | "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ExtractConfig configures text extraction from scanned documents.
type ExtractConfig struct {
	Tesseract   string  `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	PdfToText   string  `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToPpm    string  `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	Magick      string  `yaml:"magick_path" mapstructure:"magick_path"`
	ZbarImg     string  `yaml:"zbarimg_path" mapstructure:"zbarimg_path"`
	Language    string  `yaml:"language" mapstructure:"language"`
	Whitelist   string  `yaml:"char_whitelist" mapstructure:"char_whitelist"`
	PSMList     []int   `yaml:"psm_candidates" mapstructure:"psm_candidates"`
	PDFZoom     float64 `yaml:"pdf_zoom" mapstructure:"pdf_zoom"`
	MinTextLen  int     `yaml:"min_text_len" mapstructure:"min_text_len"`
	Preprocess  bool    `yaml:"preprocess" mapstructure:"preprocess"`
	PageWorkers int     `yaml:"page_workers" mapstructure:"page_workers"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	VerifyRPS      float64  `yaml:"verify_rps" mapstructure:"verify_rps"`
	VerifyBurst    int      `yaml:"verify_burst" mapstructure:"verify_burst"`
}

// AdminKey grants admin access scoped to an issuer ("*" = all issuers).
type AdminKey struct {
	Key      string `yaml:"key" mapstructure:"key"`
	Role     string `yaml:"role" mapstructure:"role"`
	IssuerID string `yaml:"issuer_id" mapstructure:"issuer_id"`
}

// AuthConfig configures admin-key authorization.
type AuthConfig struct {
	AdminKeys []AdminKey `yaml:"admin_keys" mapstructure:"admin_keys"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultWhitelist is the tesseract character whitelist for general
// English certificate text.
const defaultWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz" +
	"0123456789.,!?@#$%^&*()_+-=[]{}|;:,.<>? "

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CERTVERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "certverify.db")
	v.SetDefault("extract.tesseract_path", "tesseract")
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.pdftoppm_path", "pdftoppm")
	v.SetDefault("extract.magick_path", "magick")
	v.SetDefault("extract.zbarimg_path", "zbarimg")
	v.SetDefault("extract.language", "eng")
	v.SetDefault("extract.char_whitelist", defaultWhitelist)
	v.SetDefault("extract.psm_candidates", []int{6, 4, 3, 11})
	v.SetDefault("extract.pdf_zoom", 3.0)
	v.SetDefault("extract.min_text_len", 20)
	v.SetDefault("extract.preprocess", true)
	v.SetDefault("extract.page_workers", 4)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("server.max_upload_bytes", 16<<20)
	v.SetDefault("server.verify_rps", 5.0)
	v.SetDefault("server.verify_burst", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
