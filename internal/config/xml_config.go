// Package config provides XML-based configuration management for the upload server and CLI.
package config

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
	"github.com/upload-widget/backend/internal/upload"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"UploadWidget"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration for the receiver endpoint
	Storage StorageConfig `xml:"Storage"`

	// Upload client configuration
	Upload UploadConfig `xml:"Upload"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains receiver storage settings
type StorageConfig struct {
	Backend           string `xml:"Backend"` // "local" or "s3"
	DataDirectory     string `xml:"DataDirectory"`
	UploadsDirectory  string `xml:"UploadsDirectory"`
	Bucket            string `xml:"Bucket"`
	Region            string `xml:"Region"`
	Prefix            string `xml:"Prefix"`
	AllowFileDeletion bool   `xml:"AllowFileDeletion"`
}

// UploadConfig contains settings for the upload manager and transport
type UploadConfig struct {
	Endpoint           string `xml:"Endpoint"`
	LocalRoot          string `xml:"LocalRoot"` // files may be added by path only from here; empty disables it
	PolicyFile         string `xml:"PolicyFile"`
	AcceptedTypes      string `xml:"AcceptedTypes"`
	MaxUploadSize      string `xml:"MaxUploadSize"`
	EnforceSizeLimit   bool   `xml:"EnforceSizeLimit"`
	DetectContentType  bool   `xml:"DetectContentType"`
	ProgressIntervalMs int    `xml:"ProgressIntervalMs"`
	FormMemoryLimit    string `xml:"FormMemoryLimit"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	ShowErrorDetails        bool   `xml:"ShowErrorDetails"` // include 5xx error text in API responses
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "2G",
		},
		Storage: StorageConfig{
			Backend:           "local",
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			Region:            "us-east-1",
			Prefix:            "uploads/",
			AllowFileDeletion: true,
		},
		Upload: UploadConfig{
			Endpoint:           "http://localhost:8089/upload",
			AcceptedTypes:      strings.Join(upload.DefaultAcceptedTypes, ","),
			MaxUploadSize:      upload.DefaultMaxSize,
			EnforceSizeLimit:   false,
			DetectContentType:  false,
			ProgressIntervalMs: 100,
			FormMemoryLimit:    "32MB",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			ShowErrorDetails:        false,
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from XML file. A .env file next to the
// working directory is loaded first so its values take part in the
// environment overrides.
func LoadConfig(configPath string) (*AppConfig, error) {
	loadDotEnv()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// FromEnvironment returns the defaults with .env and environment overrides
// applied, for callers that run without a config file. Relative paths
// resolve against the working directory.
func FromEnvironment() *AppConfig {
	loadDotEnv()
	config := DefaultConfig()
	config.applyEnvironmentOverrides()
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	config.resolvePaths(wd)
	return config
}

// loadDotEnv reads .env if present. Existing environment variables win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		fmt.Printf("[Config] Warning: could not load .env: %v\n", err)
	}
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	header := []byte(xml.Header + "\n<!-- Upload Widget Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override moves the uploads directory along with it
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}

	if endpoint := os.Getenv("UPLOAD_ENDPOINT"); endpoint != "" {
		c.Upload.Endpoint = endpoint
	}

	if root := os.Getenv("UPLOAD_LOCAL_ROOT"); root != "" {
		c.Upload.LocalRoot = root
	}

	if enforce := os.Getenv("UPLOAD_ENFORCE_SIZE_LIMIT"); enforce != "" {
		if v, err := strconv.ParseBool(enforce); err == nil {
			c.Upload.EnforceSizeLimit = v
		}
	}

	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		c.Storage.Bucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		c.Storage.Region = region
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if c.Upload.LocalRoot != "" && !filepath.IsAbs(c.Upload.LocalRoot) {
		c.Upload.LocalRoot = filepath.Join(configDir, c.Upload.LocalRoot)
	}
	if c.Upload.PolicyFile != "" && !filepath.IsAbs(c.Upload.PolicyFile) {
		c.Upload.PolicyFile = filepath.Join(configDir, c.Upload.PolicyFile)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Policy builds the accept policy. A policy file takes precedence over the
// inline accepted types and size settings.
func (c *AppConfig) Policy() (*upload.Policy, error) {
	if c.Upload.PolicyFile != "" {
		return upload.LoadPolicy(c.Upload.PolicyFile)
	}
	var types []string
	for _, t := range strings.Split(c.Upload.AcceptedTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		types = upload.DefaultAcceptedTypes
	}
	return upload.NewPolicy(types, c.Upload.MaxUploadSize, c.Upload.EnforceSizeLimit)
}

// ProgressInterval returns the transport progress throttle.
func (c *AppConfig) ProgressInterval() time.Duration {
	if c.Upload.ProgressIntervalMs < 0 {
		return 0
	}
	return time.Duration(c.Upload.ProgressIntervalMs) * time.Millisecond
}

// FormMemoryBytes returns the multipart memory limit in bytes.
func (c *AppConfig) FormMemoryBytes() int64 {
	n, err := bytes.Parse(c.Upload.FormMemoryLimit)
	if err != nil || n <= 0 {
		return 32 << 20
	}
	return n
}

// BodyLimitBytes returns the receiver body limit in bytes, zero when unset.
func (c *AppConfig) BodyLimitBytes() int64 {
	n, err := bytes.Parse(c.Server.BodyLimit)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// LogLevel maps Advanced.LogLevel to a slog level.
func (c *AppConfig) LogLevel() slog.Level {
	switch strings.ToLower(c.Advanced.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
