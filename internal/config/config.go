package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tendant/simple-photo-pipeline/internal/printing"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "PHOTOBOOTH_"

// Error is a configuration problem that keeps the pipeline stopped
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("ConfigError: %v", e.Err)
	}
	return fmt.Sprintf("ConfigError: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a configuration error for field
func Errorf(field, format string, args ...any) *Error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

// Config is the resolved configuration consumed by the pipeline
type Config struct {
	WatchFolder      string        `yaml:"watch_folder" json:"watch_folder"`
	TemplatePath     string        `yaml:"template_path" json:"template_path"`
	OutputFolder     string        `yaml:"output_folder" json:"output_folder"`
	PrintEnabled     bool          `yaml:"print_enabled" json:"print_enabled"`
	SupportedFormats []string      `yaml:"supported_formats" json:"supported_formats"`
	PrinterName      string        `yaml:"printer_name" json:"printer_name"` // "default" or "" for the system default
	Copies           int           `yaml:"copies" json:"copies"`
	Position         string        `yaml:"position" json:"position"`
	Opacity          int           `yaml:"opacity" json:"opacity"`
	SettleInterval   time.Duration `yaml:"settle_interval" json:"settle_interval"`
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
	QueueSize        int           `yaml:"queue_size" json:"queue_size"`
	ProcessExisting  bool          `yaml:"process_existing" json:"process_existing"`
	ProcessedSetSize int           `yaml:"processed_set_size" json:"processed_set_size"`
	Notifications    bool          `yaml:"notifications" json:"notifications"`
	JPEGQuality      int           `yaml:"jpeg_quality" json:"jpeg_quality"`
	AutoOrient       bool          `yaml:"auto_orient" json:"auto_orient"`
	HTTPAddr         string        `yaml:"http_addr" json:"http_addr"`
	LedgerDriver     string        `yaml:"ledger_driver" json:"ledger_driver"` // "", "postgres" or "sqlite3"
	LedgerDSN        string        `yaml:"ledger_dsn" json:"-"`
}

// Default returns the settings a fresh kiosk starts with
func Default() Config {
	return Config{
		WatchFolder:      "watch_folder",
		TemplatePath:     "templates/overlay_template.png",
		OutputFolder:     "processed",
		PrintEnabled:     true,
		SupportedFormats: append([]string(nil), pipeline.DefaultExtensions...),
		PrinterName:      pipeline.DefaultDestinationLabel,
		Copies:           1,
		Position:         string(pipeline.AnchorCenter),
		Opacity:          100,
		SettleInterval:   2 * time.Second,
		PollInterval:     500 * time.Millisecond,
		QueueSize:        16,
		ProcessedSetSize: 4096,
		Notifications:    true,
		JPEGQuality:      95,
		AutoOrient:       true,
		HTTPAddr:         ":8090",
	}
}

// Load resolves configuration from defaults, an optional YAML file, a .env
// file in the working directory, and PHOTOBOOTH_* environment variables, in
// that order of increasing precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, &Error{Field: "config", Err: err}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &Error{Field: "config", Err: fmt.Errorf("parse %s: %w", path, err)}
		}
	}

	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var firstErr error
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = &Error{Field: strings.ToLower(key), Err: err}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				fail(key, err)
				return
			}
			*dst = d
		}
	}

	str("WATCH_FOLDER", &c.WatchFolder)
	str("TEMPLATE_PATH", &c.TemplatePath)
	str("OUTPUT_FOLDER", &c.OutputFolder)
	boolean("PRINT_ENABLED", &c.PrintEnabled)
	if v, ok := lookup(EnvPrefix + "SUPPORTED_FORMATS"); ok {
		c.SupportedFormats = strings.Split(v, ",")
	}
	str("PRINTER_NAME", &c.PrinterName)
	integer("COPIES", &c.Copies)
	str("POSITION", &c.Position)
	integer("OPACITY", &c.Opacity)
	duration("SETTLE_INTERVAL", &c.SettleInterval)
	duration("POLL_INTERVAL", &c.PollInterval)
	integer("QUEUE_SIZE", &c.QueueSize)
	boolean("PROCESS_EXISTING", &c.ProcessExisting)
	integer("PROCESSED_SET_SIZE", &c.ProcessedSetSize)
	boolean("NOTIFICATIONS", &c.Notifications)
	integer("JPEG_QUALITY", &c.JPEGQuality)
	boolean("AUTO_ORIENT", &c.AutoOrient)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("LEDGER_DRIVER", &c.LedgerDriver)
	str("LEDGER_DSN", &c.LedgerDSN)

	return firstErr
}

// Validate checks invariants and normalizes values in place
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WatchFolder) == "" {
		return Errorf("watch_folder", "must not be empty")
	}
	if strings.TrimSpace(c.OutputFolder) == "" {
		return Errorf("output_folder", "must not be empty")
	}
	if strings.TrimSpace(c.TemplatePath) == "" {
		return Errorf("template_path", "must not be empty")
	}
	if c.SettleInterval <= 0 {
		return Errorf("settle_interval", "must be positive, got %s", c.SettleInterval)
	}
	if c.PollInterval <= 0 {
		return Errorf("poll_interval", "must be positive, got %s", c.PollInterval)
	}

	exts := make([]string, 0, len(c.SupportedFormats))
	for _, e := range c.SupportedFormats {
		if n := pipeline.NormalizeExtension(e); n != "" {
			exts = append(exts, n)
		}
	}
	if len(exts) == 0 {
		return Errorf("supported_formats", "at least one extension is required")
	}
	c.SupportedFormats = exts

	if c.Copies < 1 || c.Copies > printing.MaxCopies {
		return Errorf("copies", "must be between 1 and %d, got %d", printing.MaxCopies, c.Copies)
	}
	if _, err := pipeline.ParseAnchor(c.Position); err != nil {
		return &Error{Field: "position", Err: err}
	}
	c.Opacity = pipeline.ClampOpacity(c.Opacity)

	if c.QueueSize < 1 {
		c.QueueSize = 1
	}
	switch c.LedgerDriver {
	case "", "postgres", "sqlite3":
	default:
		return Errorf("ledger_driver", "unsupported driver %q", c.LedgerDriver)
	}
	if c.LedgerDriver != "" && c.LedgerDSN == "" {
		return Errorf("ledger_dsn", "required when ledger_driver is set")
	}
	return nil
}

// Watch returns the watcher view of the configuration
func (c Config) Watch() pipeline.WatchConfig {
	return pipeline.WatchConfig{
		Dir:            c.WatchFolder,
		Extensions:     append([]string(nil), c.SupportedFormats...),
		SettleInterval: c.SettleInterval,
		PollInterval:   c.PollInterval,
	}
}

// Template returns the overlay settings
func (c Config) Template() pipeline.TemplateSpec {
	anchor, err := pipeline.ParseAnchor(c.Position)
	if err != nil {
		anchor = pipeline.Anchor{Kind: pipeline.AnchorCenter}
	}
	return pipeline.TemplateSpec{
		Path:    c.TemplatePath,
		Anchor:  anchor,
		Opacity: pipeline.ClampOpacity(c.Opacity),
	}
}

// Destination returns the printer name with the default label resolved to ""
func (c Config) Destination() string {
	return pipeline.DestinationFromLabel(c.PrinterName)
}

// Settings returns the values shown to the settings collaborator
func (c Config) Settings() pipeline.Settings {
	return pipeline.Settings{
		WatchFolder:      c.WatchFolder,
		TemplatePath:     c.TemplatePath,
		OutputFolder:     c.OutputFolder,
		PrintEnabled:     c.PrintEnabled,
		PrinterName:      c.PrinterName,
		Copies:           c.Copies,
		SupportedFormats: append([]string(nil), c.SupportedFormats...),
		Position:         c.Position,
		Opacity:          c.Opacity,
	}
}

// IsConfigError reports whether err is a configuration error
func IsConfigError(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr)
}
