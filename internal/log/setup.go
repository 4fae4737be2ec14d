package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls process logging
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, console or json
	Output string `yaml:"output"` // stderr, stdout or a file path
	// rotation, used when Output is a file
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxAgeDays int  `yaml:"max_age_days"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// DefaultConfig logs info and above to stderr, pretty when attached to a terminal
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "auto",
		Output:     "stderr",
		MaxSizeMB:  100,
		MaxAgeDays: 30,
		MaxBackups: 10,
		Compress:   true,
	}
}

// Setup configures the global zerolog logger and returns it
func Setup(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	w, tty := writer(cfg)
	if cfg.Format == "console" || (cfg.Format != "json" && tty) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: !tty}
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}

func writer(cfg Config) (io.Writer, bool) {
	switch cfg.Output {
	case "", "stderr":
		return os.Stderr, term.IsTerminal(int(os.Stderr.Fd()))
	case "stdout":
		return os.Stdout, term.IsTerminal(int(os.Stdout.Fd()))
	default:
		return &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}, false
	}
}
