package utilities

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level string `env:"LOG_LEVEL"`
	Dev   bool   `env:"LOG_DEV"`
	// File, when set, receives a copy of the JSON log rotated daily.
	File string `env:"LOG_FILE"`
}

// ConfigFromEnv reads logger settings from env vars.
func ConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.Level == "" {
		if cfg.Dev {
			cfg.Level = "debug"
		} else {
			cfg.Level = "info"
		}
	}
	return cfg
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev && cfg.File == "" {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl),
	}
	if cfg.File != "" {
		w, err := rotatingWriter(cfg.File)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), lvl))
	}
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func rotatingWriter(path string) (*rotatelogs.RotateLogs, error) {
	return rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
}
