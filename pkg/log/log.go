package log

import (
	"github.com/syncwavelabs/syncwave/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("log",
	fx.Provide(NewLogger),
)

// NewLogger builds the application logger. Development gets the console
// encoder, everything else structured JSON.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	return logger.With(
		zap.String("service", cfg.AppName),
		zap.String("version", cfg.AppVersion),
	), nil
}
