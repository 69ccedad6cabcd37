package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/logx"
)

// newZapLogger builds JSON logs for production and colored console logs for
// any other environment. An unknown level keeps the preset's default.
func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Log.Env == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if l, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(l)
	}
	return zc.Build()
}

func newLogger(z *zap.Logger) logx.Logger {
	return logx.NewZapAdapter(z)
}
