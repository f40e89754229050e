package logging

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapLogger returns a logger built from a preset name or, failing that, from the
// JSON zap configuration at path zapConf.
//
// Available presets: console, console-nocolor, production, development.
// level applies to the console presets only.
func NewZapLogger(zapConf string, level zapcore.Level) (*zap.Logger, error) {
	var zc zap.Config

	switch zapConf {
	case "console", "":
		zc = consoleConfig(level)
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "console-nocolor":
		zc = consoleConfig(level)
	case "production":
		zc = zap.NewProductionConfig()
	case "development":
		zc = zap.NewDevelopmentConfig()
	default:
		b, err := os.ReadFile(zapConf)
		if err != nil {
			return nil, err
		}
		if err = json.Unmarshal(b, &zc); err != nil {
			return nil, err
		}
	}

	return zc.Build()
}

func consoleConfig(level zapcore.Level) zap.Config {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Development = false
	zc.DisableStacktrace = true
	zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	return zc
}
