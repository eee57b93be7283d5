// Copyright 2023 OceanStack
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logutil holds the process-wide structured logger used by the
// container packages for caller-misuse diagnostics. Library users that
// never call SetupLogger get a plain console logger at info level.
package logutil

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the global logger. All fields are optional; the zero
// value yields a console logger at info level.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// Format is console or json.
	Format string `toml:"format"`
	// Filename, when set, routes output to a rotating file instead of stderr.
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max-size"`
	MaxBackups int    `toml:"max-backups"`
	MaxAge     int    `toml:"max-days"`
	Compress   bool   `toml:"compress"`
}

// DecodeConfig reads a Config from a toml file.
func DecodeConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	globalLogger atomic.Pointer[zap.Logger]
	setupOnce    sync.Once
)

// GetGlobalLogger returns the process logger, installing the default
// console logger on first use.
func GetGlobalLogger() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	setupOnce.Do(func() {
		if globalLogger.Load() == nil {
			globalLogger.Store(buildLogger(Config{}))
		}
	})
	return globalLogger.Load()
}

// SetupLogger replaces the process logger. Safe to call more than once;
// the last call wins.
func SetupLogger(cfg Config) {
	globalLogger.Store(buildLogger(cfg))
}

func buildLogger(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.Filename != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	return zap.New(zapcore.NewCore(enc, sink, level), zap.AddCaller())
}
