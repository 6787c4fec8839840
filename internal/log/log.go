// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package log

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a logger using the Zap structured logger.
// When logDir is empty the logger writes to stderr, otherwise it appends to
// {logDir}/{logName}.log. Every entry carries the run_id of this invocation.
func NewLogger(logDir, logName string, debug bool) (*zap.Logger, error) {
	if logDir == "" {
		return newLogger(os.Stderr, debug), nil
	}

	if logName == "" {
		logName = filepath.Base(os.Args[0])
	}

	logFile := filepath.Join(logDir, logName+".log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return newLogger(file, debug), nil
}

func newLogger(w io.Writer, debug bool) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.EpochTimeEncoder
	cfg.LevelKey = "lv"
	cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(l.CapitalString()[:2])
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
		cfg.CallerKey = "call"
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(w), level)

	opts := []zap.Option{zap.Fields(zap.String("run_id", uuid.NewString()))}
	if debug {
		opts = append(opts, zap.AddCaller())
	}

	return zap.New(core, opts...)
}
