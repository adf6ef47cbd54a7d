// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package hlog wraps zap behind the module-logger pattern the rest of the
// codebase expects: a package-level logger obtained once via
// NewModuleLogger, with New(ctx...) producing contextual children. Head
// logic itself never logs (it is pure, per §4.3); every other package
// does, at well-defined emission points, never from inside a step call
// (§9's "global/implicit tracing" re-architecture note).
package hlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

// Logger is the leveled, contextual logging interface every package
// pulls a package-level instance of.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	New(ctx ...interface{}) Logger
}

type zapLogger struct {
	module string
	sugar  *zap.SugaredLogger
}

var (
	rootOnce sync.Once
	root     *zap.Logger
)

func rootLogger() *zap.Logger {
	rootOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stdout"}
		l, err := cfg.Build()
		if err != nil {
			// Fall back to a basic logger rather than leave the process
			// without any log sink.
			l = zap.NewExample()
		}
		root = l
	})
	return root
}

// SetOutputToStderr redirects the root logger to stderr; used by CLI
// commands that want logs off of stdout (e.g. when stdout carries JSON).
func SetOutputToStderr() {
	rootOnce.Do(func() {})
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewExample()
	}
	root = l
}

// NewModuleLogger returns the package-level logger for a named module,
// e.g. `var logger = hlog.NewModuleLogger("headlogic")`.
func NewModuleLogger(module string) Logger {
	return &zapLogger{module: module, sugar: rootLogger().Sugar().With("module", module)}
}

func (l *zapLogger) New(ctx ...interface{}) Logger {
	return &zapLogger{module: l.module, sugar: l.sugar.With(ctx...)}
}

func (l *zapLogger) Trace(msg string, ctx ...interface{}) { l.sugar.Debugw(msg, ctx...) }
func (l *zapLogger) Debug(msg string, ctx ...interface{}) { l.sugar.Debugw(msg, ctx...) }
func (l *zapLogger) Info(msg string, ctx ...interface{})  { l.sugar.Infow(msg, ctx...) }
func (l *zapLogger) Warn(msg string, ctx ...interface{})  { l.sugar.Warnw(msg, ctx...) }
func (l *zapLogger) Error(msg string, ctx ...interface{}) { l.sugar.Errorw(msg, ctx...) }

// Fatal logs and exits; reserved for the persistence-I/O-is-fatal rule in
// §7 ("a party that cannot durably record its state risks signing
// divergent snapshots").
func Fatal(logger Logger, msg string, ctx ...interface{}) {
	logger.Error(msg, ctx...)
	os.Exit(1)
}
