// Package logging wraps zap with the nodeEnv-driven development/production
// switch the ambient stack calls for (SPEC_FULL.md AMBIENT STACK), replacing
// the teacher's tagged log.Printf call sites with structured logging in the
// idiom zfogg-sidechain uses elsewhere in the retrieved pack.
package logging

import "go.uber.org/zap"

type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
}

// New builds a Logger. nodeEnv == "production" uses zap's JSON production
// config; anything else (including empty, matching spec.md §6's nodeEnv
// default) uses the human-readable development config.
func New(nodeEnv string) (*Logger, error) {
	var base *zap.Logger
	var err error
	if nodeEnv == "production" {
		base, err = zap.NewProduction()
	} else {
		base, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: base.Sugar(), base: base}, nil
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() *Logger {
	base := zap.NewNop()
	return &Logger{SugaredLogger: base.Sugar(), base: base}
}

func (l *Logger) Sync() error { return l.base.Sync() }
