// Package logger builds the zap logger shared by every component.
package logger

import (
	"go.uber.org/zap"
)

// New returns a sugared zap logger; development mode uses the console encoder and debug level.
func New(development bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
