package logging

import "go.uber.org/zap"

// New creates a sugared logger scoped to a component, built on whatever
// global logger config.New installed
func New(component string) *zap.SugaredLogger {
	return zap.S().Named(component)
}
