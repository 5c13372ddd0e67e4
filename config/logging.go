package config

import "go.uber.org/zap"

// setLogger picks a zap logger for the environment. Anything other than
// development or production gets the example logger used for local runs.
func setLogger(env string) (*zap.Logger, error) {
	switch env {
	case "development":
		return zap.NewDevelopment()
	case "production":
		return zap.NewProduction()
	default:
		return zap.NewExample(), nil
	}
}
