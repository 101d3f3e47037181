package logger

import (
	"go.uber.org/zap"
)

// New returns a JSON production logger, or a human readable one outside
// production.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
