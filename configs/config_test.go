package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Run("Reads database driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "sqlite")
		t.Setenv("CORS_ALLOW_ORIGINS", "")

		cfg := Load()

		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Empty(t, cfg.AllowOrigins)
	})

	t.Run("Splits allowed origins", func(t *testing.T) {
		t.Setenv("CORS_ALLOW_ORIGINS", "http://localhost:4200, https://tomasos.se ,")

		cfg := Load()

		assert.Equal(t, []string{"http://localhost:4200", "https://tomasos.se"}, cfg.AllowOrigins)
	})
}
