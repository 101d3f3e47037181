package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/jsmidelov/TomasosTre/configs"
	"github.com/jsmidelov/TomasosTre/internal/models"
)

func TestOpen(t *testing.T) {
	t.Run("Migrates an sqlite database", func(t *testing.T) {
		conn, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: "file:dbtest?mode=memory&cache=shared"})
		require.NoError(t, err)

		assert.True(t, conn.Migrator().HasTable(&models.Order{}))
		assert.True(t, conn.Migrator().HasTable(&models.DishIngredient{}))
		assert.True(t, conn.Migrator().HasTable(&models.OrderRowIngredient{}))
	})

	t.Run("Rejects unknown drivers", func(t *testing.T) {
		_, err := Open(config.DatabaseConfig{Driver: "oracle"})
		assert.ErrorContains(t, err, "unsupported DB driver")
	})
}
