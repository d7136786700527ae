package database

import (
	"testing"

	"deepspace-observatory/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMigrates(t *testing.T) {
	db, dbType, err := Open("sqlite://file:init_test?mode=memory&cache=shared")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dbType)
	assert.True(t, db.Migrator().HasTable(&models.Target{}))
}

func TestOpen_UnknownScheme(t *testing.T) {
	_, _, err := Open("redis://localhost")
	assert.ErrorContains(t, err, "不支持的数据库类型")
}

func TestInitDB_RequiresEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, _, err := InitDB()
	assert.ErrorContains(t, err, "DATABASE_URL")
}
