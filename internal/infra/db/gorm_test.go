package db

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestRegisterOpenTelemetryPlugin(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, RegisterOpenTelemetryPlugin(gdb))

	// Queries still work with the span callbacks installed.
	require.NoError(t, gdb.AutoMigrate(&tracedRow{}))
	require.NoError(t, gdb.Create(&tracedRow{Name: "traced"}).Error)

	var out tracedRow
	require.NoError(t, gdb.First(&out).Error)
	assert.Equal(t, "traced", out.Name)
}
