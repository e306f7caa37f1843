package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence/models"
)

func TestOpen(t *testing.T) {
	db, err := Open(sqlite.Open(":memory:"), Options{})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))

	sqlDB, err := db.SQL()
	require.NoError(t, err)
	assert.NotNil(t, sqlDB)
}

func TestDatabase_Transaction(t *testing.T) {
	db, err := Open(sqlite.Open(":memory:"), Options{LogLevel: "silent"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.DB.AutoMigrate(&models.CompanyModel{}))

	ctx := context.Background()
	boom := errors.New("boom")

	err = db.Transaction(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&models.CompanyModel{BusinessName: "rolled back"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&models.CompanyModel{BusinessName: "kept"}).Error
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, db.DB.Model(&models.CompanyModel{}).Pluck("business_name", &names).Error)
	assert.Equal(t, []string{"kept"}, names)
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(gorm.ErrRecordNotFound, "debt"), shared.ErrNotFound)
	other := errors.New("disk full")
	assert.Equal(t, other, notFound(other, "debt"))
}
