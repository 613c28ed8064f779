// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xamero/smartdocs/internal/models"
)

// NewDB opens a migrated in-memory SQLite database. A single connection
// keeps the database alive for the test and serializes transactions.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.SetupModels(db))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateOffice inserts an active office
func CreateOffice(t *testing.T, db *gorm.DB, name string) *models.Office {
	t.Helper()

	code := fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
	office := &models.Office{Name: name, Code: &code, IsActive: true}
	require.NoError(t, db.Create(office).Error)
	return office
}

// CreateUser inserts an active user assigned to office; office may be nil
func CreateUser(t *testing.T, db *gorm.DB, office *models.Office, role models.Role) *models.User {
	t.Helper()

	user := &models.User{
		Name:     "user-" + uuid.NewString()[:8],
		Email:    uuid.NewString() + "@example.com",
		Role:     role,
		IsActive: true,
	}
	if office != nil {
		user.OfficeID = &office.ID
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateDocument inserts a registered main document held by office
func CreateDocument(t *testing.T, db *gorm.DB, trackingNumber string, office *models.Office, creator *models.User) *models.Document {
	t.Helper()

	now := time.Now().UTC()
	doc := &models.Document{
		TrackingNumber:  trackingNumber,
		Title:           "Document " + trackingNumber,
		DocumentType:    models.DocumentTypeIncoming,
		Priority:        models.PriorityNormal,
		Confidentiality: models.ConfidentialityPublic,
		Status:          models.StatusRegistered,
		CurrentOfficeID: office.ID,
		CreatedBy:       creator.ID,
		RegisteredBy:    creator.ID,
		DateReceived:    &now,
	}
	require.NoError(t, db.Create(doc).Error)
	return doc
}

// Reload fetches a fresh copy of a document, including soft-deleted ones
func Reload(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Document {
	t.Helper()

	var doc models.Document
	require.NoError(t, db.Unscoped().First(&doc, "id = ?", id).Error)
	return &doc
}
