// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"wainbox/pkg/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database that lives for the
// duration of the test. A single connection is kept open so every query
// sees the same in-memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateNumber inserts an active WhatsApp number
func CreateNumber(t testing.TB, db *gorm.DB, displayName, phoneNumberID string) *models.WhatsAppNumber {
	t.Helper()
	number := &models.WhatsAppNumber{DisplayName: displayName, PhoneNumberID: phoneNumberID, IsActive: true}
	if err := db.WithContext(context.Background()).Create(number).Error; err != nil {
		t.Fatalf("create number: %v", err)
	}
	return number
}

// CreateUser inserts an active user with the given role
func CreateUser(t testing.TB, db *gorm.DB, username, role string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Name: username, PasswordHash: "x", Role: role, IsActive: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// Assign gives user access to number
func Assign(t testing.TB, db *gorm.DB, userID, numberID uint) {
	t.Helper()
	if err := db.Create(&models.Assignment{UserID: userID, WaNumberID: numberID}).Error; err != nil {
		t.Fatalf("create assignment: %v", err)
	}
}
