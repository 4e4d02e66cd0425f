// Package storetest opens throwaway migrated sqlite stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fuomag9/servicewatch/internal/config"
	"github.com/fuomag9/servicewatch/internal/database"
	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
)

// New returns a store on a fresh sqlite file under t.TempDir.
func New(t testing.TB) *store.Store {
	t.Helper()
	cfg := config.DatabaseConfig{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")}
	db, err := database.Connect(cfg, false)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.RunMigrations(db, cfg.Type); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return store.New(db)
}

// User inserts a user with the given role.
func User(t testing.TB, s *store.Store, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Name: email, Email: email, Password: "x", Role: role}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// Service inserts a service owned by owner.
func Service(t testing.TB, s *store.Store, owner *models.User, name, url string) *models.Service {
	t.Helper()
	svc := &models.Service{OwnerID: owner.ID, Name: name, URL: url}
	if err := s.CreateService(context.Background(), svc); err != nil {
		t.Fatalf("create service: %v", err)
	}
	return svc
}
