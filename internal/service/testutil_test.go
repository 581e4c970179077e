package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/db"
	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/storage"
	"github.com/shinyes/filterdeck/internal/store"
)

type testServices struct {
	store   *store.SQLStore
	users   *UserService
	filters *FilterService
	groups  *FilterGroupService
	exports *ExportService
}

func setupTestServices(t *testing.T) testServices {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	sqliteDB, err := db.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		_ = sqliteDB.Close()
	})
	if err := db.Migrate(sqliteDB); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	exportStore, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "exports"))
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	sqlStore := store.New(sqliteDB)
	filters := NewFilterService(sqlStore, condition.DefaultCatalog())
	groups := NewFilterGroupService(sqlStore)
	return testServices{
		store:   sqlStore,
		users:   NewUserService(sqlStore),
		filters: filters,
		groups:  groups,
		exports: NewExportService(filters, groups, exportStore),
	}
}

func mustCreateUser(t *testing.T, s *store.SQLStore, username string) models.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), username, username, "USER")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return user
}

func mustSaveFilter(t *testing.T, services testServices, userID int64, input models.FilterInput) models.SavedFilter {
	t.Helper()
	filter, _, err := services.filters.SaveFilter(context.Background(), userID, input)
	if err != nil {
		t.Fatalf("SaveFilter(%q) error = %v", input.Name, err)
	}
	return filter
}
