package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/config"
	"github.com/shinyes/filterdeck/internal/db"
	"github.com/shinyes/filterdeck/internal/report"
	"github.com/shinyes/filterdeck/internal/service"
	"github.com/shinyes/filterdeck/internal/store"
)

const demoToken = "demo-token"

func newTestApp(t *testing.T, allowRegistration bool, withBootstrap bool) *fiber.App {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "http_test.db")
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

	sqlStore := store.New(sqliteDB)
	userService := service.NewUserService(sqlStore)
	if withBootstrap {
		if err := userService.EnsureBootstrap(context.Background(), "demo", demoToken); err != nil {
			t.Fatalf("EnsureBootstrap() error = %v", err)
		}
	}
	filterService := service.NewFilterService(sqlStore, condition.DefaultCatalog())
	groupService := service.NewFilterGroupService(sqlStore)

	cfg := config.Config{AllowRegistration: allowRegistration}
	return NewRouter(cfg, userService, filterService, groupService, report.NewRenderer())
}

// doJSON sends body as JSON with the demo token and returns the response.
func doJSON(t *testing.T, app *fiber.App, method string, path string, body any) *http.Response {
	t.Helper()
	return sendJSON(t, app, method, path, demoToken, body)
}

// sendJSON is doJSON with an explicit bearer token; an empty token sends none.
func sendJSON(t *testing.T, app *fiber.App, method string, path string, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}
