package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/shinyes/filterdeck/internal/app"
	"github.com/shinyes/filterdeck/internal/config"
	"github.com/shinyes/filterdeck/internal/models"
)

func TestParseTTL(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "24h", want: 24 * time.Hour},
		{input: "7d", want: 7 * 24 * time.Hour},
		{input: "2day", want: 2 * 24 * time.Hour},
		{input: "3days", want: 3 * 24 * time.Hour},
		{input: "1.5d", want: 36 * time.Hour},
		{input: "0d", wantErr: true},
		{input: "-1d", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseTTL(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseTTL(%q) expected error, got nil", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseTTL(%q) unexpected error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("parseTTL(%q) got %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "simple",
			input: "user create demo pass",
			want:  []string{"user", "create", "demo", "pass"},
		},
		{
			name:  "quoted",
			input: "token create demo \"mobile token\" --ttl 7d",
			want:  []string{"token", "create", "demo", "mobile token", "--ttl", "7d"},
		},
		{
			name:  "single quote",
			input: "token create demo 'token with space'",
			want:  []string{"token", "create", "demo", "token with space"},
		},
		{
			name:  "apostrophe in token",
			input: "bootstrap-filters --user ana --name ana's",
			want:  []string{"bootstrap-filters", "--user", "ana", "--name", "ana's"},
		},
		{
			name:    "unterminated quote",
			input:   "token create demo \"bad",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		got, err := parseCommandLine(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error, got nil", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: args len got %d want %d", tc.name, len(got), len(tc.want))
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: arg[%d] got %q want %q", tc.name, i, got[i], tc.want[i])
			}
		}
	}
}

func TestResolveExpiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := resolveExpiry("", "", now)
	if err != nil || got != nil {
		t.Fatalf("resolveExpiry() without flags = %v, %v; want nil, nil", got, err)
	}
	got, err = resolveExpiry("2d", "", now)
	if err != nil {
		t.Fatalf("resolveExpiry(ttl) error = %v", err)
	}
	if want := now.Add(48 * time.Hour); !got.Equal(want) {
		t.Fatalf("resolveExpiry(ttl) = %s, want %s", got, want)
	}
	got, err = resolveExpiry("", "2026-12-31T23:59:59+08:00", now)
	if err != nil {
		t.Fatalf("resolveExpiry(expires-at) error = %v", err)
	}
	if got.Location() != time.UTC || got.Hour() != 15 {
		t.Fatalf("resolveExpiry(expires-at) = %s, want UTC 15:59:59", got)
	}
	if _, err := resolveExpiry("1d", "2026-12-31T23:59:59Z", now); err == nil {
		t.Fatalf("expected error when both --ttl and --expires-at are set")
	}
	if _, err := resolveExpiry("", "tomorrow", now); err == nil {
		t.Fatalf("expected error for non RFC3339 --expires-at")
	}
}

func TestStringListFlag(t *testing.T) {
	var tables stringList
	for _, v := range []string{"todos-table", " branches-table , requests-table ", ""} {
		if err := tables.Set(v); err != nil {
			t.Fatalf("Set(%q) error = %v", v, err)
		}
	}
	if got := tables.String(); got != "todos-table,branches-table,requests-table" {
		t.Fatalf("stringList = %q", got)
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		DBPath:             filepath.Join(dir, "filterdeck.db"),
		ExportDir:          filepath.Join(dir, "exports"),
		Storage:            config.StorageBackendLocal,
		BootstrapUser:      "demo",
		BootstrapToken:     "cmd-test-token",
		StandardFilterName: "All",
		HTTPTimeout:        5 * time.Second,
	}
}

func buildContainer(t *testing.T, cfg config.Config) *app.Container {
	t.Helper()
	container, cleanup, err := app.Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.Build() error = %v", err)
	}
	t.Cleanup(func() { _ = cleanup() })
	return container
}

func runAdminArgs(t *testing.T, c *app.Container, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := executeAdminCommand(context.Background(), c, &out, args); err != nil {
		t.Fatalf("admin %s error = %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestAdminBootstrapFiltersIsIdempotent(t *testing.T) {
	c := buildContainer(t, testConfig(t))

	first := runAdminArgs(t, c, "bootstrap-filters", "--user", "demo", "--table", "todos-table,branches-table")
	if strings.Count(first, "standard filter:") != 2 {
		t.Fatalf("unexpected bootstrap output: %s", first)
	}
	runAdminArgs(t, c, "bootstrap-filters", "--user", "demo", "--table", "todos-table")

	user, err := c.UserService.GetUserByIdentifier(context.Background(), "demo")
	if err != nil {
		t.Fatalf("GetUserByIdentifier() error = %v", err)
	}
	filters, err := c.FilterService.ListFilters(context.Background(), user.ID, "todos-table")
	if err != nil {
		t.Fatalf("ListFilters() error = %v", err)
	}
	if len(filters) != 1 || !filters[0].IsStandard || filters[0].Name != "All" {
		t.Fatalf("expected a single standard filter, got %+v", filters)
	}

	var out bytes.Buffer
	if err := executeAdminCommand(context.Background(), c, &out, []string{"bootstrap-filters", "--user", "nobody"}); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestAdminExportImportAndReport(t *testing.T) {
	c := buildContainer(t, testConfig(t))
	ctx := context.Background()
	user, err := c.UserService.GetUserByIdentifier(ctx, "demo")
	if err != nil {
		t.Fatalf("GetUserByIdentifier() error = %v", err)
	}
	if _, _, err := c.FilterService.SaveFilter(ctx, user.ID, models.FilterInput{
		TableID:    "requests-table",
		Name:       "Open",
		Conditions: []models.FilterCondition{{Column: "status", Operator: "equals", Value: "open"}},
	}); err != nil {
		t.Fatalf("SaveFilter() error = %v", err)
	}

	exported := runAdminArgs(t, c, "export", "--user", "demo", "--table", "requests-table")
	key := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(exported), "exported: key="))
	if key == "" {
		t.Fatalf("unexpected export output: %s", exported)
	}
	imported := runAdminArgs(t, c, "import", "--user", "demo", "--key", key)
	if !strings.Contains(imported, "created=0 updated=1") {
		t.Fatalf("unexpected import output: %s", imported)
	}

	md := runAdminArgs(t, c, "report", "--user", "demo", "--table", "requests-table")
	if !strings.Contains(md, "| Open |") {
		t.Fatalf("markdown report missing filter row: %s", md)
	}
	html := runAdminArgs(t, c, "report", "--user", "demo", "--table", "requests-table", "--html")
	if !strings.Contains(html, "<table>") {
		t.Fatalf("html report missing table: %s", html)
	}
}

func TestConsoleFiltersRowsThroughSavedFilter(t *testing.T) {
	cfg := testConfig(t)
	c := buildContainer(t, cfg)
	srv := httptest.NewServer(adaptor.FiberApp(c.Router))
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	cfg.APIToken = cfg.BootstrapToken

	user, err := c.UserService.GetUserByIdentifier(context.Background(), "demo")
	if err != nil {
		t.Fatalf("GetUserByIdentifier() error = %v", err)
	}
	if _, _, err := c.FilterService.SaveFilter(context.Background(), user.ID, models.FilterInput{
		TableID:    "requests-table",
		Name:       "Open",
		Conditions: []models.FilterCondition{{Column: "status", Operator: "equals", Value: "open"}},
	}); err != nil {
		t.Fatalf("SaveFilter() error = %v", err)
	}

	rowsPath := filepath.Join(t.TempDir(), "rows.json")
	rows := `[{"title":"Boiler","status":"open"},{"title":"Pump","status":"closed"}]`
	if err := os.WriteFile(rowsPath, []byte(rows), 0o644); err != nil {
		t.Fatalf("write rows: %v", err)
	}

	var out bytes.Buffer
	err = runConsole(context.Background(), cfg, []string{"--table", "requests-table", "--rows", rowsPath, "--filter", "Open"}, &out)
	if err != nil {
		t.Fatalf("runConsole() error = %v", err)
	}
	if !strings.Contains(out.String(), `filter="Open"`) || !strings.Contains(out.String(), "matched=1/2") {
		t.Fatalf("unexpected console output: %s", out.String())
	}
	if !strings.Contains(out.String(), `"Boiler"`) || strings.Contains(out.String(), `"Pump"`) {
		t.Fatalf("console printed the wrong rows: %s", out.String())
	}

	out.Reset()
	err = runConsole(context.Background(), cfg, []string{"--table", "requests-table", "--rows", rowsPath}, &out)
	if err != nil {
		t.Fatalf("runConsole() error = %v", err)
	}
	if !strings.Contains(out.String(), `filter="All"`) || !strings.Contains(out.String(), "matched=2/2") {
		t.Fatalf("expected the standard filter to pass every row: %s", out.String())
	}
}

func TestAdminGroupAndFilterCommands(t *testing.T) {
	c := buildContainer(t, testConfig(t))
	ctx := context.Background()
	user, err := c.UserService.GetUserByIdentifier(ctx, "demo")
	if err != nil {
		t.Fatalf("GetUserByIdentifier() error = %v", err)
	}
	save := func(name, status string) string {
		f, _, err := c.FilterService.SaveFilter(ctx, user.ID, models.FilterInput{
			TableID:    "requests-table",
			Name:       name,
			Conditions: []models.FilterCondition{{Column: "status", Operator: "equals", Value: status}},
		})
		if err != nil {
			t.Fatalf("SaveFilter(%s) error = %v", name, err)
		}
		return models.Int64ToString(f.ID)
	}
	open, closed, pending := save("Open", "open"), save("Closed", "closed"), save("Pending", "pending")
	base := []string{"--user", "demo", "--table", "requests-table"}
	group := func(sub string, args ...string) string {
		full := append([]string{"group", sub}, base...)
		return runAdminArgs(t, c, append(full, args...)...)
	}

	out := group("drop", "--dragged", open, "--target", closed)
	if !strings.Contains(out, "drop: created group") || !strings.Contains(out, `name="Group 1"`) {
		t.Fatalf("unexpected drop output: %s", out)
	}
	out = group("drop", "--dragged", pending, "--target", open)
	if !strings.Contains(out, "drop: joined group") || strings.Contains(out, "ungrouped:") {
		t.Fatalf("expected pending to join the group: %s", out)
	}
	out = group("drop", "--dragged", pending, "--target", closed)
	if !strings.Contains(out, "drop: nothing to do") {
		t.Fatalf("dropping inside the same group should be a no-op: %s", out)
	}

	groups, err := c.GroupService.ListGroups(ctx, user.ID, "requests-table")
	if err != nil || len(groups) != 1 {
		t.Fatalf("ListGroups() = %+v, %v", groups, err)
	}
	groupID := models.Int64ToString(groups[0].ID)
	out = group("rename", "--group", groupID, "--name", "Triage")
	if !strings.Contains(out, `group renamed: id=`+groupID+` name="Triage"`) {
		t.Fatalf("unexpected rename output: %s", out)
	}
	out = group("remove", "--filter", pending)
	if !strings.Contains(out, `ungrouped: id=`+pending) {
		t.Fatalf("expected pending to leave the group: %s", out)
	}
	out = group("ungroup", "--group", groupID)
	if strings.Contains(out, "group: id=") || strings.Count(out, "ungrouped:") != 3 {
		t.Fatalf("expected every filter ungrouped: %s", out)
	}

	out = runAdminArgs(t, c, append([]string{"filter", "rename", "--id", closed, "--name", "Done"}, base...)...)
	if !strings.Contains(out, `filter renamed: id=`+closed+` name="Done"`) {
		t.Fatalf("unexpected filter rename output: %s", out)
	}
	out = runAdminArgs(t, c, append([]string{"filter", "delete", "--id", open, "--view", "Open"}, base...)...)
	if !strings.Contains(out, `view: filter="" conditions=status equals "open"`) {
		t.Fatalf("deleting the viewed filter should leave its conditions ad hoc: %s", out)
	}

	runAdminArgs(t, c, "bootstrap-filters", "--user", "demo", "--table", "requests-table")
	filters, err := c.FilterService.ListFilters(ctx, user.ID, "requests-table")
	if err != nil {
		t.Fatalf("ListFilters() error = %v", err)
	}
	var standard string
	for _, f := range filters {
		if f.IsStandard {
			standard = models.Int64ToString(f.ID)
		}
	}
	var buf bytes.Buffer
	err = executeAdminCommand(ctx, c, &buf, append([]string{"filter", "delete", "--id", standard}, base...))
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("expected deleting the standard filter to be refused, got %v", err)
	}
	if err := executeAdminCommand(ctx, c, &buf, []string{"group", "list", "--user", "nobody", "--table", "requests-table"}); err == nil {
		t.Fatalf("expected error for unknown user")
	}
	if err := executeAdminCommand(ctx, c, &buf, []string{"group", "list", "--user", "demo"}); err == nil {
		t.Fatalf("expected error without --table")
	}
}
