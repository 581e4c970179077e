package filterclient_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/config"
	"github.com/shinyes/filterdeck/internal/db"
	"github.com/shinyes/filterdeck/internal/filterclient"
	apihttp "github.com/shinyes/filterdeck/internal/http"
	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/report"
	"github.com/shinyes/filterdeck/internal/service"
	"github.com/shinyes/filterdeck/internal/store"
)

const (
	table = "requests-table"
	token = "contract-token"
)

type backend struct {
	users   *service.UserService
	filters *service.FilterService
	groups  *service.FilterGroupService
	userID  int64
}

func newBackend(t *testing.T) backend {
	t.Helper()
	sqliteDB, err := db.OpenSQLite(filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteDB.Close() })
	require.NoError(t, db.Migrate(sqliteDB))

	sqlStore := store.New(sqliteDB)
	users := service.NewUserService(sqlStore)
	require.NoError(t, users.EnsureBootstrap(context.Background(), "demo", token))
	user, err := users.GetUserByIdentifier(context.Background(), "demo")
	require.NoError(t, err)
	return backend{
		users:   users,
		filters: service.NewFilterService(sqlStore, condition.DefaultCatalog()),
		groups:  service.NewFilterGroupService(sqlStore),
		userID:  user.ID,
	}
}

func remotes(t *testing.T) map[string]func(t *testing.T) filterclient.Remote {
	return map[string]func(t *testing.T) filterclient.Remote{
		"memory": func(*testing.T) filterclient.Remote {
			return filterclient.NewMemory(nil)
		},
		"local": func(t *testing.T) filterclient.Remote {
			b := newBackend(t)
			return filterclient.NewLocal(b.filters, b.groups, b.userID)
		},
		"http": func(t *testing.T) filterclient.Remote {
			b := newBackend(t)
			app := apihttp.NewRouter(config.Config{}, b.users, b.filters, b.groups, report.NewRenderer())
			srv := httptest.NewServer(adaptor.FiberApp(app))
			t.Cleanup(srv.Close)
			return filterclient.NewClient(srv.URL, token)
		},
	}
}

func openStatus() []models.FilterCondition {
	return []models.FilterCondition{{Column: "status", Operator: "equals", Value: "open"}}
}

func TestRemoteFilterLifecycle(t *testing.T) {
	for name, build := range remotes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := build(t)

			created, err := r.CreateFilter(ctx, models.FilterInput{TableID: table, Name: "Open", Conditions: openStatus()})
			require.NoError(t, err)
			assert.Equal(t, "Open", created.Name)
			assert.False(t, created.IsStandard)

			upserted, err := r.CreateFilter(ctx, models.FilterInput{
				TableID:    table,
				Name:       "Open",
				Conditions: []models.FilterCondition{{Column: "status", Operator: "equals", Value: "reopened"}},
			})
			require.NoError(t, err)
			assert.Equal(t, created.ID, upserted.ID)

			list, err := r.ListFilters(ctx, table)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "reopened", list[0].Conditions[0].Value)

			other, err := r.CreateFilter(ctx, models.FilterInput{TableID: table, Name: "Closed"})
			require.NoError(t, err)
			clash := "Open"
			_, err = r.UpdateFilter(ctx, other.ID, models.FilterPatch{Name: &clash})
			assert.ErrorIs(t, err, filterclient.ErrAlreadyExists)

			renamed := "Done"
			updated, err := r.UpdateFilter(ctx, other.ID, models.FilterPatch{Name: &renamed})
			require.NoError(t, err)
			assert.Equal(t, "Done", updated.Name)

			require.NoError(t, r.DeleteFilter(ctx, other.ID))
			assert.ErrorIs(t, r.DeleteFilter(ctx, other.ID), filterclient.ErrNotFound)
			_, err = r.UpdateFilter(ctx, other.ID, models.FilterPatch{Name: &renamed})
			assert.ErrorIs(t, err, filterclient.ErrNotFound)
		})
	}
}

func TestRemoteStandardFilterRules(t *testing.T) {
	for name, build := range remotes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := build(t)

			std, err := r.CreateFilter(ctx, models.FilterInput{TableID: table, Name: "All", IsStandard: true})
			require.NoError(t, err)
			assert.True(t, std.IsStandard)

			_, err = r.CreateFilter(ctx, models.FilterInput{TableID: table, Name: "All", Conditions: openStatus()})
			assert.ErrorIs(t, err, filterclient.ErrAlreadyExists)

			renamed := "Everything"
			_, err = r.UpdateFilter(ctx, std.ID, models.FilterPatch{Name: &renamed})
			assert.ErrorIs(t, err, filterclient.ErrRejected)

			conds := openStatus()
			_, err = r.UpdateFilter(ctx, std.ID, models.FilterPatch{Conditions: &conds})
			assert.ErrorIs(t, err, filterclient.ErrRejected)

			assert.ErrorIs(t, r.DeleteFilter(ctx, std.ID), filterclient.ErrRejected)

			list, err := r.ListFilters(ctx, table)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Empty(t, list[0].Conditions)
		})
	}
}

func TestRemoteGroupLifecycle(t *testing.T) {
	for name, build := range remotes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := build(t)

			a, err := r.CreateFilter(ctx, models.FilterInput{TableID: table, Name: "A"})
			require.NoError(t, err)
			b, err := r.CreateFilter(ctx, models.FilterInput{TableID: table, Name: "B"})
			require.NoError(t, err)

			group, err := r.CreateGroup(ctx, table, "Triage")
			require.NoError(t, err)
			_, err = r.CreateGroup(ctx, table, "Triage")
			assert.ErrorIs(t, err, filterclient.ErrAlreadyExists)

			require.NoError(t, r.AddFilterToGroup(ctx, a.ID, group.ID))
			require.NoError(t, r.AddFilterToGroup(ctx, b.ID, group.ID))
			assert.ErrorIs(t, r.AddFilterToGroup(ctx, a.ID, group.ID+100), filterclient.ErrNotFound)

			groups, err := r.ListGroups(ctx, table)
			require.NoError(t, err)
			require.Len(t, groups, 1)
			require.Len(t, groups[0].Filters, 2)
			assert.Equal(t, a.ID, groups[0].Filters[0].ID)
			assert.Equal(t, 0, groups[0].Filters[0].Order)
			assert.Equal(t, 1, groups[0].Filters[1].Order)

			renamed, err := r.UpdateGroup(ctx, group.ID, "Inbox")
			require.NoError(t, err)
			assert.Equal(t, "Inbox", renamed.Name)

			require.NoError(t, r.RemoveFilterFromGroup(ctx, a.ID))
			require.NoError(t, r.DeleteGroup(ctx, group.ID))

			groups, err = r.ListGroups(ctx, table)
			require.NoError(t, err)
			assert.Empty(t, groups)

			filters, err := r.ListFilters(ctx, table)
			require.NoError(t, err)
			require.Len(t, filters, 2)
			for _, f := range filters {
				assert.False(t, f.Grouped(), "filter %q still grouped", f.Name)
			}
		})
	}
}

func TestClientRequiresToken(t *testing.T) {
	b := newBackend(t)
	app := apihttp.NewRouter(config.Config{}, b.users, b.filters, b.groups, report.NewRenderer())
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	_, err := filterclient.NewClient(srv.URL, "wrong").ListFilters(context.Background(), table)
	assert.ErrorIs(t, err, filterclient.ErrUnauthorized)
}

func TestClientExpression(t *testing.T) {
	b := newBackend(t)
	app := apihttp.NewRouter(config.Config{}, b.users, b.filters, b.groups, report.NewRenderer())
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	c := filterclient.NewClient(srv.URL+"/", token)
	f, err := c.CreateFilter(context.Background(), models.FilterInput{TableID: table, Name: "Open", Conditions: openStatus()})
	require.NoError(t, err)

	expr, err := c.Expression(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Contains(t, expr, "status")
	assert.Contains(t, expr, `"open"`)
}
