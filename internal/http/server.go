package http

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"golang.org/x/sync/errgroup"

	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/config"
	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/report"
	"github.com/shinyes/filterdeck/internal/service"
)

const savedFiltersPrefix = "/saved-filters"

func NewRouter(
	cfg config.Config,
	userService *service.UserService,
	filterService *service.FilterService,
	groupService *service.FilterGroupService,
	renderer *report.Renderer,
) *fiber.App {
	bodyLimit := cfg.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 4
	}
	app := fiber.New(fiber.Config{BodyLimit: bodyLimit * 1024 * 1024})
	app.Use(cors.New())

	app.Post("/api/v1/auth/signin", func(c *fiber.Ctx) error {
		var req signInRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.PasswordCredentials == nil {
			return badRequest(c, "passwordCredentials is required")
		}

		user, accessToken, err := userService.SignInWithPassword(
			c.Context(),
			req.PasswordCredentials.Username,
			req.PasswordCredentials.Password,
		)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidCredentials):
				return badRequest(c, "unmatched username and password")
			default:
				return internalError(c, err)
			}
		}

		return c.JSON(signInResponse{
			User:        toAPIUser(user),
			AccessToken: accessToken,
		})
	})

	app.Post("/api/v1/users", func(c *fiber.Ctx) error {
		var req createUserRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}

		creator, err := OptionalAuthenticateToken(c, userService)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "invalid access token",
			})
		}

		user, err := userService.CreateUser(c.Context(), creator, service.CreateUserInput{
			Username:    req.User.Username,
			DisplayName: req.User.DisplayName,
			Password:    req.User.Password,
			Role:        req.User.Role,
		}, cfg.AllowRegistration)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidUsername):
				return badRequest(c, "invalid username")
			case errors.Is(err, service.ErrInvalidDisplayName):
				return badRequest(c, "invalid displayName")
			case errors.Is(err, service.ErrInvalidPassword):
				return badRequest(c, "invalid password")
			case errors.Is(err, service.ErrInvalidRole):
				return badRequest(c, "invalid role")
			case errors.Is(err, service.ErrUsernameAlreadyExists):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "username already exists"})
			case errors.Is(err, service.ErrRegistrationDisabled):
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "user registration is not allowed"})
			default:
				return internalError(c, err)
			}
		}

		return c.JSON(toAPIUser(user))
	})

	api := app.Group("/api/v1", AuthMiddleware(userService))
	api.Get("/auth/me", func(c *fiber.Ctx) error {
		return c.JSON(getCurrentUserResponse{
			User: toAPIUser(CurrentUser(c)),
		})
	})

	api.Get("/tables", func(c *fiber.Ctx) error {
		catalog := filterService.Catalog()
		tables := make([]apiTable, 0, len(catalog))
		for _, tableID := range catalog.TableIDs() {
			tables = append(tables, toAPITable(tableID, catalog.Schema(tableID)))
		}
		return c.JSON(listTablesResponse{Tables: tables})
	})

	filters := api.Group(savedFiltersPrefix)

	// group routes first so "groups" is never read as a filter id
	filters.Get("/groups/table/:tableId", func(c *fiber.Ctx) error {
		groups, err := groupService.ListGroups(c.Context(), CurrentUser(c).ID, c.Params("tableId"))
		if err != nil {
			return filterError(c, err)
		}
		return c.JSON(groups)
	})

	filters.Post("/groups", func(c *fiber.Ctx) error {
		var req groupRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		group, err := groupService.CreateGroup(c.Context(), CurrentUser(c).ID, req.TableID, req.Name)
		if err != nil {
			return filterError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(group)
	})

	filters.Patch("/groups/:id", func(c *fiber.Ctx) error {
		groupID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid group id")
		}
		var req groupRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		group, err := groupService.RenameGroup(c.Context(), CurrentUser(c).ID, groupID, req.Name)
		if err != nil {
			return filterError(c, err)
		}
		return c.JSON(group)
	})

	filters.Delete("/groups/:id", func(c *fiber.Ctx) error {
		groupID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid group id")
		}
		if err := groupService.DeleteGroup(c.Context(), CurrentUser(c).ID, groupID); err != nil {
			return filterError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	filters.Get("/table/:tableId", func(c *fiber.Ctx) error {
		list, err := filterService.ListFilters(c.Context(), CurrentUser(c).ID, c.Params("tableId"))
		if err != nil {
			return filterError(c, err)
		}
		return c.JSON(list)
	})

	filters.Get("/table/:tableId/report", func(c *fiber.Ctx) error {
		userID := CurrentUser(c).ID
		tableID := c.Params("tableId")
		var list []models.SavedFilter
		var groups []models.FilterGroup
		g, gctx := errgroup.WithContext(c.UserContext())
		g.Go(func() error {
			var err error
			list, err = filterService.ListFilters(gctx, userID, tableID)
			return err
		})
		g.Go(func() error {
			var err error
			groups, err = groupService.ListGroups(gctx, userID, tableID)
			return err
		})
		if err := g.Wait(); err != nil {
			return filterError(c, err)
		}
		rep, err := renderer.Render(tableID, list, groups)
		if err != nil {
			return internalError(c, err)
		}
		if strings.Contains(c.Get(fiber.HeaderAccept), "text/markdown") {
			c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
			return c.SendString(rep.Markdown)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(rep.HTML)
	})

	filters.Post("/", func(c *fiber.Ctx) error {
		var req models.FilterInput
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		saved, created, err := filterService.SaveFilter(c.Context(), CurrentUser(c).ID, req)
		if err != nil {
			return filterError(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(saved)
	})

	filters.Get("/:id/expression", func(c *fiber.Ctx) error {
		filterID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid filter id")
		}
		expr, err := filterService.Expression(c.Context(), CurrentUser(c).ID, filterID)
		if err != nil {
			return filterError(c, err)
		}
		return c.JSON(expressionResponse{Expression: expr})
	})

	filters.Post("/:filterId/group/:groupId", func(c *fiber.Ctx) error {
		filterID, err := parseID(c.Params("filterId"))
		if err != nil {
			return badRequest(c, "invalid filter id")
		}
		groupID, err := parseID(c.Params("groupId"))
		if err != nil {
			return badRequest(c, "invalid group id")
		}
		group, err := groupService.AddFilter(c.Context(), CurrentUser(c).ID, filterID, groupID)
		if err != nil {
			return filterError(c, err)
		}
		return c.JSON(group)
	})

	filters.Delete("/:filterId/group", func(c *fiber.Ctx) error {
		filterID, err := parseID(c.Params("filterId"))
		if err != nil {
			return badRequest(c, "invalid filter id")
		}
		filter, err := groupService.RemoveFilter(c.Context(), CurrentUser(c).ID, filterID)
		if err != nil {
			return filterError(c, err)
		}
		return c.JSON(filter)
	})

	filters.Patch("/:id", func(c *fiber.Ctx) error {
		filterID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid filter id")
		}
		var patch models.FilterPatch
		if err := c.BodyParser(&patch); err != nil {
			return badRequest(c, "invalid request body")
		}
		updated, err := filterService.UpdateFilter(c.Context(), CurrentUser(c).ID, filterID, patch)
		if err != nil {
			return filterError(c, err)
		}
		return c.JSON(updated)
	})

	filters.Delete("/:id", func(c *fiber.Ctx) error {
		filterID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid filter id")
		}
		if err := filterService.DeleteFilter(c.Context(), CurrentUser(c).ID, filterID); err != nil {
			return filterError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	return app
}

// filterError maps service errors on filters and groups to status codes.
func filterError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return notFound(c, "not found")
	case errors.Is(err, service.ErrInvalidFilterName),
		errors.Is(err, service.ErrInvalidGroupName),
		errors.Is(err, service.ErrInvalidTableID),
		errors.Is(err, service.ErrInvalidConditions),
		errors.Is(err, service.ErrTableMismatch):
		return badRequest(c, err.Error())
	case errors.Is(err, service.ErrStandardFilter):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, service.ErrFilterAlreadyExists),
		errors.Is(err, service.ErrGroupAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": err.Error()})
	default:
		return internalError(c, err)
	}
}

func toAPIUser(user models.User) apiUser {
	role := strings.ToUpper(strings.TrimSpace(user.Role))
	switch role {
	case "HOST", "ADMIN":
		role = "ADMIN"
	case "USER":
	default:
		role = "ROLE_UNSPECIFIED"
	}
	name := ""
	if user.ID > 0 {
		name = user.Name()
	}
	return apiUser{
		Name:        name,
		Role:        role,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		CreateTime:  formatMaybeTime(user.CreateTime),
		UpdateTime:  formatMaybeTime(user.UpdateTime),
	}
}

func toAPITable(tableID string, schema condition.Schema) apiTable {
	columns := make([]apiColumn, 0, len(schema))
	for _, name := range schema.Columns() {
		colType := schema[name]
		ops := condition.OperatorsFor(colType)
		names := make([]string, 0, len(ops))
		for _, op := range ops {
			names = append(names, string(op))
		}
		columns = append(columns, apiColumn{Name: name, Type: string(colType), Operators: names})
	}
	return apiTable{ID: tableID, Columns: columns}
}

func formatMaybeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive")
	}
	return id, nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": message,
	})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"message": message,
	})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": err.Error(),
	})
}
