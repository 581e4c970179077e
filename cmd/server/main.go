package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shinyes/filterdeck/internal/app"
	"github.com/shinyes/filterdeck/internal/bootstrap"
	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/config"
	"github.com/shinyes/filterdeck/internal/filtercache"
	"github.com/shinyes/filterdeck/internal/filterclient"
	"github.com/shinyes/filterdeck/internal/identity"
	"github.com/shinyes/filterdeck/internal/logging"
	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/selection"
	"github.com/shinyes/filterdeck/internal/service"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		runServe(nil)
		return
	}

	switch args[0] {
	case "serve":
		runServe(args[1:])
	case "admin":
		if err := runAdmin(args[1:]); err != nil {
			log.Fatal(err)
		}
	case "console":
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		if err := runConsole(context.Background(), cfg, args[1:], os.Stdout); err != nil {
			log.Fatal(err)
		}
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		printUsage(os.Stdout)
		os.Exit(2)
	}
}

func runServe(args []string) {
	serveFlagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	serveFlagSet.SetOutput(io.Discard)
	consoleMode := serveFlagSet.Bool("console", false, "enable runtime admin console")
	if err := serveFlagSet.Parse(args); err != nil {
		log.Fatalf("parse serve args: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	container, cleanup, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	defer cleanup() //nolint:errcheck

	log.Printf("filterdeck listening on %s (storage=%s, tables=%d)", cfg.Addr, cfg.Storage, len(container.Catalog))
	if cfg.BootstrapToken != "" {
		log.Printf("bootstrap token enabled for user=%s", cfg.BootstrapUser)
	}
	if *consoleMode {
		log.Printf("runtime admin console enabled")
		go runRuntimeConsole(container)
	}
	log.Fatal(container.Router.Listen(cfg.Addr))
}

func runAdmin(args []string) error {
	if len(args) == 0 {
		printUsage(os.Stdout)
		return fmt.Errorf("invalid admin command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	container, cleanup, err := app.Open(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("open app: %w", err)
	}
	defer cleanup() //nolint:errcheck

	return executeAdminCommand(context.Background(), container, os.Stdout, args)
}

func executeAdminCommand(ctx context.Context, c *app.Container, out io.Writer, args []string) error {
	switch args[0] {
	case "user":
		return runAdminUser(ctx, c.UserService, out, args[1:])
	case "token":
		return runAdminToken(ctx, c.UserService, out, args[1:])
	case "tables":
		for _, tableID := range c.Catalog.TableIDs() {
			fmt.Fprintf(out, "%s\t%s\n", tableID, strings.Join(c.Catalog.Schema(tableID).Columns(), ","))
		}
		return nil
	case "bootstrap-filters":
		return runAdminBootstrapFilters(ctx, c, out, args[1:])
	case "export":
		return runAdminExport(ctx, c, out, args[1:])
	case "import":
		return runAdminImport(ctx, c, out, args[1:])
	case "report":
		return runAdminReport(ctx, c, out, args[1:])
	case "group":
		return runAdminGroup(ctx, c, out, args[1:])
	case "filter":
		return runAdminFilter(ctx, c, out, args[1:])
	default:
		printUsage(out)
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func runRuntimeConsole(c *app.Container) {
	fmt.Println("Runtime Console: type a command, e.g. bootstrap-filters --user demo")
	fmt.Println("Runtime Console: help lists commands, exit closes the console (the server keeps running)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("filterdeck> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("console read error: %v\n", err)
			}
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parsed, err := parseCommandLine(line)
		if err != nil {
			fmt.Printf("parse command error: %v\n", err)
			continue
		}
		if len(parsed) == 0 {
			continue
		}

		switch strings.ToLower(parsed[0]) {
		case "help":
			printRuntimeConsoleUsage(os.Stdout)
			continue
		case "exit", "quit":
			fmt.Println("runtime console closed")
			return
		case "admin":
			parsed = parsed[1:]
			if len(parsed) == 0 {
				printRuntimeConsoleUsage(os.Stdout)
				continue
			}
		}

		if err := executeAdminCommand(context.Background(), c, os.Stdout, parsed); err != nil {
			fmt.Printf("command failed: %v\n", err)
		}
	}
}

func runAdminUser(ctx context.Context, userService *service.UserService, out io.Writer, args []string) error {
	if len(args) < 3 || args[0] != "create" {
		printUsage(out)
		return fmt.Errorf("usage: admin user create <username> <password> [display_name] [role]")
	}

	username := strings.TrimSpace(args[1])
	password := strings.TrimSpace(args[2])
	displayName := ""
	if len(args) >= 4 {
		displayName = strings.TrimSpace(args[3])
	}
	role := "USER"
	if len(args) >= 5 {
		role = strings.TrimSpace(args[4])
	}

	admin := &models.User{Role: "ADMIN"}
	user, err := userService.CreateUser(ctx, admin, service.CreateUserInput{
		Username:    username,
		DisplayName: displayName,
		Password:    password,
		Role:        role,
	}, true)
	if err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	fmt.Fprintf(out, "user created: id=%d username=%s role=%s\n", user.ID, user.Username, user.Role)
	return nil
}

func runAdminToken(ctx context.Context, userService *service.UserService, out io.Writer, args []string) error {
	if len(args) == 0 {
		printUsage(out)
		return fmt.Errorf("usage: admin token <create|list|revoke> ...")
	}
	switch args[0] {
	case "create":
		return runAdminTokenCreate(ctx, userService, out, args[1:])
	case "list":
		return runAdminTokenList(ctx, userService, out, args[1:])
	case "revoke":
		return runAdminTokenRevoke(ctx, userService, out, args[1:])
	default:
		printUsage(out)
		return fmt.Errorf("unknown token subcommand: %s", args[0])
	}
}

func runAdminTokenCreate(ctx context.Context, userService *service.UserService, out io.Writer, args []string) error {
	if len(args) < 1 {
		printUsage(out)
		return fmt.Errorf("usage: admin token create <username_or_id> [description] [--ttl 7d|24h] [--expires-at 2026-12-31T23:59:59Z]")
	}

	identifier := strings.TrimSpace(args[0])
	flagSet := flag.NewFlagSet("admin token create", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	descriptionFlag := flagSet.String("description", "", "token description")
	ttlFlag := flagSet.String("ttl", "", "token ttl, e.g. 24h")
	expiresAtFlag := flagSet.String("expires-at", "", "token expiry in RFC3339")
	if err := flagSet.Parse(args[1:]); err != nil {
		return fmt.Errorf("parse token args failed: %w", err)
	}

	description := strings.TrimSpace(*descriptionFlag)
	if description == "" && len(flagSet.Args()) > 0 {
		description = strings.TrimSpace(strings.Join(flagSet.Args(), " "))
	} else if description != "" && len(flagSet.Args()) > 0 {
		return fmt.Errorf("description already set by --description, remove extra positional text")
	}

	expiresAt, err := resolveExpiry(strings.TrimSpace(*ttlFlag), strings.TrimSpace(*expiresAtFlag), time.Now())
	if err != nil {
		return err
	}

	user, token, err := userService.CreateAccessTokenForUserWithExpiry(ctx, identifier, description, expiresAt)
	if err != nil {
		if errors.Is(err, service.ErrTokenAlreadyExists) {
			return fmt.Errorf("create token failed: token collision, please retry")
		}
		if errors.Is(err, service.ErrInvalidTokenExpiry) {
			return fmt.Errorf("create token failed: expires-at must be in the future")
		}
		return fmt.Errorf("create token failed: %w", err)
	}
	fmt.Fprintf(out, "token created: user=%s(%d)\n", user.Username, user.ID)
	fmt.Fprintf(out, "accessToken=%s\n", token)
	if expiresAt != nil {
		fmt.Fprintf(out, "expiresAt=%s\n", expiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// resolveExpiry turns the mutually exclusive --ttl / --expires-at flags into
// an optional absolute expiry.
func resolveExpiry(ttlRaw, expiresAtRaw string, now time.Time) (*time.Time, error) {
	switch {
	case ttlRaw != "" && expiresAtRaw != "":
		return nil, fmt.Errorf("--ttl and --expires-at cannot be used together")
	case ttlRaw != "":
		ttl, err := parseTTL(ttlRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid --ttl %q: %w", ttlRaw, err)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("--ttl must be greater than 0")
		}
		v := now.UTC().Add(ttl)
		return &v, nil
	case expiresAtRaw != "":
		v, err := time.Parse(time.RFC3339, expiresAtRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid --expires-at %q, expected RFC3339", expiresAtRaw)
		}
		v = v.UTC()
		return &v, nil
	}
	return nil, nil
}

func runAdminTokenList(ctx context.Context, userService *service.UserService, out io.Writer, args []string) error {
	if len(args) < 1 {
		printUsage(out)
		return fmt.Errorf("usage: admin token list <username_or_id>")
	}
	identifier := strings.TrimSpace(args[0])
	user, tokens, err := userService.ListAccessTokensForUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user not found: %s", identifier)
		}
		return fmt.Errorf("list tokens failed: %w", err)
	}

	fmt.Fprintf(out, "tokens for user=%s(%d), count=%d\n", user.Username, user.ID, len(tokens))
	fmt.Fprintln(out, "id\tprefix\tactive\tcreatedAt\texpiresAt\trevokedAt\tlastUsedAt\tdescription")
	now := time.Now()
	for _, token := range tokens {
		fmt.Fprintf(out,
			"%d\t%s\t%t\t%s\t%s\t%s\t%s\t%s\n",
			token.ID,
			token.TokenPrefix,
			token.Active(now),
			token.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(token.ExpiresAt),
			formatOptionalTime(token.RevokedAt),
			formatOptionalTime(token.LastUsedAt),
			strings.TrimSpace(token.Description),
		)
	}
	return nil
}

func runAdminTokenRevoke(ctx context.Context, userService *service.UserService, out io.Writer, args []string) error {
	if len(args) < 1 {
		printUsage(out)
		return fmt.Errorf("usage: admin token revoke <token_id>")
	}
	tokenID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || tokenID <= 0 {
		return fmt.Errorf("invalid token_id: %s", args[0])
	}

	token, err := userService.RevokeAccessTokenByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("token not found: %d", tokenID)
		}
		if errors.Is(err, service.ErrTokenAlreadyRevoked) {
			fmt.Fprintf(out, "token already revoked: id=%d revokedAt=%s\n", tokenID, formatOptionalTime(token.RevokedAt))
			return nil
		}
		return fmt.Errorf("revoke token failed: %w", err)
	}
	fmt.Fprintf(out, "token revoked: id=%d user_id=%d revokedAt=%s\n", token.ID, token.UserID, formatOptionalTime(token.RevokedAt))
	return nil
}

// stringList collects a repeatable flag such as --table a --table b.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

func lookupUser(ctx context.Context, userService *service.UserService, identifier string) (models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.User{}, fmt.Errorf("--user is required")
	}
	user, err := userService.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user not found: %s", identifier)
		}
		return models.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func runAdminBootstrapFilters(ctx context.Context, c *app.Container, out io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("admin bootstrap-filters", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	userFlag := flagSet.String("user", "", "username or id")
	nameFlag := flagSet.String("name", c.Config.StandardFilterName, "standard filter name")
	var tables stringList
	flagSet.Var(&tables, "table", "table id, repeatable; defaults to every catalog table")
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("parse bootstrap-filters args failed: %w", err)
	}

	user, err := lookupUser(ctx, c.UserService, *userFlag)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		tables = c.Catalog.TableIDs()
	}

	remote := filterclient.NewLocal(c.FilterService, c.GroupService, user.ID)
	boot := bootstrap.New(remote, nil,
		bootstrap.WithName(*nameFlag),
		bootstrap.WithLogger(logging.Std(log.Default())),
	)
	filters, err := boot.EnsureAll(ctx, tables...)
	if err != nil {
		return fmt.Errorf("bootstrap filters failed: %w", err)
	}
	for _, f := range filters {
		fmt.Fprintf(out, "standard filter: table=%s id=%d name=%s\n", f.TableID, f.ID, f.Name)
	}
	return nil
}

func runAdminExport(ctx context.Context, c *app.Container, out io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("admin export", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	userFlag := flagSet.String("user", "", "username or id")
	tableFlag := flagSet.String("table", "", "table id")
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("parse export args failed: %w", err)
	}
	user, err := lookupUser(ctx, c.UserService, *userFlag)
	if err != nil {
		return err
	}
	key, err := c.ExportService.Export(ctx, user.ID, *tableFlag)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Fprintf(out, "exported: key=%s\n", key)
	return nil
}

func runAdminImport(ctx context.Context, c *app.Container, out io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("admin import", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	userFlag := flagSet.String("user", "", "username or id")
	keyFlag := flagSet.String("key", "", "storage key written by admin export")
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("parse import args failed: %w", err)
	}
	if strings.TrimSpace(*keyFlag) == "" {
		return fmt.Errorf("--key is required")
	}
	user, err := lookupUser(ctx, c.UserService, *userFlag)
	if err != nil {
		return err
	}
	result, err := c.ExportService.Import(ctx, user.ID, strings.TrimSpace(*keyFlag))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(out, "import complete: created=%d updated=%d skipped=%d groups_created=%d\n",
		result.Created, result.Updated, result.Skipped, result.GroupsCreated)
	return nil
}

func runAdminReport(ctx context.Context, c *app.Container, out io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("admin report", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	userFlag := flagSet.String("user", "", "username or id")
	tableFlag := flagSet.String("table", "", "table id")
	htmlFlag := flagSet.Bool("html", false, "print HTML instead of markdown")
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("parse report args failed: %w", err)
	}
	user, err := lookupUser(ctx, c.UserService, *userFlag)
	if err != nil {
		return err
	}
	tableID := strings.TrimSpace(*tableFlag)
	filters, err := c.FilterService.ListFilters(ctx, user.ID, tableID)
	if err != nil {
		return fmt.Errorf("load filters: %w", err)
	}
	groups, err := c.GroupService.ListGroups(ctx, user.ID, tableID)
	if err != nil {
		return fmt.Errorf("load groups: %w", err)
	}
	rep, err := c.Renderer.Render(tableID, filters, groups)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if *htmlFlag {
		fmt.Fprint(out, rep.HTML)
	} else {
		fmt.Fprint(out, rep.Markdown)
	}
	return nil
}

// runConsole mounts one table view against a running server: it bootstraps the
// standard filter, selects the default and prints the rows it lets through.
func runConsole(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	flagSet := flag.NewFlagSet("console", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	tableFlag := flagSet.String("table", "", "table id")
	rowsFlag := flagSet.String("rows", "", "JSON file holding an array of row objects")
	filterFlag := flagSet.String("filter", "", "saved filter to select before the standard one")
	roleFlag := flagSet.String("role", "", "role of the active identity")
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("parse console args failed: %w", err)
	}
	tableID := strings.TrimSpace(*tableFlag)
	if tableID == "" {
		return fmt.Errorf("--table is required")
	}
	rows, err := readRows(*rowsFlag)
	if err != nil {
		return err
	}

	catalog := condition.DefaultCatalog()
	if cfg.TableCatalogPath != "" {
		if catalog, err = condition.LoadCatalog(cfg.TableCatalogPath); err != nil {
			return fmt.Errorf("load table catalog: %w", err)
		}
	}

	logger := logging.Std(log.Default())
	remote := filterclient.NewClient(cfg.BaseURL, cfg.APIToken, filterclient.WithTimeout(cfg.HTTPTimeout))
	session := identity.NewSession(identity.Identity{Username: cfg.BootstrapUser, Role: strings.TrimSpace(*roleFlag)})
	cache := filtercache.New(remote, filtercache.Options{
		TTL:           cfg.Cache.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
		MaxTables:     cfg.Cache.MaxTables,
		MaxFilters:    cfg.Cache.MaxFilters,
		Logger:        logger,
	})
	defer cache.WatchIdentity(session)()
	if err := cache.Start(); err != nil {
		return err
	}
	defer cache.Stop()

	standard, err := bootstrap.New(remote, cache,
		bootstrap.WithName(cfg.StandardFilterName),
		bootstrap.WithLogger(logger),
	).Ensure(ctx, tableID)
	if err != nil {
		return fmt.Errorf("ensure standard filter: %w", err)
	}

	view := selection.NewController(selection.Config{
		TableID:   tableID,
		Source:    cache,
		Evaluator: condition.NewEvaluator(condition.WithSchema(catalog.Schema(tableID))),
		Defaults:  selection.Names(strings.TrimSpace(*filterFlag), standard.Name),
	})
	defer view.Close()
	view.Init(ctx)

	feed := selection.NewFeed(func(context.Context, selection.State) ([]map[string]any, error) {
		return selection.Filter(view, rows, condition.MapAccessor), nil
	}, nil)
	defer feed.Close()
	state := view.State()
	<-feed.Update(ctx, state)
	matched, err := feed.Rows()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "table=%s filter=%q conditions=%d matched=%d/%d\n",
		tableID, state.ActiveFilterName, len(state.Conditions), len(matched), len(rows))
	enc := json.NewEncoder(out)
	for _, row := range matched {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func readRows(path string) ([]map[string]any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--rows is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  go run ./cmd/server")
	fmt.Fprintln(out, "  go run ./cmd/server serve [--console]")
	fmt.Fprintln(out, "  go run ./cmd/server console --table <table_id> --rows rows.json [--filter name] [--role role]")
	fmt.Fprintln(out, "  go run ./cmd/server admin tables")
	fmt.Fprintln(out, "  go run ./cmd/server admin bootstrap-filters --user <username_or_id> [--table id ...] [--name All]")
	fmt.Fprintln(out, "  go run ./cmd/server admin export --user <username_or_id> --table <table_id>")
	fmt.Fprintln(out, "  go run ./cmd/server admin import --user <username_or_id> --key <storage_key>")
	fmt.Fprintln(out, "  go run ./cmd/server admin report --user <username_or_id> --table <table_id> [--html]")
	fmt.Fprintln(out, "  go run ./cmd/server admin group list|create|drop|rename|ungroup|remove --user <username_or_id> --table <table_id> [--name n] [--group id] [--filter id ...] [--dragged id --target id]")
	fmt.Fprintln(out, "  go run ./cmd/server admin filter rename|delete --user <username_or_id> --table <table_id> --id <filter_id> [--name n] [--view name]")
	fmt.Fprintln(out, "  go run ./cmd/server admin user create <username> <password> [display_name] [role]")
	fmt.Fprintln(out, "  go run ./cmd/server admin token create <username_or_id> [description] [--ttl 7d|24h] [--expires-at 2026-12-31T23:59:59Z]")
	fmt.Fprintln(out, "  go run ./cmd/server admin token list <username_or_id>")
	fmt.Fprintln(out, "  go run ./cmd/server admin token revoke <token_id>")
}

func printRuntimeConsoleUsage(out io.Writer) {
	fmt.Fprintln(out, "Runtime Console Commands:")
	fmt.Fprintln(out, "  tables")
	fmt.Fprintln(out, "  bootstrap-filters --user <username_or_id> [--table id ...]")
	fmt.Fprintln(out, "  export --user <username_or_id> --table <table_id>")
	fmt.Fprintln(out, "  import --user <username_or_id> --key <storage_key>")
	fmt.Fprintln(out, "  report --user <username_or_id> --table <table_id> [--html]")
	fmt.Fprintln(out, "  group list|create|drop|rename|ungroup|remove --user <username_or_id> --table <table_id> ...")
	fmt.Fprintln(out, "  filter rename|delete --user <username_or_id> --table <table_id> --id <filter_id> ...")
	fmt.Fprintln(out, "  user create <username> <password> [display_name] [role]")
	fmt.Fprintln(out, "  token create|list|revoke ...")
	fmt.Fprintln(out, "  help")
	fmt.Fprintln(out, "  exit")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTTL(raw string) (time.Duration, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return 0, fmt.Errorf("empty ttl")
	}

	if d, err := time.ParseDuration(normalized); err == nil {
		return d, nil
	}

	for _, suffix := range []string{"days", "day", "d"} {
		if !strings.HasSuffix(normalized, suffix) {
			continue
		}
		dayPart := strings.TrimSpace(strings.TrimSuffix(normalized, suffix))
		if dayPart == "" {
			return 0, fmt.Errorf("invalid day ttl")
		}
		days, err := strconv.ParseFloat(dayPart, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid day ttl")
		}
		if days <= 0 {
			return 0, fmt.Errorf("day ttl must be greater than 0")
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}

	return 0, fmt.Errorf("unsupported ttl format")
}

func parseCommandLine(input string) ([]string, error) {
	var args []string
	var current strings.Builder
	var quote rune

	for _, r := range input {
		switch r {
		case '\'', '"':
			if quote == 0 {
				// Quotes open a token only at its start; ana's stays literal.
				if current.Len() == 0 {
					quote = r
					continue
				}
				current.WriteRune(r)
				continue
			}
			if quote == r {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case ' ', '\t':
			if quote != 0 {
				current.WriteRune(r)
				continue
			}
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args, nil
}
