package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/shinyes/filterdeck/internal/app"
	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/filtercache"
	"github.com/shinyes/filterdeck/internal/filterclient"
	"github.com/shinyes/filterdeck/internal/grouping"
	"github.com/shinyes/filterdeck/internal/logging"
	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/report"
	"github.com/shinyes/filterdeck/internal/selection"
)

// tableSession is one user's table as a view sees it: a loaded cache, the
// default view registered for cascades, and the mutation service.
type tableSession struct {
	tableID string
	cache   *filtercache.Cache
	view    *selection.Controller
	groups  *grouping.Service
}

func openTableSession(ctx context.Context, c *app.Container, userRaw, tableRaw, viewName string) (*tableSession, error) {
	user, err := lookupUser(ctx, c.UserService, userRaw)
	if err != nil {
		return nil, err
	}
	tableID := strings.TrimSpace(tableRaw)
	if tableID == "" {
		return nil, fmt.Errorf("--table is required")
	}

	logger := logging.Std(log.Default())
	remote := filterclient.NewLocal(c.FilterService, c.GroupService, user.ID)
	opts := filtercache.DefaultOptions()
	opts.Logger = logger
	cache := filtercache.New(remote, opts)
	if err := cache.Refresh(ctx, tableID); err != nil {
		return nil, fmt.Errorf("load filters: %w", err)
	}

	registry := selection.NewRegistry()
	view := selection.NewController(selection.Config{
		TableID:   tableID,
		Source:    cache,
		Evaluator: condition.NewEvaluator(condition.WithSchema(c.Catalog.Schema(tableID))),
		Defaults:  selection.Names(strings.TrimSpace(viewName), c.Config.StandardFilterName),
		Registry:  registry,
	})
	view.Init(ctx)

	return &tableSession{
		tableID: tableID,
		cache:   cache,
		view:    view,
		groups:  grouping.New(remote, cache, grouping.WithRegistry(registry), grouping.WithLogger(logger)),
	}, nil
}

func (s *tableSession) Close() {
	s.view.Close()
}

func (s *tableSession) printView(out io.Writer) {
	st := s.view.State()
	fmt.Fprintf(out, "view: filter=%q conditions=%s\n", st.ActiveFilterName, report.DescribeConditions(st.Conditions, st.Operators))
}

func (s *tableSession) printGroups(out io.Writer) {
	for _, g := range s.cache.Groups(s.tableID) {
		ids := make([]string, 0, len(g.Filters))
		for _, f := range g.Filters {
			ids = append(ids, models.Int64ToString(f.ID))
		}
		fmt.Fprintf(out, "group: id=%d name=%q filters=[%s]\n", g.ID, g.Name, strings.Join(ids, ","))
	}
	for _, f := range s.cache.Filters(s.tableID) {
		if !f.Grouped() {
			fmt.Fprintf(out, "ungrouped: id=%d name=%q\n", f.ID, f.Name)
		}
	}
}

func parseIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id: %s", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runAdminGroup(ctx context.Context, c *app.Container, out io.Writer, args []string) error {
	if len(args) == 0 {
		printUsage(out)
		return fmt.Errorf("usage: admin group <list|create|drop|rename|ungroup|remove> --user <username_or_id> --table <table_id> ...")
	}
	sub := args[0]
	flagSet := flag.NewFlagSet("admin group "+sub, flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	userFlag := flagSet.String("user", "", "username or id")
	tableFlag := flagSet.String("table", "", "table id")
	nameFlag := flagSet.String("name", "", "group name")
	groupFlag := flagSet.Int64("group", 0, "group id")
	draggedFlag := flagSet.Int64("dragged", 0, "id of the dragged filter")
	targetFlag := flagSet.Int64("target", 0, "id of the filter it was dropped on")
	var filterFlag stringList
	flagSet.Var(&filterFlag, "filter", "filter id, repeatable")
	if err := flagSet.Parse(args[1:]); err != nil {
		return fmt.Errorf("parse group args failed: %w", err)
	}
	filterIDs, err := parseIDs(filterFlag)
	if err != nil {
		return err
	}

	session, err := openTableSession(ctx, c, *userFlag, *tableFlag, "")
	if err != nil {
		return err
	}
	defer session.Close()

	switch sub {
	case "list":
	case "create":
		group, err := session.groups.CreateGroupWithFilters(ctx, session.tableID, *nameFlag, filterIDs...)
		if err != nil {
			return fmt.Errorf("create group failed: %w", err)
		}
		fmt.Fprintf(out, "group created: id=%d name=%q\n", group.ID, group.Name)
	case "drop":
		res, err := session.groups.Drop(ctx, session.tableID, *draggedFlag, *targetFlag)
		if err != nil {
			return fmt.Errorf("drop failed: %w", err)
		}
		switch res.Action {
		case grouping.DropCreatedGroup:
			fmt.Fprintf(out, "drop: created group id=%d\n", res.GroupID)
		case grouping.DropAddedToGroup:
			fmt.Fprintf(out, "drop: joined group id=%d\n", res.GroupID)
		default:
			fmt.Fprintln(out, "drop: nothing to do")
		}
	case "rename":
		group, err := session.groups.RenameGroup(ctx, session.tableID, *groupFlag, *nameFlag)
		if err != nil {
			return fmt.Errorf("rename group failed: %w", err)
		}
		fmt.Fprintf(out, "group renamed: id=%d name=%q\n", group.ID, group.Name)
	case "ungroup":
		if err := session.groups.Ungroup(ctx, session.tableID, *groupFlag); err != nil {
			return fmt.Errorf("ungroup failed: %w", err)
		}
		fmt.Fprintf(out, "group deleted: id=%d\n", *groupFlag)
	case "remove":
		for _, id := range filterIDs {
			if err := session.groups.RemoveFromGroup(ctx, session.tableID, id); err != nil {
				return fmt.Errorf("remove from group failed: %w", err)
			}
		}
	default:
		printUsage(out)
		return fmt.Errorf("unknown group subcommand: %s", sub)
	}
	session.printGroups(out)
	return nil
}

// runAdminFilter renames or deletes a saved filter through the same path a
// table view uses, so the view selected with --view follows the change.
func runAdminFilter(ctx context.Context, c *app.Container, out io.Writer, args []string) error {
	if len(args) == 0 {
		printUsage(out)
		return fmt.Errorf("usage: admin filter <rename|delete> --user <username_or_id> --table <table_id> --id <filter_id> ...")
	}
	sub := args[0]
	flagSet := flag.NewFlagSet("admin filter "+sub, flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	userFlag := flagSet.String("user", "", "username or id")
	tableFlag := flagSet.String("table", "", "table id")
	idFlag := flagSet.Int64("id", 0, "filter id")
	nameFlag := flagSet.String("name", "", "new filter name")
	viewFlag := flagSet.String("view", "", "saved filter the view shows before the change")
	if err := flagSet.Parse(args[1:]); err != nil {
		return fmt.Errorf("parse filter args failed: %w", err)
	}

	session, err := openTableSession(ctx, c, *userFlag, *tableFlag, *viewFlag)
	if err != nil {
		return err
	}
	defer session.Close()

	switch sub {
	case "rename":
		f, err := session.groups.RenameFilter(ctx, session.tableID, *idFlag, *nameFlag)
		if err != nil {
			return adminFilterError("rename", err)
		}
		fmt.Fprintf(out, "filter renamed: id=%d name=%q\n", f.ID, f.Name)
	case "delete":
		if err := session.groups.DeleteFilter(ctx, session.tableID, *idFlag); err != nil {
			return adminFilterError("delete", err)
		}
		fmt.Fprintf(out, "filter deleted: id=%d\n", *idFlag)
	default:
		printUsage(out)
		return fmt.Errorf("unknown filter subcommand: %s", sub)
	}
	session.printView(out)
	return nil
}

func adminFilterError(action string, err error) error {
	if errors.Is(err, grouping.ErrStandardFilter) || errors.Is(err, filterclient.ErrRejected) {
		return fmt.Errorf("%s filter refused: %w", action, err)
	}
	return fmt.Errorf("%s filter failed: %w", action, err)
}
