package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/nlenjibi/storefront-wishlist/internal/collections"
	"github.com/nlenjibi/storefront-wishlist/internal/transfer"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/auth"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
)

func runList(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	items := a.engine.Items()
	if *asJSON {
		return a.printJSON(items)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "PRODUCT\tNAME\tPRICE\tADDED PRICE\tPRIORITY\tCOLLECTION\tSTOCK\n")
	for _, item := range items {
		stock := "in"
		if !item.InStock {
			stock = "out"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ProductID, item.Name, item.CurrentPrice.StringFixed(2), item.PriceWhenAdded.StringFixed(2),
			item.Priority, item.Collection(), stock)
	}
	fmt.Fprintf(tw, "\nstate: %s  owner: %s  pending: %d\n", a.engine.State(), a.engine.OwnerKey(), len(a.engine.Pending()))
	return tw.Flush()
}

func runAdd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	productID := fs.Int64("product", 0, "product id")
	price := fs.String("price", "0", "current price")
	name := fs.String("name", "", "product name")
	category := fs.String("category", "", "product category")
	inStock := fs.Bool("in-stock", true, "product is in stock")
	priority := fs.String("priority", "", "LOW|MEDIUM|HIGH|URGENT")
	collection := fs.String("collection", "", "collection name")
	target := fs.String("target", "", "target price")
	notes := fs.String("notes", "", "notes")
	tags := fs.String("tags", "", "comma separated tags")
	if err := fs.Parse(args); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(*price)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", *price, err)
	}
	req := wishlist.AddRequest{
		ProductID: *productID,
		Name:      *name,
		Category:  *category,
		Price:     amount,
		InStock:   *inStock,
		Notes:     *notes,
		Tags:      splitList(*tags),
	}
	if *priority != "" {
		p, err := enums.ParsePriority(*priority)
		if err != nil {
			return err
		}
		req.Priority = p
	}
	if *collection != "" {
		req.CollectionName = collection
	}
	if *target != "" {
		t, err := decimal.NewFromString(*target)
		if err != nil {
			return fmt.Errorf("invalid target price %q: %w", *target, err)
		}
		req.TargetPrice = &t
	}

	item, err := a.engine.Add(ctx, req)
	if err != nil {
		return err
	}
	return a.printJSON(item)
}

func runUpdate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	productID := fs.Int64("product", 0, "product id")
	priority := fs.String("priority", "", "LOW|MEDIUM|HIGH|URGENT")
	notes := fs.String("notes", "", "notes")
	qty := fs.Int("qty", 0, "desired quantity")
	target := fs.String("target", "", "target price")
	clearTarget := fs.Bool("clear-target", false, "remove the target price")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var patch wishlist.Patch
	if *priority != "" {
		p, err := enums.ParsePriority(*priority)
		if err != nil {
			return err
		}
		patch.Priority = &p
	}
	if *notes != "" {
		patch.Notes = notes
	}
	if *qty != 0 {
		patch.DesiredQuantity = qty
	}
	if *target != "" {
		t, err := decimal.NewFromString(*target)
		if err != nil {
			return fmt.Errorf("invalid target price %q: %w", *target, err)
		}
		patch.TargetPrice = &t
	}
	patch.ClearTargetPrice = *clearTarget
	if patch.IsEmpty() {
		return errors.New("nothing to update")
	}

	item, err := a.engine.Update(ctx, *productID, patch)
	if err != nil {
		return err
	}
	return a.printJSON(item)
}

func runRemove(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	productID := fs.Int64("product", 0, "product id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.engine.Remove(ctx, *productID)
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	user := fs.String("user", userFromEnv(), "user id")
	token := fs.String("token", a.cfg.Sync.AccessToken, "access token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("an access token is required to log in")
	}
	report, err := a.engine.HandleLogin(ctx, auth.Session{UserID: *user, AccessToken: *token})
	if err != nil {
		return err
	}
	return a.printJSON(report)
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.engine.HandleLogout(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "guest session %s\n", a.engine.GuestSessionID())
	return nil
}

func runRefresh(ctx context.Context, a *app, _ []string) error {
	transitions, err := a.engine.RefreshCatalog(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(transitions)
}

func runCollections(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("collections", flag.ContinueOnError)
	move := fs.String("move", "", "comma separated product ids to move")
	to := fs.String("to", "", "target collection; empty means uncategorised")
	remove := fs.String("delete", "", "collection to delete; its items become uncategorised")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *move != "":
		ids, err := parseIDs(*move)
		if err != nil {
			return err
		}
		var target *string
		if *to != "" {
			target = to
		}
		res, err := a.collections.Move(ctx, ids, target)
		if err != nil {
			return err
		}
		return a.printJSON(res)
	case *remove != "":
		res, err := a.collections.DeleteCollection(ctx, *remove)
		if err != nil {
			return err
		}
		return a.printJSON(res)
	default:
		return a.printJSON(a.collections.List())
	}
}

func runOptimize(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	strategy := fs.String("strategy", string(enums.OptimizeStrategyPriority), "PRICE|PRIORITY|BUDGET")
	budget := fs.String("budget", "", "maximum total spend")
	inStock := fs.Bool("in-stock", false, "only consider in-stock items")
	collection := fs.String("collection", "", "restrict to one collection")
	limit := fs.Int("limit", 0, "keep at most this many items")
	trim := fs.Bool("trim", false, "remove every item not selected")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := enums.ParseOptimizeStrategy(*strategy)
	if err != nil {
		return err
	}
	c := collections.Constraints{IncludeOnlyInStock: *inStock, Limit: *limit}
	if *budget != "" {
		b, err := decimal.NewFromString(*budget)
		if err != nil {
			return fmt.Errorf("invalid budget %q: %w", *budget, err)
		}
		c.MaxBudget = &b
	}
	if *collection != "" {
		c.Collection = collection
	}

	if *trim {
		res, err := a.collections.Trim(ctx, s, c)
		if err != nil {
			return err
		}
		return a.printJSON(res)
	}
	selected, err := a.collections.Optimize(s, c)
	if err != nil {
		return err
	}
	return a.printJSON(map[string]any{
		"items":     selected,
		"totalCost": collections.TotalCost(selected),
	})
}

func runExport(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", "csv", "csv|json")
	path := fs.String("out", "", "output file; stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := a.out
	if *path != "" {
		f, err := os.Create(*path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	switch strings.ToLower(*format) {
	case "csv":
		return transfer.ExportCSV(w, a.engine.Items())
	case "json":
		return transfer.ExportJSON(w, a.engine.Items())
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func runImport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	format := fs.String("format", "csv", "csv|json")
	path := fs.String("in", "", "input file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("-in is required")
	}
	f, err := os.Open(*path)
	if err != nil {
		return err
	}
	defer f.Close()

	var rows []transfer.Row
	switch strings.ToLower(*format) {
	case "csv":
		rows, err = transfer.ParseCSV(f)
	case "json":
		rows, err = transfer.ParseJSON(f)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		return err
	}
	result, err := transfer.Import(ctx, a.engine, rows)
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseIDs(raw string) ([]int64, error) {
	parts := splitList(raw)
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid product id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("no product ids given")
	}
	return ids, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
