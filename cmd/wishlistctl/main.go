// wishlistctl drives the client-side sync engine from a terminal. A guest
// wishlist lives in a local JSON file; with an access token every command
// goes to the wishlist API instead.
//
// Commands:
//
//	wishlistctl list
//	wishlistctl add -product ID -price P [-name N] [-priority HIGH] [-collection C]
//	wishlistctl update -product ID [-priority P] [-notes N] [-qty N] [-target P]
//	wishlistctl remove -product ID
//	wishlistctl login -user ID -token JWT
//	wishlistctl logout
//	wishlistctl refresh
//	wishlistctl collections [-move IDS -to NAME] [-delete NAME]
//	wishlistctl optimize -strategy PRICE|PRIORITY|BUDGET [-budget B] [-in-stock] [-limit N] [-trim]
//	wishlistctl export -format csv|json [-out FILE]
//	wishlistctl import -format csv|json -in FILE
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/nlenjibi/storefront-wishlist/internal/collections"
	"github.com/nlenjibi/storefront-wishlist/internal/engine"
	"github.com/nlenjibi/storefront-wishlist/internal/guest"
	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/remote"
	"github.com/nlenjibi/storefront-wishlist/pkg/auth"
	"github.com/nlenjibi/storefront-wishlist/pkg/config"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
)

type app struct {
	cfg         *config.ClientConfig
	logg        *logger.Logger
	engine      *engine.Engine
	collections *collections.Manager
	out         io.Writer
}

type runner func(ctx context.Context, a *app, args []string) error

var commands = map[string]runner{
	"list":        runList,
	"add":         runAdd,
	"update":      runUpdate,
	"remove":      runRemove,
	"login":       runLogin,
	"logout":      runLogout,
	"refresh":     runRefresh,
	"collections": runCollections,
	"optimize":    runOptimize,
	"export":      runExport,
	"import":      runImport,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		printUsage()
		return
	}
	run, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logOpts := logger.Options{
		ServiceName: "wishlistctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		FilePath:    cfg.App.LogFile,
	}
	if cfg.App.LogFile == "" {
		logOpts.Output = os.Stderr
	}
	logg := logger.New(logOpts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, logg, name != "login")
	if err != nil {
		logg.Error(ctx, "failed to start sync engine", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, a, os.Args[2:]); err != nil {
		logg.Error(logg.WithField(ctx, "command", name), "command failed", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newApp wires the engine. withToken starts an authenticated session when an
// access token is configured; login starts as guest so the merge can run.
func newApp(ctx context.Context, cfg *config.ClientConfig, logg *logger.Logger, withToken bool) (*app, error) {
	store, err := guest.NewFileStore(guest.Options{
		Fs:   afero.NewOsFs(),
		Path: cfg.Sync.GuestStorePath,
		TTL:  cfg.Sync.GuestSessionTTL,
	})
	if err != nil {
		return nil, err
	}
	client, err := remote.NewFromConfig(cfg.Sync, logg)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.Params{
		Guest:       store,
		Remote:      client,
		Dispatcher:  notify.NewLogDispatcher(logg),
		Logger:      logg,
		CallTimeout: cfg.Sync.CallTimeout,
	})
	if err != nil {
		return nil, err
	}

	var session *auth.Session
	if withToken && cfg.Sync.AccessToken != "" {
		session = &auth.Session{
			UserID:      userFromEnv(),
			AccessToken: cfg.Sync.AccessToken,
		}
	}
	if err := eng.Start(ctx, session); err != nil {
		return nil, err
	}

	return &app{
		cfg:         cfg,
		logg:        logg,
		engine:      eng,
		collections: collections.NewManager(eng, logg),
		out:         os.Stdout,
	}, nil
}

func userFromEnv() string {
	if user := os.Getenv("WISHLIST_SYNC_USER_ID"); user != "" {
		return user
	}
	return "cli"
}

func printUsage() {
	fmt.Fprint(os.Stderr, `wishlistctl - wishlist sync client

Usage:
  wishlistctl <command> [options]

Commands:
  list         Print the current wishlist
  add          Add a product or update its entry
  update       Edit user fields of an item
  remove       Remove a product
  login        Sign in and merge the guest wishlist into the account
  logout       Sign out and start a fresh guest session
  refresh      Refresh prices and stock, printing triggered alerts
  collections  Manage collections
  optimize     Rank items with an optimize strategy
  export       Write the wishlist as CSV or JSON
  import       Add items from a CSV or JSON file

Environment:
  WISHLIST_SYNC_ACCESS_TOKEN  bearer token; unset means guest mode
  WISHLIST_SYNC_USER_ID       user id paired with the access token
`)
}
