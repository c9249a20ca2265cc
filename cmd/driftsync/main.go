package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/driftsync/driftsync/internal/api"
	"github.com/driftsync/driftsync/internal/app"
	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/database"
	"github.com/driftsync/driftsync/internal/ingest"
	"github.com/driftsync/driftsync/internal/logger"
	"github.com/driftsync/driftsync/internal/websocket"
)

const usage = `Usage: driftsync [-config path] <command> [args]

Commands:
  serve                         run the HTTP API server
  server add|list|remove|default|test
  library discover|list|enable|disable
  mapping add|list|remove
  sync                          run a content sync pass
`

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "driftsync: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("cannot run migrations")
	}

	a, err := app.New(db.Conn(), cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot initialize application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &cli{app: a, cfg: cfg}

	var runErr error
	switch args[0] {
	case "serve":
		runErr = cli.serve(ctx)
	case "server":
		runErr = cli.server(ctx, args[1:])
	case "library":
		runErr = cli.library(ctx, args[1:])
	case "mapping":
		runErr = cli.mapping(ctx, args[1:])
	case "sync":
		runErr = cli.sync(ctx, args[1:])
	default:
		flag.Usage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "driftsync: %v\n", runErr)
		os.Exit(1)
	}
}

type cli struct {
	app *app.App
	cfg *config.Config
}

func (c *cli) serve(ctx context.Context) error {
	hub := websocket.NewHub()
	go hub.Run()

	srv := api.NewServer(c.app, hub, c.cfg, c.app.Logger())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(c.cfg.Server.Address()) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}

func (c *cli) server(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: driftsync server add|list|remove|default|test")
	}

	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("server add", flag.ExitOnError)
		name := fs.String("name", "", "server name")
		url := fs.String("url", "", "server base URL")
		token := fs.String("token", "", "server token")
		makeDefault := fs.Bool("default", false, "mark as default server")
		fs.Parse(args[1:])

		srv, err := c.app.AddServer(ctx, *name, *url, *token, *makeDefault)
		if err != nil {
			return err
		}
		fmt.Printf("server %d (%s) registered\n", srv.ID, srv.Name)
		return nil

	case "list":
		servers, err := c.app.ListServers(ctx)
		if err != nil {
			return err
		}
		for _, s := range servers {
			marker := " "
			if s.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %d\t%s\t%s\n", marker, s.ID, s.Name, s.BaseURL)
		}
		return nil

	case "remove":
		fs := flag.NewFlagSet("server remove", flag.ExitOnError)
		id := fs.Int64("id", 0, "server id")
		fs.Parse(args[1:])
		return c.app.DeleteServer(ctx, *id)

	case "default":
		fs := flag.NewFlagSet("server default", flag.ExitOnError)
		id := fs.Int64("id", 0, "server id")
		fs.Parse(args[1:])
		return c.app.SetDefaultServer(ctx, *id)

	case "test":
		fs := flag.NewFlagSet("server test", flag.ExitOnError)
		id := fs.Int64("id", 0, "server id")
		fs.Parse(args[1:])
		if err := c.app.TestServer(ctx, *id); err != nil {
			return err
		}
		fmt.Println("connection ok")
		return nil
	}
	return fmt.Errorf("unknown server command %q", args[0])
}

func (c *cli) library(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: driftsync library discover|list|enable|disable")
	}

	switch args[0] {
	case "discover":
		fs := flag.NewFlagSet("library discover", flag.ExitOnError)
		serverID := fs.Int64("server-id", 0, "server id")
		fs.Parse(args[1:])

		libs, err := c.app.DiscoverLibraries(ctx, *serverID)
		if err != nil {
			return err
		}
		printLibraries(libs)
		return nil

	case "list":
		fs := flag.NewFlagSet("library list", flag.ExitOnError)
		serverID := fs.Int64("server-id", 0, "server id (0 = all)")
		fs.Parse(args[1:])

		var scope *int64
		if *serverID != 0 {
			scope = serverID
		}
		libs, err := c.app.ListLibraries(ctx, scope)
		if err != nil {
			return err
		}
		printLibraries(libs)
		return nil

	case "enable", "disable":
		fs := flag.NewFlagSet("library "+args[0], flag.ExitOnError)
		id := fs.Int64("id", 0, "library id")
		fs.Parse(args[1:])
		return c.app.SetLibrarySyncEnabled(ctx, *id, args[0] == "enable")
	}
	return fmt.Errorf("unknown library command %q", args[0])
}

func (c *cli) mapping(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: driftsync mapping add|list|remove")
	}

	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("mapping add", flag.ExitOnError)
		serverID := fs.Int64("server-id", 0, "server id")
		libraryID := fs.Int64("library-id", 0, "library id")
		plexPath := fs.String("plex-path", "", "remote path prefix")
		localPath := fs.String("local-path", "", "local path prefix")
		fs.Parse(args[1:])

		id, err := c.app.AddPathMapping(ctx, *serverID, *libraryID, *plexPath, *localPath)
		if err != nil {
			return err
		}
		fmt.Printf("mapping %d added\n", id)
		return nil

	case "list":
		fs := flag.NewFlagSet("mapping list", flag.ExitOnError)
		serverID := fs.Int64("server-id", 0, "server id")
		libraryID := fs.Int64("library-id", 0, "library id")
		fs.Parse(args[1:])

		mappings, err := c.app.ListPathMappings(ctx, *serverID, *libraryID)
		if err != nil {
			return err
		}
		for _, m := range mappings {
			fmt.Printf("%d\t%s -> %s\n", m.ID, m.PlexPath, m.LocalPath)
		}
		return nil

	case "remove":
		fs := flag.NewFlagSet("mapping remove", flag.ExitOnError)
		id := fs.Int64("id", 0, "mapping id")
		fs.Parse(args[1:])
		return c.app.DeletePathMapping(ctx, *id)
	}
	return fmt.Errorf("unknown mapping command %q", args[0])
}

func (c *cli) sync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	serverID := fs.Int64("server-id", 0, "server id")
	libraries := fs.String("libraries", "", "comma-separated library keys (default: all sync-enabled)")
	kinds := fs.String("kinds", "", "comma-separated item kinds (movie,episode)")
	mode := fs.String("mode", "incremental", "sync mode: full or incremental")
	limit := fs.Int("limit", 0, "max items per library (0 = no limit)")
	dryRun := fs.Bool("dry-run", false, "log intended actions without writing")
	fs.Parse(args)

	req := app.SyncRequest{
		ServerID: *serverID,
		Mode:     ingest.Mode(*mode),
		Limit:    *limit,
		DryRun:   *dryRun,
	}
	if *libraries != "" {
		req.LibraryKeys = strings.Split(*libraries, ",")
	}
	if *kinds != "" {
		for _, k := range strings.Split(*kinds, ",") {
			req.Kinds = append(req.Kinds, catalog.ItemKind(strings.TrimSpace(k)))
		}
	}

	events, err := c.app.SyncContent(ctx, req)
	if err != nil {
		return err
	}

	var fatal error
	for e := range events {
		switch e.Stage {
		case ingest.StageFatalError:
			fatal = fmt.Errorf("%s", e.Error)
			fmt.Printf("[%s] %s: %s\n", e.Stage, e.Msg, e.Error)
		case ingest.StageComplete:
			fmt.Printf("[%s] %s\n", e.Stage, e.Msg)
			if e.Stats != nil {
				fmt.Printf("  items: %d inserted, %d updated; files: %d inserted, %d updated, %d linked; %d errors\n",
					e.Stats.InsertedItems, e.Stats.UpdatedItems,
					e.Stats.InsertedFiles, e.Stats.UpdatedFiles, e.Stats.Linked, e.Stats.Errors)
			}
		default:
			fmt.Printf("[%s] %s\n", e.Stage, e.Msg)
		}
	}
	return fatal
}

func printLibraries(libs []catalog.Library) {
	for _, l := range libs {
		state := "disabled"
		if l.SyncEnabled {
			state = "enabled"
		}
		fmt.Printf("%d\tkey=%s\t%s\t%s\t%s\n", l.ID, l.ExternalKey, l.Kind, state, l.Title)
	}
}
