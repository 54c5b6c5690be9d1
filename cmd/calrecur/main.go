package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"calrecur/internal/calendar"
	"calrecur/internal/config"
	"calrecur/internal/ics"
	appLog "calrecur/internal/log"
	"calrecur/internal/model"
	"calrecur/internal/scheduler"
	"calrecur/internal/store"
	"calrecur/internal/store/memory"
	"calrecur/internal/store/postgres"
	"calrecur/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	date       string
	memory     bool
	importICS  bool
}

func main() {
	if err := run(); err != nil {
		appLog.Error("calrecur failed", err)
		os.Exit(1)
	}
}

func run() error {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	conf.ApplyEnv()
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	loc, err := conf.Location()
	if err != nil {
		return err
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"generate_cron", conf.GenerateCron,
		"lookahead_days", conf.LookaheadDays,
		"imports", len(conf.Imports),
		"memory", flags.memory,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, conf, flags.memory)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := calendar.NewService(st, calendar.Options{
		Location:      loc,
		LookaheadDays: conf.LookaheadDays,
	})

	if flags.importICS {
		if err := importFeeds(ctx, svc, conf.Imports); err != nil {
			return err
		}
	}

	if flags.once {
		ref := time.Now().In(loc)
		if flags.date != "" {
			if ref, err = parseDate(flags.date, loc); err != nil {
				return err
			}
		}
		res, err := svc.Generate(ctx, ref)
		fmt.Printf("materialized %d event(s) for %s (skipped %d, failed %d)\n",
			res.Materialized, ref.Format(time.RFC3339), res.Skipped, res.Failed)
		return err
	}

	sched := scheduler.New(svc, conf.GenerateCron, loc)
	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Start(ctx) }()

	if err := web.NewServer(conf, svc).Run(ctx); err != nil {
		stop()
		return err
	}
	if err := <-schedErr; err != nil {
		return err
	}

	appLog.Info("calrecur exiting")
	return nil
}

func openStore(ctx context.Context, conf *config.Config, inMemory bool) (store.Store, func(), error) {
	if inMemory {
		appLog.Warn("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}
	if conf.DatabaseURL == "" {
		return nil, nil, errors.New("database_url is not set (use DATABASE_URL or -memory)")
	}

	pool, err := postgres.CreateConnectionPool(ctx, conf.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.NewStore(pool), pool.Close, nil
}

func importFeeds(ctx context.Context, svc *calendar.Service, imports []config.ImportConfig) error {
	if len(imports) == 0 {
		appLog.Warn("-import given but no imports configured")
		return nil
	}

	cacheDir := ""
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "calrecur", "ics")
	}
	im := ics.NewImporter(svc, ics.NewFetcher(cacheDir))

	results, err := im.ImportAll(ctx, importSources(imports))
	for _, res := range results {
		fmt.Printf("imported %d event(s) from %s (skipped %d)\n", res.Created, res.Source.ID, res.Skipped)
	}
	return err
}

func importSources(imports []config.ImportConfig) []ics.Source {
	sources := make([]ics.Source, 0, len(imports))
	for _, imp := range imports {
		src := ics.Source{ID: imp.ID, URL: imp.URL}
		if src.ID == "" {
			src.ID = imp.URL
		}
		if imp.Owner != nil {
			owner := model.OwnerID(*imp.Owner)
			src.Owner = &owner
		}
		sources = append(sources, src)
	}
	return sources
}

// parseDate accepts RFC3339 or a plain YYYY-MM-DD, which means midnight in loc.
func parseDate(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("-date %q: want RFC3339 or YYYY-MM-DD", v)
	}
	return t, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "calrecur.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one generation pass and exit")
	flag.StringVar(&cfg.date, "date", "", "Reference date of -once (RFC3339 or YYYY-MM-DD, default now)")
	flag.BoolVar(&cfg.memory, "memory", false, "Use the in-memory store instead of Postgres")
	flag.BoolVar(&cfg.importICS, "import", false, "Import the ICS feeds listed in the config before running")

	flag.Parse()

	return cfg
}
