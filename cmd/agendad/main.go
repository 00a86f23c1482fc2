package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agendad/internal/agenda"
	"agendad/internal/config"
	"agendad/internal/dateparse"
	"agendad/internal/feed"
	appLog "agendad/internal/log"
	"agendad/internal/poll"
	"agendad/internal/remind"
	"agendad/internal/snapshot"
	"agendad/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("agendad starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"poll_enabled", conf.Poll.Enabled,
		"poll_minutes", conf.Poll.Minutes,
		"feed_count", len(conf.Feeds),
		"snapshot_path", conf.SnapshotPath,
		"once", flags.once,
	)

	loc := dateparse.ResolveLocation(conf.Timezone)

	store := agenda.New(loc)
	for _, label := range conf.Categories {
		store.RegisterCategory(label)
	}

	discoverer := feed.New(feed.Options{
		Sources:     feedSources(conf),
		CacheDir:    conf.CacheDir,
		Location:    loc,
		HorizonDays: conf.HorizonDays,
	})

	if flags.once {
		runOnce(discoverer)
		return
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if conf.SnapshotPath != "" {
		if err := snapshot.LoadAndMerge(store, conf.SnapshotPath); err != nil {
			appLog.Error("failed to load snapshot", err, "path", conf.SnapshotPath)
		}
	}

	// Reminders go to the notification collaborator; here that is the log.
	reminders := remind.New(store, func(message string) {
		appLog.Info("NOTIFY", "message", message)
	})

	poller := poll.New(func() {
		tickCtx, tickCancel := context.WithTimeout(ctx, 2*time.Minute)
		defer tickCancel()
		discoverer.TryDiscover(tickCtx, "")
	})
	poller.Configure(conf.Poll.Enabled, conf.Poll.Minutes)

	srv := web.NewServer(conf, store, discoverer, poller)

	err = web.Run(ctx, conf, srv)

	// Teardown: no timer may fire past this point.
	poller.Close()
	reminders.Close()

	if conf.SnapshotPath != "" {
		if data, expErr := snapshot.Export(store); expErr == nil {
			if wErr := snapshot.WriteFile(conf.SnapshotPath, data); wErr != nil {
				appLog.Error("failed to write snapshot", wErr, "path", conf.SnapshotPath)
			}
		} else {
			appLog.Error("failed to export snapshot", expErr)
		}
	}

	if err != nil {
		appLog.Error("server exited", err)
		os.Exit(1)
	}
	appLog.Info("agendad exiting")
}

// runOnce performs a single discovery round and prints the candidates,
// for trying out feed configuration without starting the daemon.
func runOnce(d *feed.Discoverer) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, c := range d.Discover(ctx, "") {
		fmt.Printf("%s\t%s\t%s\t%s\n", c.DateText, c.Title, c.Location, c.Category)
	}
}

func feedSources(conf *config.Config) []feed.Source {
	sources := make([]feed.Source, 0, len(conf.Feeds))
	for _, fc := range conf.Feeds {
		if fc.URL == "" {
			continue
		}
		id := fc.ID
		if id == "" {
			id = fc.URL
		}
		sources = append(sources, feed.Source{ID: id, URL: fc.URL, Category: fc.Category})
	}
	return sources
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/agendad/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one discovery round, print candidates, and exit")

	flag.Parse()

	return cfg
}
