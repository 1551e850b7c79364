package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jashephe/gmail-notifier/internal/auth"
	"github.com/jashephe/gmail-notifier/internal/config"
	"github.com/jashephe/gmail-notifier/internal/notify"
	"github.com/jashephe/gmail-notifier/internal/rate"
	"github.com/jashephe/gmail-notifier/internal/reach"
	"github.com/jashephe/gmail-notifier/internal/registry"
	"github.com/jashephe/gmail-notifier/internal/runtime"
	"github.com/jashephe/gmail-notifier/internal/secret"
)

const probeAddr = "www.googleapis.com:443"

type daemonConfig struct {
	cfgPath  string
	interval time.Duration
	rps      int
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("gmail-notifier failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() daemonConfig {
	cfgPath := flag.String("config", config.DefaultPath(), "configuration file path")
	interval := flag.Duration("interval", 0, "poll interval override (0 = from config)")
	rps := flag.Int("rps", 0, "max API requests per second override (0 = from config)")
	flag.Parse()

	return daemonConfig{
		cfgPath:  *cfgPath,
		interval: *interval,
		rps:      *rps,
	}
}

func run(dc daemonConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := runtime.DefaultLogger()

	cfg, err := config.Load(dc.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return fmt.Errorf("config %s is missing oauth client credentials", dc.cfgPath)
	}

	store, err := secret.OpenKeyring(filepath.Join(filepath.Dir(dc.cfgPath), "credentials"))
	if err != nil {
		return fmt.Errorf("open secret store: %w", err)
	}

	rps := dc.rps
	if rps <= 0 {
		rps = cfg.RequestsPerSec
	}
	bucket := rate.NewTokenBucket(rps)
	defer bucket.Stop()

	interval := dc.interval
	if interval <= 0 {
		interval = cfg.PollInterval()
	}

	prober := reach.NewProber(probeAddr, 30*time.Second, log)
	prober.Start()
	defer prober.Stop()

	reg := registry.New(registry.Options{
		Secrets:   store,
		Index:     cfg,
		ClientCfg: auth.ClientConfig{ClientID: cfg.OAuth.ClientID, ClientSecret: cfg.OAuth.ClientSecret},
		Limiter:   bucket,
		Reach:     prober,
		Interval:  interval,
		Leeway:    cfg.PollLeeway(),
		Logger:    log,
	})

	var sink notify.Sink = notify.NewDesktop(log)
	if act, ok := sink.(notify.Activatable); ok {
		act.OnActivation(openBrowser)
	}
	bridge := notify.NewBridge(sink, log)
	// Attach before restoring so restored accounts are followed from their
	// first delta.
	bridge.AttachRegistry(reg)

	for _, warn := range reg.RestoreAccounts(ctx) {
		log.Warn("account not restored", "error", warn)
	}

	reg.Start(ctx)
	defer reg.Stop()

	log.Info("gmail-notifier running",
		"accounts", len(reg.Accounts()), "interval", interval)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// openBrowser hands a deep link to the desktop's URL handler.
func openBrowser(url string) {
	_ = exec.Command("xdg-open", url).Start()
}
