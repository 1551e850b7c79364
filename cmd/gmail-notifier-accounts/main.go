package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/jashephe/gmail-notifier/internal/auth"
	"github.com/jashephe/gmail-notifier/internal/config"
	"github.com/jashephe/gmail-notifier/internal/rate"
	"github.com/jashephe/gmail-notifier/internal/registry"
	"github.com/jashephe/gmail-notifier/internal/runtime"
	"github.com/jashephe/gmail-notifier/internal/secret"
)

const usage = `usage: gmail-notifier-accounts [-config path] <command>

commands:
  list             print the persisted account index
  add              authorize a new account interactively
  remove <index>   remove the account at the given list position
  check <query>    test a filter query against the first account
`

func main() {
	cfgPath := flag.String("config", config.DefaultPath(), "configuration file path")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*cfgPath, flag.Args()); err != nil {
		runtime.DefaultLogger().Error("gmail-notifier-accounts failed", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	switch args[0] {
	case "list":
		return runList(cfg)
	case "add":
		return runAdd(ctx, cfgPath, cfg)
	case "remove":
		if len(args) < 2 {
			return fmt.Errorf("remove requires an account index")
		}
		index, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return fmt.Errorf("parse account index %q: %w", args[1], convErr)
		}
		return runRemove(ctx, cfgPath, cfg, index)
	case "check":
		if len(args) < 2 {
			return fmt.Errorf("check requires a filter query")
		}
		return runCheck(ctx, cfgPath, cfg, strings.Join(args[1:], " "))
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runList(cfg *config.Config) error {
	emails := cfg.AccountEmails()
	if len(emails) == 0 {
		fmt.Println("no accounts configured")
		return nil
	}
	for i, email := range emails {
		s := cfg.AccountSettingsFor(email)
		fmt.Printf("%d: %s (filter: %q, max: %d)\n", i, email, s.FilterQuery, s.MaxMessages)
	}
	return nil
}

func newRegistry(cfgPath string, cfg *config.Config) (*registry.Registry, error) {
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return nil, fmt.Errorf("config %s is missing oauth client credentials", cfgPath)
	}
	store, err := secret.OpenKeyring(filepath.Join(filepath.Dir(cfgPath), "credentials"))
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	return registry.New(registry.Options{
		Secrets:   store,
		Index:     cfg,
		ClientCfg: auth.ClientConfig{ClientID: cfg.OAuth.ClientID, ClientSecret: cfg.OAuth.ClientSecret},
		Limiter:   rate.None{},
		Logger:    runtime.DefaultLogger(),
	}), nil
}

func runAdd(ctx context.Context, cfgPath string, cfg *config.Config) error {
	reg, err := newRegistry(cfgPath, cfg)
	if err != nil {
		return err
	}

	clientCfg := auth.ClientConfig{ClientID: cfg.OAuth.ClientID, ClientSecret: cfg.OAuth.ClientSecret}
	fmt.Println("Visit this URL, authorize the application, and paste the code below:")
	fmt.Println()
	fmt.Println("  " + auth.ConsentURL(clientCfg))
	fmt.Println()
	fmt.Print("Authorization code: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("no authorization code entered")
	}

	acct, err := reg.AddAccount(ctx, code)
	if err != nil {
		return fmt.Errorf("add account: %w", err)
	}
	fmt.Printf("added %s (%s)\n", acct.Email(), acct.DisplayName())
	return nil
}

func runRemove(ctx context.Context, cfgPath string, cfg *config.Config, index int) error {
	reg, err := newRegistry(cfgPath, cfg)
	if err != nil {
		return err
	}
	for _, warn := range reg.RestoreAccounts(ctx) {
		runtime.DefaultLogger().Warn("account not restored", "error", warn)
	}
	accounts := reg.Accounts()
	if index < 0 || index >= len(accounts) {
		return fmt.Errorf("no account at position %d", index)
	}
	email := accounts[index].Email()
	if err := reg.RemoveAccount(ctx, index); err != nil {
		// The account is already removed locally; only revocation failed.
		runtime.DefaultLogger().Warn("token revocation failed", "account", email, "error", err)
	}
	fmt.Printf("removed %s\n", email)
	return nil
}

func runCheck(ctx context.Context, cfgPath string, cfg *config.Config, query string) error {
	reg, err := newRegistry(cfgPath, cfg)
	if err != nil {
		return err
	}
	for _, warn := range reg.RestoreAccounts(ctx) {
		runtime.DefaultLogger().Warn("account not restored", "error", warn)
	}
	accounts := reg.Accounts()
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts available to test the query against")
	}
	count, err := accounts[0].CheckQuery(ctx, query)
	if err != nil {
		return fmt.Errorf("check query: %w", err)
	}
	fmt.Printf("query %q matched %d message(s) for %s\n", query, count, accounts[0].Email())
	return nil
}
