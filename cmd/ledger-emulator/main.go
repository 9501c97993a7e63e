// Command ledger-emulator serves a local ledger API backed by bbolt, for development and
// end-to-end tests of fintrack-sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"

	"fintrack/internal/categories/file"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/emulator"
	"fintrack/internal/log"
	"fintrack/internal/remote"
)

var defaultCategories = []core.Category{
	{ID: 1, Name: "Groceries", Emoji: "🛒"},
	{ID: 2, Name: "Rent", Emoji: "🏠"},
	{ID: 3, Name: "Transport", Emoji: "🚌"},
	{ID: 4, Name: "Eating out", Emoji: "🍝"},
	{ID: 5, Name: "Salary", Emoji: "💼", IsIncome: true},
	{ID: 6, Name: "Refunds", Emoji: "↩️", IsIncome: true},
}

func main() {
	cli.LoadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("EMULATOR")
	v.AutomaticEnv()
	v.SetDefault("port", "8090")
	v.SetDefault("db_path", "./data/ledger-emulator.db")
	v.SetDefault("token", "")
	v.SetDefault("categories_file", "")
	v.SetDefault("account_name", "Main")
	v.SetDefault("account_currency", "EUR")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	logger := log.New(log.Config{
		Level:     log.ParseLevel(v.GetString("log_level")),
		Component: log.ComponentEmulator,
		Format:    v.GetString("log_format"),
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	dbPath := v.GetString("db_path")
	st, err := emulator.NewStore(dbPath)
	if err != nil {
		logger.Error("Failed to initialize store", log.FieldError, err, "db_path", dbPath)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}()
	logger.Info("Database initialized", "db_path", dbPath)

	if err := seed(st, v, logger); err != nil {
		logger.Error("Failed to seed emulator", log.FieldError, err)
		os.Exit(1)
	}

	token := v.GetString("token")
	if token == "" {
		logger.Warn("EMULATOR_TOKEN not set, authentication disabled")
	}

	limiter := emulator.NewRateLimiter(v.GetInt("rate_limit"))
	handler := emulator.NewHandler(st, token, logger).WithRateLimit(limiter)

	addr := fmt.Sprintf(":%s", v.GetString("port"))
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(ctx context.Context) {
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	go sweep(ctx, limiter)

	logger.Info("Starting ledger emulator", "addr", addr, "rate_limit", v.GetInt("rate_limit"))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped", "throttled", limiter.Hits())
}

func sweep(ctx context.Context, rl *emulator.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// seed installs the category set on every start and creates the account on first start.
func seed(st *emulator.Store, v *viper.Viper, logger *log.Logger) error {
	cats := defaultCategories
	if path := v.GetString("categories_file"); path != "" {
		loaded, err := file.Source{Path: path}.Categories(context.Background())
		if err != nil {
			return err
		}
		cats = loaded
	}
	if err := st.SeedCategories(cats); err != nil {
		return err
	}

	accounts, err := st.ListAccounts()
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return nil
	}
	acct, err := st.CreateAccount(remote.AccountRequest{
		Name:     v.GetString("account_name"),
		Currency: v.GetString("account_currency"),
		Balance:  "0",
	})
	if err != nil {
		return err
	}
	logger.Info("Account created", log.FieldAccountID, acct.ID, "categories", len(cats))
	return nil
}
