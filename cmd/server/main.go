package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roadlog/fleet-auth/auth"
	"github.com/roadlog/fleet-auth/internal/config"
	"github.com/roadlog/fleet-auth/server"
	"github.com/roadlog/fleet-auth/token"
	"github.com/roadlog/fleet-auth/users"
	fakeuserrepo "github.com/roadlog/fleet-auth/users/repofake"
	pguserrepo "github.com/roadlog/fleet-auth/users/repopg"
)

func main() {
	_ = godotenv.Load()

	c := config.New()
	configureLogging(c)

	for {
		if err := run(c); err != nil {
			log.Error().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	userRepo, err := buildUserRepo(c)
	if err != nil {
		return errors.Wrap(err, "buildUserRepo")
	}

	tokenCfg := token.Config{
		AccessSecret:  c.GetAccessTokenSecret(),
		RefreshSecret: c.GetRefreshTokenSecret(),
		AccessExpiry:  c.GetAccessTokenExpiry(),
		RefreshExpiry: c.GetRefreshTokenExpiry(),
	}
	issuer, err := token.NewIssuer(tokenCfg)
	if err != nil {
		return errors.Wrap(err, "token.NewIssuer")
	}
	verifier, err := token.NewVerifier(tokenCfg)
	if err != nil {
		return errors.Wrap(err, "token.NewVerifier")
	}

	authService, err := auth.NewService(userRepo, issuer, verifier, auth.WithLogger(log.Logger))
	if err != nil {
		return errors.Wrap(err, "auth.NewService")
	}

	srv, err := server.New(c, userRepo, authService, log.Logger)
	if err != nil {
		return errors.Wrap(err, "server.New")
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func configureLogging(c config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func buildUserRepo(c config.Config) (users.Repo, error) {
	if databaseURL := c.GetDatabaseURL(); databaseURL != "" {
		db, err := pguserrepo.Open(databaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "pguserrepo.Open")
		}
		repo := pguserrepo.NewUserRepo(db)
		if err := repo.EnsureTable(context.Background()); err != nil {
			return nil, errors.Wrap(err, "EnsureTable")
		}
		return repo, nil
	}

	// No database configured: in-memory store with seeded dev accounts.
	repo := fakeuserrepo.NewFakeUserRepo()
	if err := seedDevUsers(repo); err != nil {
		return nil, errors.Wrap(err, "seedDevUsers")
	}
	log.Warn().Msg("DATABASE_URL not set, using in-memory user store")
	return repo, nil
}

func seedDevUsers(repo users.Repo) error {
	seeds := []struct {
		email    string
		name     string
		password string
		role     users.Role
	}{
		{"admin@example.com", "Fleet Admin", "admin123", users.RoleAdmin},
		{"user@example.com", "Fleet User", "user123", users.RoleUser},
	}
	for _, seed := range seeds {
		hash, err := users.HashPassword(seed.password)
		if err != nil {
			return err
		}
		err = repo.Upsert(context.Background(), &users.User{
			Email:        seed.email,
			Name:         seed.name,
			Role:         seed.role,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
