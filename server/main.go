package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/config"
	"github.com/san-kum/probowler/server/logging"
	"github.com/san-kum/probowler/server/middleware"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "probowler:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        "probowler",
		Usage:       "bowling biomechanics analysis",
		Description: "Detects front foot contact and ball release in pose landmark sequences and reports per-frame joint features, knee phases and release-window summaries.",
		Version:     version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "load environment variables from `FILE`",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			return config.LoadDotEnv(c.String("env-file"))
		},
		Commands: []*cli.Command{
			serveCommand(),
			analyzeCommand(),
			tokenCommand(),
		},
	}
}

// newLogger builds the configured logger. format, when set, overrides LOG_FORMAT.
func newLogger(cfg *config.Config, format string) (*zap.Logger, error) {
	lc := cfg.Logging
	if format != "" {
		lc.Format = format
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue an API token signed with JWT_SECRET_KEY",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Value: "operator", Usage: "token subject"},
			&cli.StringFlag{Name: "role", Value: middleware.RoleAdmin, Usage: "token role"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.LoadConfig()
			if cfg.Security.JWTSecretKey == "" {
				return fmt.Errorf("JWT_SECRET_KEY is not set")
			}

			auth := middleware.NewAuthMiddleware(cfg.Security.JWTSecretKey, zap.NewNop())
			token, err := auth.GenerateToken(c.String("subject"), c.String("role"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}
