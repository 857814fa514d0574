// Command docsearch is the operator CLI: query a book, inspect an index,
// validate and publish builds, or serve the MCP tools over stdio.
//
// Usage:
//
//	docsearch [--config FILE] [--index PATH] <command> [flags] [args]
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

var version = "dev"

func main() {
	cliApp := &cli.App{
		Name:    "docsearch",
		Usage:   "Search and manage prebuilt documentation search indexes",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				EnvVars: []string{"DS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "index",
				Usage: "searchindex.js path or URL; replaces the configured books with one",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "book name used with --index",
				Value: "default",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "warn",
			},
		},
		Before: func(c *cli.Context) error {
			// stdout carries command output and, for mcp, the protocol
			logger.SetupWriter(os.Stderr, c.String("log-level"), "text")
			return nil
		},
		Commands: []*cli.Command{
			queryCommand(),
			inspectCommand(),
			termsCommand(),
			validateCommand(),
			publishCommand(),
			mcpCommand(),
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies --index.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if src := c.String("index"); src != "" {
		cfg.Books = []config.BookConfig{{Name: c.String("name"), Source: src, Default: true}}
	}
	return cfg, nil
}

// loadApp builds the stack and loads every book. services connects the
// configured Redis, PostgreSQL and Kafka.
func loadApp(c *cli.Context, services bool) (*app.App, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	a, err := app.New(c.Context, cfg, app.Options{Services: services})
	if err != nil {
		return nil, err
	}
	if err := a.Load(c.Context); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
