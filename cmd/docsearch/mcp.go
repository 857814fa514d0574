package main

import (
	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/mcptool"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the search and list_books tools over stdio for an MCP client",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			a, err := newApp(c, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Start(c.Context); err != nil {
				return err
			}
			return mcptool.Serve(c.Context, mcptool.NewServer(a.Service, cfg.MCP.Name, version))
		},
	}
}

// newApp builds the stack with external services connected, without
// loading books.
func newApp(c *cli.Context, cfg *config.Config) (*app.App, error) {
	return app.New(c.Context, cfg, app.Options{Services: true})
}
