// Command searchfn serves search from AWS Lambda behind an API Gateway
// proxy integration. Books are loaded once per cold start and reused by
// every warm invocation.
package main

import (
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

func main() {
	cliApp := &cli.App{
		Name:  "searchfn",
		Usage: "Answer documentation search requests from API Gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to config file; DS_* variables apply either way",
				EnvVars: []string{"DS_CONFIG"},
			},
		},
		Action: runAction,
	}
	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("searchfn failed", "error", err)
		os.Exit(1)
	}
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, "json")

	a, err := app.New(ctx, cfg, app.Options{Services: true})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Start(ctx); err != nil {
		return err
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") == "" {
		slog.InfoContext(ctx, "not running inside AWS Lambda, exiting after load", "books", len(a.Catalog.Books()))
		return nil
	}
	lambda.Start(NewHandler(a.Service).Handle)
	return nil
}
