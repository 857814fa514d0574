// Package secrets replaces plain-text credentials in the configuration with
// values fetched from AWS Secrets Manager at startup.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// SecretsManagerClient is the part of *secretsmanager.Client used here.
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type Resolver struct {
	client SecretsManagerClient
	logger *slog.Logger
}

func NewResolver(client SecretsManagerClient) *Resolver {
	return &Resolver{client: client, logger: slog.Default().With("component", "secrets")}
}

// NewAWSResolver builds a Resolver from the default AWS credential chain.
func NewAWSResolver(ctx context.Context, region string) (*Resolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewResolver(secretsmanager.NewFromConfig(cfg)), nil
}

// Resolve fetches ref, written as "<secret id or ARN>" or
// "<secret id>#<json field>" for secrets that hold a JSON object.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	id, field, _ := strings.Cut(ref, "#")
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", apperrors.Mark(fmt.Errorf("fetching secret %s: %w", id, err), apperrors.ErrSecretUnresolved)
	}
	if out.SecretString == nil {
		return "", apperrors.Mark(fmt.Errorf("secret %s has no string value", id), apperrors.ErrSecretUnresolved)
	}
	value := aws.ToString(out.SecretString)
	if field == "" {
		return value, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return "", apperrors.Mark(fmt.Errorf("secret %s is not a JSON object: %w", id, err), apperrors.ErrSecretUnresolved)
	}
	v, ok := fields[field].(string)
	if !ok {
		return "", apperrors.Mark(fmt.Errorf("secret %s has no string field %q", id, field), apperrors.ErrSecretUnresolved)
	}
	return v, nil
}

// Apply resolves every secret reference named in cfg.Secrets and writes the
// values into the matching credential fields.
func (r *Resolver) Apply(ctx context.Context, cfg *config.Config) error {
	targets := []struct {
		name string
		ref  string
		dst  *string
	}{
		{"redis password", cfg.Secrets.RedisPassword, &cfg.Redis.Password},
		{"postgres password", cfg.Secrets.PostgresPassword, &cfg.Postgres.Password},
		{"admin token", cfg.Secrets.AdminToken, &cfg.Admin.Token},
	}
	for _, t := range targets {
		if t.ref == "" {
			continue
		}
		v, err := r.Resolve(ctx, t.ref)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", t.name, err)
		}
		*t.dst = v
		r.logger.Info("secret resolved", "target", t.name)
	}
	return nil
}
