package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type fakeClient struct {
	values map[string]string
}

func (f *fakeClient) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestResolve(t *testing.T) {
	r := NewResolver(&fakeClient{values: map[string]string{
		"prod/redis":     "hunter2",
		"prod/docsearch": `{"password":"pg-pass","token":42}`,
	}})
	ctx := context.Background()

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"prod/redis", "hunter2", false},
		{"prod/docsearch#password", "pg-pass", false},
		{"prod/docsearch#token", "", true},
		{"prod/redis#password", "", true},
		{"missing", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.ref)
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrSecretUnresolved) {
					t.Errorf("error = %v, want ErrSecretUnresolved", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Resolve = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	r := NewResolver(&fakeClient{values: map[string]string{
		"prod/docsearch": `{"password":"pg-pass","admin":"tok"}`,
	}})
	cfg := config.Default()
	cfg.Redis.Password = "unchanged"
	cfg.Secrets.PostgresPassword = "prod/docsearch#password"
	cfg.Secrets.AdminToken = "prod/docsearch#admin"

	if err := r.Apply(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Postgres.Password != "pg-pass" || cfg.Admin.Token != "tok" || cfg.Redis.Password != "unchanged" {
		t.Errorf("postgres=%q admin=%q redis=%q", cfg.Postgres.Password, cfg.Admin.Token, cfg.Redis.Password)
	}
}
