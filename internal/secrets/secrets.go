// Package secrets resolves named secrets from the environment or Google Secret Manager.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// Provider returns the current value of a named secret.
type Provider interface {
	Secret(ctx context.Context, name string) (string, error)
}

// Env reads secrets from environment variables. The name "webshare-api-token"
// with prefix "BROCHURES" maps to BROCHURES_WEBSHARE_API_TOKEN.
type Env struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnv returns an environment-backed provider.
func NewEnv(prefix string) *Env {
	return &Env{prefix: prefix, lookup: os.LookupEnv}
}

// Secret implements Provider.
func (e *Env) Secret(_ context.Context, name string) (string, error) {
	key := EnvKey(e.prefix, name)
	value, ok := e.lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s is not set", crawler.ErrSecret, key)
	}
	return strings.TrimSpace(value), nil
}

// EnvKey derives the variable name for a secret.
func EnvKey(prefix, name string) string {
	key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name))
	if prefix == "" {
		return key
	}
	return strings.ToUpper(prefix) + "_" + key
}

// GSM reads the latest version of a secret from Google Secret Manager.
type GSM struct {
	projectID string
	access    func(ctx context.Context, resource string) ([]byte, error)
	close     func() error
}

// NewGSM dials Secret Manager for projectID.
func NewGSM(ctx context.Context, projectID string) (*GSM, error) {
	if projectID == "" {
		return nil, fmt.Errorf("secrets.project_id is required")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secretmanager client: %w", err)
	}
	return &GSM{
		projectID: projectID,
		access: func(ctx context.Context, resource string) ([]byte, error) {
			resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
			if err != nil {
				return nil, err
			}
			return resp.GetPayload().GetData(), nil
		},
		close: client.Close,
	}, nil
}

// Secret implements Provider.
func (g *GSM) Secret(ctx context.Context, name string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, name)
	data, err := g.access(ctx, resource)
	if err != nil {
		return "", fmt.Errorf("%w: access %s: %v", crawler.ErrSecret, resource, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("%w: %s is empty", crawler.ErrSecret, resource)
	}
	return value, nil
}

// Close releases the client.
func (g *GSM) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}
