package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

func TestEnvKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "WEBSHARE_API_TOKEN", EnvKey("", "webshare-api-token"))
	assert.Equal(t, "BROCHURES_WEBSHARE_API_TOKEN", EnvKey("brochures", "webshare-api-token"))
	assert.Equal(t, "BROCHURES_EGRESS_TOKEN", EnvKey("BROCHURES", "egress.token"))
}

func TestEnvSecret(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"BROCHURES_WEBSHARE_API_TOKEN": "  tok-123\n",
		"BROCHURES_BLANK":              "   ",
	}
	p := &Env{prefix: "BROCHURES", lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}

	got, err := p.Secret(context.Background(), "webshare-api-token")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got)

	_, err = p.Secret(context.Background(), "blank")
	require.ErrorIs(t, err, crawler.ErrSecret)

	_, err = p.Secret(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrSecret)
	assert.Contains(t, err.Error(), "BROCHURES_MISSING")
}

func TestGSMSecret(t *testing.T) {
	t.Parallel()

	var requested string
	g := &GSM{projectID: "prepcart-prod", access: func(_ context.Context, resource string) ([]byte, error) {
		requested = resource
		return []byte("secret-value\n"), nil
	}}

	got, err := g.Secret(context.Background(), "webshare-api-token")
	require.NoError(t, err)
	assert.Equal(t, "secret-value", got)
	assert.Equal(t, "projects/prepcart-prod/secrets/webshare-api-token/versions/latest", requested)
	require.NoError(t, g.Close())
}

func TestGSMSecretErrors(t *testing.T) {
	t.Parallel()

	denied := &GSM{projectID: "p", access: func(context.Context, string) ([]byte, error) {
		return nil, errors.New("permission denied")
	}}
	_, err := denied.Secret(context.Background(), "token")
	require.ErrorIs(t, err, crawler.ErrSecret)
	assert.Contains(t, err.Error(), "permission denied")

	empty := &GSM{projectID: "p", access: func(context.Context, string) ([]byte, error) {
		return nil, nil
	}}
	_, err = empty.Secret(context.Background(), "token")
	require.ErrorIs(t, err, crawler.ErrSecret)
}

func TestNewGSMRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := NewGSM(context.Background(), "")
	require.Error(t, err)
}
