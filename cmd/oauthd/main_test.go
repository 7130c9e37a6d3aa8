package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/razorphish/core-api-sub000/internal/repository"
	"github.com/razorphish/core-api-sub000/internal/signer"
)

func TestDigestCommand(t *testing.T) {
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"digest", "s3cret"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, signer.Fingerprint("s3cret")+"\n", out.String())
}

func TestDigestRequiresSecret(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"digest"})
	require.Error(t, cmd.Execute())
}

func TestAppStartsWithMemoryStore(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("HTTP_PORT", "0")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("SENTRY_DSN", "")
	t.Setenv("SEED_ON_START", "true")
	t.Setenv("SEED_CLIENT_SECRET", "s3cret")
	t.Setenv("SEED_ACCOUNT_PASSWORD", "Letme1n!")

	var store *repository.Store
	app := newApp(fx.NopLogger, fx.Populate(&store))
	require.NoError(t, app.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer func() { require.NoError(t, app.Stop(ctx)) }()

	client, err := store.Clients.GetByClientID(ctx, "core-web-ui")
	require.NoError(t, err)
	require.Equal(t, signer.Fingerprint("s3cret"), client.SecretHash)

	_, err = store.Accounts.GetByUsername(ctx, "david@maras.co")
	require.NoError(t, err)
}
