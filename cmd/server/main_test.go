package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiconnect "github.com/osa030/encore/internal/api/connect"
	"github.com/osa030/encore/internal/infra/config"
)

func TestNewHandler_ServesPlaybackService(t *testing.T) {
	t.Setenv("ENCORE_ADMIN_TOKEN", "test-token")
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")

	cfg, err := config.Load(filepath.Join("..", "..", "config", "server.yaml"))
	require.NoError(t, err)

	svc, err := newService(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	srv := httptest.NewServer(newHandler(cfg, svc))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	client := apiconnect.NewPlaybackClient(srv.Client(), srv.URL,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor("test-token")))

	joined, err := client.Join(ctx, &apiconnect.JoinRequest{GuildID: "g1", ChannelID: "voice-1"})
	require.NoError(t, err)
	assert.Equal(t, "connected", joined.State)

	status, err := client.Status(ctx, &apiconnect.StatusRequest{})
	require.NoError(t, err)
	require.Len(t, status.Guilds, 1)
	assert.Equal(t, "g1", status.Guilds[0].GuildID)

	anonymous := apiconnect.NewPlaybackClient(srv.Client(), srv.URL)
	_, err = anonymous.Status(ctx, &apiconnect.StatusRequest{})
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}
