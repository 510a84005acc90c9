package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/YKarmar/appledger/internal/auth"
	"github.com/YKarmar/appledger/internal/client"
	"github.com/YKarmar/appledger/internal/config"
	"github.com/YKarmar/appledger/internal/imapsource"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	src, err := Open(ctx, &config.Config{Mail: config.MailConfig{
		Provider: config.ProviderMCP,
		MCP:      config.MCPConfig{Endpoint: "http://localhost:8080/mcp"},
	}}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &client.MCPEmailClient{}, src)

	src, err = Open(ctx, &config.Config{Mail: config.MailConfig{
		Provider: config.ProviderIMAP,
		IMAP:     config.IMAPConfig{Host: "imap.example.com:993", Auth: "password"},
	}}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &imapsource.Source{}, src)

	_, err = Open(ctx, &config.Config{Mail: config.MailConfig{Provider: "pigeon"}}, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOpenGmailWithoutCredentials(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(context.Background(), &config.Config{
		Mail: config.MailConfig{Provider: config.ProviderGmail},
		Google: config.GoogleConfig{
			CredentialsFile: filepath.Join(dir, "credentials.json"),
			TokenFile:       filepath.Join(dir, "token.json"),
		},
	}, zap.NewNop())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrNoToken)
}
