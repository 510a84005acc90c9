// Package source 定义邮件源接口，并按配置创建具体实现。
package source

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/YKarmar/appledger/internal/auth"
	"github.com/YKarmar/appledger/internal/client"
	"github.com/YKarmar/appledger/internal/config"
	"github.com/YKarmar/appledger/internal/gmail"
	"github.com/YKarmar/appledger/internal/imapsource"
	"github.com/YKarmar/appledger/internal/query"
	"github.com/YKarmar/appledger/internal/types"
)

var ErrUnknownProvider = errors.New("unknown mail provider")

// MailSource 执行搜索策略并按需获取正文。
// Search 返回的 Email.ID 可直接传给 FetchBody
type MailSource interface {
	Search(ctx context.Context, strategy query.Strategy, skip func(id string) bool) ([]types.Email, error)
	FetchBody(ctx context.Context, id string) (string, error)
	Close() error
}

var (
	_ MailSource = (*gmail.Source)(nil)
	_ MailSource = (*imapsource.Source)(nil)
	_ MailSource = (*client.MCPEmailClient)(nil)
)

// Open 按 mail.provider 创建邮件源
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (MailSource, error) {
	switch cfg.Mail.Provider {
	case config.ProviderGmail:
		httpClient, err := auth.HTTPClient(ctx, cfg.Google)
		if err != nil {
			return nil, fmt.Errorf("google auth: %w", err)
		}
		return gmail.New(ctx, httpClient, cfg.Mail.MaxResults, log)
	case config.ProviderIMAP:
		var tokens oauth2.TokenSource
		if cfg.Mail.IMAP.Auth == "oauthbearer" {
			ts, err := auth.TokenSource(ctx, cfg.Google, auth.IMAPScope)
			if err != nil {
				return nil, fmt.Errorf("imap oauth: %w", err)
			}
			tokens = ts
		}
		return imapsource.New(cfg.Mail.IMAP, cfg.Mail.MaxResults, tokens, log), nil
	case config.ProviderMCP:
		return client.NewMCPEmailClient(client.MCPEmailConfig{
			Email:       cfg.Mail.Email,
			MCPEndpoint: cfg.Mail.MCP.Endpoint,
			APIKey:      cfg.Mail.MCP.APIKey,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Mail.Provider)
	}
}
