// Package auth 管理 Google OAuth 凭据与令牌文件。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/YKarmar/appledger/internal/config"
)

// 读取邮件和写入表格所需的权限
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/spreadsheets",
}

// IMAP XOAUTH 需要完整邮箱权限
const IMAPScope = "https://mail.google.com/"

// ErrNoToken 令牌文件不存在，需要先通过 mcp-server 完成授权
var ErrNoToken = errors.New("oauth token not found")

// OAuthConfig 从 credentials.json 读取客户端配置
func OAuthConfig(g config.GoogleConfig, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(g.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", g.CredentialsFile, err)
	}
	if len(scopes) == 0 {
		scopes = Scopes
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", g.CredentialsFile, err)
	}
	if g.RedirectURL != "" {
		cfg.RedirectURL = g.RedirectURL
	}
	return cfg, nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoToken, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read token %s: %w", path, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return &tok, nil
}

// SaveToken 以仅属主可读写的权限保存令牌
func SaveToken(path string, tok *oauth2.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write token %s: %w", path, err)
	}
	return nil
}

// TokenSource 返回会自动刷新的令牌源，刷新后的令牌写回文件
func TokenSource(ctx context.Context, g config.GoogleConfig, scopes ...string) (oauth2.TokenSource, error) {
	cfg, err := OAuthConfig(g, scopes...)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(g.TokenFile)
	if err != nil {
		return nil, err
	}
	return &savingSource{
		base: oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok)),
		path: g.TokenFile,
		last: tok.AccessToken,
	}, nil
}

// HTTPClient 返回携带授权的 HTTP 客户端，供 Gmail 与 Sheets 使用
func HTTPClient(ctx context.Context, g config.GoogleConfig) (*http.Client, error) {
	ts, err := TokenSource(ctx, g)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

type savingSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
