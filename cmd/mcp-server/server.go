package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/YKarmar/appledger/internal/auth"
	"github.com/YKarmar/appledger/internal/client"
	"github.com/YKarmar/appledger/internal/config"
	"github.com/YKarmar/appledger/internal/source"
)

// JSON-RPC 错误码
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// MCP服务器：把 JSON-RPC 请求转发给本地配置的邮件源
type MCPServer struct {
	cfg  *config.Config
	log  *zap.Logger
	open func(ctx context.Context) (source.MailSource, error)

	mu       sync.Mutex
	src      source.MailSource
	sessions map[string]*client.LoginSession
}

func NewMCPServer(cfg *config.Config, log *zap.Logger) *MCPServer {
	return &MCPServer{
		cfg: cfg,
		log: log,
		open: func(ctx context.Context) (source.MailSource, error) {
			return source.Open(ctx, cfg, log)
		},
		sessions: make(map[string]*client.LoginSession),
	}
}

func (s *MCPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/oauth/callback", s.handleOAuthCallback)
	return mux
}

func (s *MCPServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if key := s.cfg.Mail.MCP.APIKey; key != "" && r.Header.Get("Authorization") != "Bearer "+key {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req client.MCPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, req.ID, codeParseError, "Parse error")
		return
	}

	var (
		result any
		err    error
	)
	switch req.Method {
	case client.MethodLogin:
		result, err = s.handleLogin(r.Context())
	case client.MethodSearch:
		var p client.SearchParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.sendError(w, req.ID, codeInvalidParams, "invalid search parameters")
			return
		}
		result, err = s.handleSearch(r.Context(), p)
	case client.MethodBody:
		var p client.BodyParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.ID == "" {
			s.sendError(w, req.ID, codeInvalidParams, "invalid body parameters")
			return
		}
		result, err = s.handleBody(r.Context(), p)
	default:
		s.sendError(w, req.ID, codeMethodNotFound, "Method not found")
		return
	}

	if err != nil {
		s.log.Warn("MCP call failed", zap.String("method", req.Method), zap.Error(err))
		s.sendError(w, req.ID, codeServerError, err.Error())
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		s.sendError(w, req.ID, codeServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(client.MCPResponse{Jsonrpc: "2.0", ID: req.ID, Result: raw})
}

// needsOAuth Gmail API 和 IMAP oauthbearer 都依赖 token 文件
func (s *MCPServer) needsOAuth() bool {
	switch s.cfg.Mail.Provider {
	case config.ProviderGmail:
		return true
	case config.ProviderIMAP:
		return s.cfg.Mail.IMAP.Auth == "oauthbearer"
	}
	return false
}

func (s *MCPServer) oauthConfig() (*oauth2.Config, error) {
	scopes := auth.Scopes
	if s.cfg.Mail.Provider == config.ProviderIMAP {
		scopes = append(append([]string(nil), auth.Scopes...), auth.IMAPScope)
	}
	return auth.OAuthConfig(s.cfg.Google, scopes...)
}

func (s *MCPServer) handleLogin(ctx context.Context) (*client.LoginSession, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return nil, err
	}

	session := &client.LoginSession{
		SessionID: sessionID,
		Status:    "ready",
		Message:   "使用应用密码认证，无需浏览器登录",
	}
	if s.needsOAuth() {
		_, err := auth.LoadToken(s.cfg.Google.TokenFile)
		switch {
		case err == nil:
			session.Message = "OAuth令牌已存在"
		case errors.Is(err, auth.ErrNoToken):
			oc, err := s.oauthConfig()
			if err != nil {
				return nil, err
			}
			session.LoginURL = oc.AuthCodeURL(sessionID, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			session.Status = "pending"
			session.Message = "请在浏览器中完成Google OAuth认证"
		default:
			return nil, err
		}
	}

	s.mu.Lock()
	s.sessions[sessionID] = session
	s.mu.Unlock()
	return session, nil
}

func (s *MCPServer) mailSource(ctx context.Context) (source.MailSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != nil {
		return s.src, nil
	}
	src, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	s.src = src
	return src, nil
}

func (s *MCPServer) handleSearch(ctx context.Context, p client.SearchParams) (any, error) {
	src, err := s.mailSource(ctx)
	if err != nil {
		return nil, err
	}
	emails, err := src.Search(ctx, p.Strategy, nil)
	if err != nil {
		return nil, err
	}
	s.log.Info("Search served", zap.String("strategy", p.Strategy.Name), zap.Int("results", len(emails)))
	if emails == nil {
		return []any{}, nil
	}
	return emails, nil
}

func (s *MCPServer) handleBody(ctx context.Context, p client.BodyParams) (*client.BodyResult, error) {
	src, err := s.mailSource(ctx)
	if err != nil {
		return nil, err
	}
	text, err := src.FetchBody(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &client.BodyResult{Text: text}, nil
}

func (s *MCPServer) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	s.mu.Lock()
	session, ok := s.sessions[state]
	s.mu.Unlock()
	if !ok || code == "" {
		http.Error(w, "unknown login session", http.StatusBadRequest)
		return
	}

	oc, err := s.oauthConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	tok, err := oc.Exchange(r.Context(), code)
	if err != nil {
		s.log.Warn("OAuth exchange failed", zap.Error(err))
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}
	if err := auth.SaveToken(s.cfg.Google.TokenFile, tok); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	session.Status = "completed"
	session.Message = "OAuth认证完成"
	// 下次请求使用新令牌重新打开邮件源
	if s.src != nil {
		_ = s.src.Close()
		s.src = nil
	}
	s.mu.Unlock()

	s.log.Info("OAuth login completed", zap.String("session", state))
	fmt.Fprintf(w, "<h2>认证完成</h2><p>可以关闭此页面，返回应用程序。</p>")
}

func (s *MCPServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return nil
	}
	return s.src.Close()
}

func (s *MCPServer) sendError(w http.ResponseWriter, id string, code int, message string) {
	_ = json.NewEncoder(w).Encode(client.MCPResponse{
		Jsonrpc: "2.0",
		ID:      id,
		Error:   &client.MCPError{Code: code, Message: message},
	})
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return "session_" + hex.EncodeToString(b), nil
}
