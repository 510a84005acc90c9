package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/YKarmar/appledger/internal/query"
	"github.com/YKarmar/appledger/internal/types"
)

// JSON-RPC 方法名
const (
	MethodLogin  = "email.login"
	MethodSearch = "email.search"
	MethodBody   = "email.body"
)

// MCP协议相关结构体
type MCPRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

type LoginParams struct {
	Email string `json:"email"`
}

type SearchParams struct {
	Strategy query.Strategy `json:"strategy"`
}

type BodyParams struct {
	ID string `json:"id"`
}

type BodyResult struct {
	Text string `json:"text"`
}

// 登录会话信息
type LoginSession struct {
	SessionID string `json:"session_id"`
	LoginURL  string `json:"login_url"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// MCP邮件客户端配置
type MCPEmailConfig struct {
	Email       string
	MCPEndpoint string
	APIKey      string
}

// MCP邮件客户端，通过 mcp-server 访问邮箱
type MCPEmailClient struct {
	config     MCPEmailConfig
	httpClient *http.Client
	seq        atomic.Int64
}

// 创建MCP邮件客户端
func NewMCPEmailClient(config MCPEmailConfig) *MCPEmailClient {
	return &MCPEmailClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Search 在服务端执行策略，skip 在本地过滤
func (c *MCPEmailClient) Search(ctx context.Context, strategy query.Strategy, skip func(id string) bool) ([]types.Email, error) {
	var emails []types.Email
	if err := c.call(ctx, MethodSearch, SearchParams{Strategy: strategy}, &emails); err != nil {
		return nil, err
	}
	if skip == nil {
		return emails, nil
	}
	out := emails[:0]
	for _, e := range emails {
		if !skip(e.Key()) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *MCPEmailClient) FetchBody(ctx context.Context, id string) (string, error) {
	var res BodyResult
	if err := c.call(ctx, MethodBody, BodyParams{ID: id}, &res); err != nil {
		return "", err
	}
	return res.Text, nil
}

// 触发邮箱登录
func (c *MCPEmailClient) InitiateEmailLogin(ctx context.Context) (*LoginSession, error) {
	var session LoginSession
	if err := c.call(ctx, MethodLogin, LoginParams{Email: c.config.Email}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *MCPEmailClient) Close() error { return nil }

func (c *MCPEmailClient) call(ctx context.Context, method string, params, out any) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}
	mcpReq := MCPRequest{
		Jsonrpc: "2.0",
		ID:      method + "_" + strconv.FormatInt(c.seq.Add(1), 10),
		Method:  method,
		Params:  rawParams,
	}

	reqBody, err := json.Marshal(mcpReq)
	if err != nil {
		return fmt.Errorf("marshal MCP request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.MCPEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("MCP server error: %s: %s", resp.Status, string(body))
	}

	var mcpResp MCPResponse
	if err := json.NewDecoder(resp.Body).Decode(&mcpResp); err != nil {
		return fmt.Errorf("decode MCP response: %w", err)
	}
	if mcpResp.Error != nil {
		return fmt.Errorf("%s: %w", method, mcpResp.Error)
	}
	if err := json.Unmarshal(mcpResp.Result, out); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}
