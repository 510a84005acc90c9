// Package gmail 通过 Gmail API 搜索候选邮件。
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/YKarmar/appledger/internal/mailbody"
	"github.com/YKarmar/appledger/internal/query"
	"github.com/YKarmar/appledger/internal/types"
)

const user = "me"

// Gmail 单页最多返回 500 条
const pageSize = 500

type Source struct {
	srv        *gmailapi.Service
	maxResults int
	log        *zap.Logger
}

// New 使用已授权的 HTTP 客户端创建 Gmail 邮件源
func New(ctx context.Context, httpClient *http.Client, maxResults int, log *zap.Logger, opts ...option.ClientOption) (*Source, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{srv: srv, maxResults: maxResults, log: log}, nil
}

// Search 分页列出匹配的消息，仅对未跳过的消息获取元数据
func (s *Source) Search(ctx context.Context, strategy query.Strategy, skip func(id string) bool) ([]types.Email, error) {
	q := strategy.String()
	var (
		emails []types.Email
		token  string
	)
	for {
		call := s.srv.Users.Messages.List(user).Q(q).MaxResults(pageSize).Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages %q: %w", strategy.Name, err)
		}
		for _, m := range resp.Messages {
			if skip != nil && skip(m.Id) {
				continue
			}
			full, err := s.srv.Users.Messages.Get(user, m.Id).
				Format("metadata").
				MetadataHeaders("Subject", "From").
				Context(ctx).Do()
			if err != nil {
				return nil, fmt.Errorf("get message %s: %w", m.Id, err)
			}
			emails = append(emails, toEmail(full))
			if s.maxResults > 0 && len(emails) >= s.maxResults {
				return emails, nil
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	s.log.Debug("gmail search",
		zap.String("strategy", strategy.Name),
		zap.String("query", q),
		zap.Int("candidates", len(emails)),
	)
	return emails, nil
}

// FetchBody 获取完整消息并提取正文，HTML 正文转换为纯文本
func (s *Source) FetchBody(ctx context.Context, id string) (string, error) {
	msg, err := s.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get message body %s: %w", id, err)
	}
	if msg.Payload == nil {
		return msg.Snippet, nil
	}
	if text := bodyText(msg.Payload); text != "" {
		return text, nil
	}
	return msg.Snippet, nil
}

func (s *Source) Close() error { return nil }

func toEmail(m *gmailapi.Message) types.Email {
	email := types.Email{
		ID:        m.Id,
		MessageID: m.Id,
		ThreadID:  m.ThreadId,
		Snippet:   m.Snippet,
		Date:      time.UnixMilli(m.InternalDate).UTC(),
	}
	if m.ThreadId != "" {
		email.ThreadURL = "https://mail.google.com/mail/u/0/#inbox/" + m.ThreadId
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				email.Subject = h.Value
			case "from":
				email.From = h.Value
			}
		}
	}
	return email
}

// bodyText 深度优先查找第一个 text/plain 部分，缺失时使用第一个 text/html 部分
func bodyText(p *gmailapi.MessagePart) string {
	if plain := findPart(p, "text/plain"); plain != "" {
		return plain
	}
	if html := findPart(p, "text/html"); html != "" {
		return mailbody.FromHTML(html)
	}
	return ""
}

func findPart(p *gmailapi.MessagePart, mimeType string) string {
	if p == nil {
		return ""
	}
	if p.MimeType == mimeType && p.Body != nil && p.Body.Data != "" {
		if b, err := decode(p.Body.Data); err == nil {
			return string(b)
		}
	}
	for _, child := range p.Parts {
		if s := findPart(child, mimeType); s != "" {
			return s
		}
	}
	return ""
}

// decode 兼容带或不带填充的 base64url
func decode(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}
