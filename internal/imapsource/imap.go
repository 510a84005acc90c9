// Package imapsource 通过 IMAP 搜索候选邮件。
package imapsource

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-sasl"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/YKarmar/appledger/internal/config"
	"github.com/YKarmar/appledger/internal/mailbody"
	"github.com/YKarmar/appledger/internal/query"
	"github.com/YKarmar/appledger/internal/types"
)

func init() {
	imap.CharsetReader = charset.Reader
}

// 单次 FETCH 的 UID 数量
const fetchChunk = 100

var ErrBadID = errors.New("malformed imap message id")

// IMAP 邮件源，连接在首次使用时建立
type Source struct {
	cfg        config.IMAPConfig
	maxResults int
	tokens     oauth2.TokenSource
	log        *zap.Logger

	mu sync.Mutex
	c  *client.Client
}

// New 创建 IMAP 邮件源。tokens 仅在 oauthbearer 认证时使用
func New(cfg config.IMAPConfig, maxResults int, tokens oauth2.TokenSource, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{cfg: cfg, maxResults: maxResults, tokens: tokens, log: log}
}

func (s *Source) connect() (*client.Client, error) {
	if s.c != nil {
		return s.c, nil
	}
	var (
		c   *client.Client
		err error
	)
	if s.cfg.UseTLS {
		c, err = client.DialTLS(s.cfg.Host, &tls.Config{})
	} else {
		c, err = client.Dial(s.cfg.Host)
	}
	if err != nil {
		return nil, fmt.Errorf("connect imap %s: %w", s.cfg.Host, err)
	}

	switch s.cfg.Auth {
	case "oauthbearer":
		if s.tokens == nil {
			c.Logout()
			return nil, fmt.Errorf("imap oauthbearer: no token source")
		}
		tok, terr := s.tokens.Token()
		if terr != nil {
			c.Logout()
			return nil, fmt.Errorf("imap oauth token: %w", terr)
		}
		err = c.Authenticate(sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: s.cfg.Username,
			Token:    tok.AccessToken,
		}))
	default:
		err = c.Login(s.cfg.Username, s.cfg.Password)
	}
	if err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap login %s: %w", s.cfg.Username, err)
	}
	s.c = c
	return c, nil
}

// Search 在所有配置的文件夹中执行策略，skip 返回 true 的消息不计入结果
func (s *Source) Search(ctx context.Context, strategy query.Strategy, skip func(id string) bool) ([]types.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	criteria := buildCriteria(strategy)

	var emails []types.Email
	for _, folder := range s.cfg.Folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := s.maxResults - len(emails)
		if s.maxResults > 0 && remaining <= 0 {
			break
		}
		got, err := s.searchFolder(ctx, c, folder, criteria, remaining, skip)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", folder, err)
		}
		emails = append(emails, got...)
	}
	return emails, nil
}

func (s *Source) searchFolder(ctx context.Context, c *client.Client, folder string, criteria *imap.SearchCriteria, limit int, skip func(string) bool) ([]types.Email, error) {
	mbox, err := c.Select(folder, true)
	if err != nil {
		return nil, err
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, err
	}
	// 最新的邮件优先
	slices.Sort(uids)
	slices.Reverse(uids)
	s.log.Debug("imap search",
		zap.String("folder", folder),
		zap.Int("matches", len(uids)),
	)

	var emails []types.Email
	for start := 0; start < len(uids); start += fetchChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+fetchChunk, len(uids))
		seqset := new(imap.SeqSet)
		seqset.AddNum(uids[start:end]...)

		msgs, err := fetch(c, seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate})
		if err != nil {
			return nil, err
		}
		for _, msg := range msgs {
			email := toEmail(msg, folder, mbox.UidValidity, s.isGmail())
			if skip != nil && skip(email.Key()) {
				continue
			}
			emails = append(emails, email)
			if limit > 0 && len(emails) >= limit {
				return emails, nil
			}
		}
	}
	return emails, nil
}

// FetchBody 按 Search 返回的 ID 获取正文
func (s *Source) FetchBody(ctx context.Context, id string) (string, error) {
	folder, validity, uid, err := parseID(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := s.connect()
	if err != nil {
		return "", err
	}
	mbox, err := c.Select(folder, true)
	if err != nil {
		return "", fmt.Errorf("select %s: %w", folder, err)
	}
	if mbox.UidValidity != validity {
		return "", fmt.Errorf("%s: uidvalidity changed from %d to %d", folder, validity, mbox.UidValidity)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	msgs, err := fetch(c, seqset, []imap.FetchItem{section.FetchItem()})
	if err != nil {
		return "", fmt.Errorf("fetch body %s: %w", id, err)
	}
	for _, msg := range msgs {
		for _, lit := range msg.Body {
			if lit == nil {
				continue
			}
			return mailbody.Text(lit)
		}
	}
	return "", fmt.Errorf("message %s not found", id)
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	err := s.c.Logout()
	s.c = nil
	return err
}

func (s *Source) isGmail() bool {
	return strings.HasPrefix(strings.ToLower(s.cfg.Host), "imap.gmail.com")
}

func fetch(c *client.Client, seqset *imap.SeqSet, items []imap.FetchItem) ([]*imap.Message, error) {
	messages := make(chan *imap.Message, fetchChunk)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var out []*imap.Message
	for msg := range messages {
		out = append(out, msg)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return out, nil
}

// toEmail 的 ID 形如 folder/uidvalidity/uid
func toEmail(msg *imap.Message, folder string, validity uint32, gmail bool) types.Email {
	email := types.Email{
		ID:     formatID(folder, validity, msg.Uid),
		Folder: folder,
		Date:   msg.InternalDate,
	}
	if env := msg.Envelope; env != nil {
		email.Subject = env.Subject
		if !env.Date.IsZero() {
			email.Date = env.Date
		}
		if len(env.From) > 0 {
			from := env.From[0]
			email.From = (&mail.Address{Name: from.PersonalName, Address: from.Address()}).String()
		}
		email.MessageID = strings.Trim(strings.TrimSpace(env.MessageId), "<>")
	}
	if email.MessageID == "" {
		email.MessageID = email.ID
	} else if gmail {
		email.ThreadURL = "https://mail.google.com/mail/u/0/#search/" + url.PathEscape("rfc822msgid:"+email.MessageID)
	}
	return email
}

func formatID(folder string, validity, uid uint32) string {
	return folder + "/" + strconv.FormatUint(uint64(validity), 10) + "/" + strconv.FormatUint(uint64(uid), 10)
}

// parseID 从右侧拆分，文件夹名本身可能包含 "/"
func parseID(id string) (folder string, validity, uid uint32, err error) {
	i := strings.LastIndex(id, "/")
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrBadID, id)
	}
	j := strings.LastIndex(id[:i], "/")
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrBadID, id)
	}
	v, err1 := strconv.ParseUint(id[j+1:i], 10, 32)
	u, err2 := strconv.ParseUint(id[i+1:], 10, 32)
	if err1 != nil || err2 != nil {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrBadID, id)
	}
	return id[:j], uint32(v), uint32(u), nil
}
