// Package mailbody 从 MIME 邮件中提取纯文本正文。
package mailbody

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/k3a/html2text"
)

// Text 解析完整的 RFC 5322 邮件，优先返回第一个 text/plain 部分，
// 没有纯文本时转换第一个 text/html 部分
func Text(r io.Reader) (string, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return "", fmt.Errorf("parse message: %w", err)
	}

	var plain, html *string
	var walk func(*message.Entity) error
	walk = func(e *message.Entity) error {
		mediaType, _, _ := e.Header.ContentType()
		if mr := e.MultipartReader(); mr != nil {
			for {
				part, err := mr.NextPart()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
					return fmt.Errorf("read part: %w", err)
				}
				if err := walk(part); err != nil {
					return err
				}
			}
		}
		if disp, _, _ := e.Header.ContentDisposition(); disp == "attachment" {
			return nil
		}
		switch mediaType {
		case "text/plain", "":
			if plain != nil {
				return nil
			}
		case "text/html":
			if html != nil {
				return nil
			}
		default:
			return nil
		}
		b, err := io.ReadAll(e.Body)
		if err != nil {
			return fmt.Errorf("read %s body: %w", mediaType, err)
		}
		s := string(b)
		if mediaType == "text/html" {
			html = &s
		} else {
			plain = &s
		}
		return nil
	}
	if err := walk(entity); err != nil {
		return "", err
	}

	switch {
	case plain != nil && strings.TrimSpace(*plain) != "":
		return *plain, nil
	case html != nil:
		return FromHTML(*html), nil
	case plain != nil:
		return *plain, nil
	}
	return "", nil
}

// FromHTML 将 HTML 正文转换为纯文本
func FromHTML(s string) string {
	return html2text.HTML2Text(s)
}
