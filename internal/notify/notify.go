// Package notify 把新写入账本的申请记录发布到 RabbitMQ。
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/YKarmar/appledger/internal/types"
)

const RoutingKeyRecorded = "application.recorded"

// Notifier 账本提交之后调用，失败不回滚账本
type Notifier interface {
	Recorded(ctx context.Context, apps []types.Application) error
	Close() error
}

// Nop 未配置 notify.amqp_url 时使用
type Nop struct{}

func (Nop) Recorded(context.Context, []types.Application) error { return nil }
func (Nop) Close() error                                       { return nil }

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher 每条申请记录发布一条 JSON 消息到 topic exchange
type Publisher struct {
	conn     *amqp091.Connection
	ch       channel
	exchange string
}

// Dial 连接 RabbitMQ 并声明 exchange
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Event 消息体
type Event struct {
	types.Application
	DateApplied string `json:"date_applied"`
}

func (p *Publisher) Recorded(ctx context.Context, apps []types.Application) error {
	for _, app := range apps {
		body, err := json.Marshal(Event{Application: app, DateApplied: app.DateApplied.Format(types.DateLayout)})
		if err != nil {
			return fmt.Errorf("encode %s: %w", app.MessageID, err)
		}
		err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyRecorded, false, false, amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    app.MessageID,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", app.MessageID, err)
		}
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
