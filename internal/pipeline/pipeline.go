// Package pipeline 串联一次完整运行：生成搜索策略、逐封分类与提取、分批写入账本。
//
// 整个运行在单个 goroutine 中顺序执行。取消只在候选邮件之间检查，
// 已提交的批次保持有效，下次运行从账本状态继续。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/YKarmar/appledger/internal/analyzer"
	"github.com/YKarmar/appledger/internal/exporter"
	"github.com/YKarmar/appledger/internal/ledger"
	"github.com/YKarmar/appledger/internal/metrics"
	"github.com/YKarmar/appledger/internal/notify"
	"github.com/YKarmar/appledger/internal/query"
	"github.com/YKarmar/appledger/internal/source"
	"github.com/YKarmar/appledger/internal/types"
)

type Options struct {
	Generator *query.Generator
	Source    source.MailSource
	Analyzer  *analyzer.JobAnalyzer
	Sync      *ledger.Synchronizer
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	BatchSize int
	Now       func() time.Time
}

type Pipeline struct {
	opts Options
}

func New(opts Options) *Pipeline {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{opts: opts}
}

// Report 一次运行的结果
type Report struct {
	Stats   exporter.RunStats
	Added   []types.Application
	Summary []types.CompanySummary
}

// Run 执行所有策略。同一消息无论被哪个策略返回，都只分类一次、记录一次
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	log := p.opts.Log
	snap, err := p.opts.Sync.Open(ctx)
	if err != nil {
		return nil, err
	}

	strategies := p.opts.Generator.Generate(p.opts.Now())
	report := &Report{Stats: exporter.RunStats{Strategies: len(strategies)}}
	visited := make(map[string]struct{})
	skip := func(id string) bool {
		_, dup := visited[id]
		if dup || snap.Seen(id) {
			report.Stats.Duplicates++
			p.opts.Metrics.Duplicates.Inc()
			return true
		}
		return false
	}

	var pending []types.Application
	for _, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("run aborted: %w", err)
		}
		emails, err := p.opts.Source.Search(ctx, strategy, skip)
		if err != nil {
			return report, fmt.Errorf("search %s: %w", strategy.Name, err)
		}
		p.opts.Metrics.ObserveCandidates(strategy.Name, len(emails))
		log.Info("Strategy searched",
			zap.String("strategy", strategy.Name),
			zap.Int("candidates", len(emails)),
		)

		for i := range emails {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("run aborted: %w", err)
			}
			email := &emails[i]
			// 来源可能不调用 skip，这里再过滤一次
			if skip(email.Key()) {
				continue
			}
			visited[email.Key()] = struct{}{}
			report.Stats.Candidates++

			hadBody := email.BodyText != ""
			app, verdict, err := p.opts.Analyzer.Analyze(ctx, email, p.opts.Source.FetchBody)
			if err != nil {
				return report, err
			}
			if verdict.Stage == types.StageBody && !hadBody {
				report.Stats.BodyFetches++
			}
			p.opts.Metrics.ObserveDecision(verdict.Stage, verdict.Decision)
			log.Debug("Message classified",
				zap.String("message_id", email.Key()),
				zap.String("subject", analyzer.TruncateText(email.Subject, 80)),
				zap.String("decision", string(verdict.Decision)),
				zap.String("stage", string(verdict.Stage)),
				zap.String("matched", verdict.Matched),
			)
			if app == nil {
				report.Stats.Rejected++
				continue
			}
			report.Stats.Confirmed++
			pending = append(pending, *app)

			if len(pending) >= p.opts.BatchSize {
				if err := p.commit(ctx, snap, pending, report); err != nil {
					return report, err
				}
				pending = nil
			}
		}
	}

	// 即使没有新记录也重建一次汇总
	if err := p.commit(ctx, snap, pending, report); err != nil {
		return report, err
	}
	report.Stats.LedgerSize = snap.Len()
	p.opts.Metrics.MarkRun(p.opts.Now())
	return report, nil
}

func (p *Pipeline) commit(ctx context.Context, snap *ledger.Snapshot, batch []types.Application, report *Report) error {
	res, err := p.opts.Sync.Commit(ctx, snap, batch)
	if err != nil {
		return err
	}
	report.Added = append(report.Added, res.Added...)
	report.Summary = res.Summary
	report.Stats.Added += len(res.Added)
	report.Stats.LedgerSize = snap.Len()
	p.opts.Metrics.Recorded.Add(float64(len(res.Added)))

	if len(res.Added) > 0 {
		// 账本已提交，通知失败只记录日志
		if err := p.opts.Notifier.Recorded(ctx, res.Added); err != nil {
			p.opts.Log.Warn("Notify failed", zap.Int("applications", len(res.Added)), zap.Error(err))
		}
	}
	return nil
}
