// appledger 扫描邮箱中的求职申请确认邮件，把新申请追加到账本并重建公司汇总。
//
// 每次运行只执行一遍，适合由 cron 每日调度。退出码：0 成功（包括没有新申请），
// 2 配置错误，1 认证、连接或读写失败。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/YKarmar/appledger/internal/analyzer"
	"github.com/YKarmar/appledger/internal/client"
	"github.com/YKarmar/appledger/internal/config"
	"github.com/YKarmar/appledger/internal/exporter"
	"github.com/YKarmar/appledger/internal/ledger"
	"github.com/YKarmar/appledger/internal/ledger/backend"
	"github.com/YKarmar/appledger/internal/logger"
	"github.com/YKarmar/appledger/internal/metrics"
	"github.com/YKarmar/appledger/internal/notify"
	"github.com/YKarmar/appledger/internal/pipeline"
	"github.com/YKarmar/appledger/internal/query"
	"github.com/YKarmar/appledger/internal/source"
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		dryRun     bool
		diagnose   int
		top        int
	)
	flagSet := pflag.NewFlagSet("appledger", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to YAML or TOML config")
	flagSet.BoolVar(&dryRun, "dry-run", false, "classify and summarize without writing to the ledger")
	flagSet.IntVar(&diagnose, "diagnose", 0, "classify the first N unseen candidates and print each decision")
	flagSet.IntVar(&top, "top", 10, "companies shown in the run report")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &exitError{code: 2, err: err}
	}
	if args := flagSet.Args(); len(args) > 0 {
		return &exitError{code: 2, err: fmt.Errorf("unexpected argument: %s", args[0])}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("加载配置失败: %w", err)}
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	store, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	if dryRun || diagnose > 0 {
		store = ledger.NewDryRun(store)
	}

	src, err := source.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open mail source: %w", err)
	}
	defer src.Close()

	if mcp, ok := src.(*client.MCPEmailClient); ok {
		if err := ensureMCPLogin(ctx, mcp, log); err != nil {
			return err
		}
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.AMQPURL != "" && !dryRun && diagnose == 0 {
		pub, err := notify.Dial(cfg.Notify.AMQPURL, cfg.Notify.Exchange)
		if err != nil {
			log.Warn("Notifications disabled", zap.Error(err))
		} else {
			notifier = pub
			defer pub.Close()
		}
	}

	m := metrics.New()
	p := pipeline.New(pipeline.Options{
		Generator: query.NewGenerator(query.Options{
			ConfirmationKeywords: cfg.Classify.ConfirmationKeywords,
			PhraseGroupSize:      cfg.Query.PhraseGroupSize,
			StrategyCount:        cfg.Query.StrategyCount,
			Since:                config.ParseDateLoose(cfg.Mail.Since, time.Time{}),
			LookbackDays:         cfg.Mail.LookbackDays,
		}),
		Source: src,
		Analyzer: analyzer.NewJobAnalyzer(
			analyzer.NewClassifier(analyzer.Keywords{
				Confirmation: cfg.Classify.ConfirmationKeywords,
				Exclusion:    cfg.Classify.ExclusionKeywords,
			}),
			analyzer.NewExtractor(cfg.Location(), nil),
		),
		Sync:      ledger.NewSynchronizer(store, log),
		Notifier:  notifier,
		Metrics:   m,
		Log:       log,
		BatchSize: cfg.Ledger.BatchSize,
	})

	if diagnose > 0 {
		ds, err := p.Diagnose(ctx, diagnose)
		if err != nil {
			return fmt.Errorf("diagnose: %w", err)
		}
		pipeline.PrintDiagnoses(os.Stdout, ds)
		return nil
	}

	log.Info("Run started",
		zap.String("provider", cfg.Mail.Provider),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.Bool("dry_run", dryRun),
	)
	report, runErr := p.Run(ctx)
	if report != nil {
		exporter.PrintRunReport(os.Stdout, report.Stats, report.Added, report.Summary, top)
	}

	pushCtx, pushCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer pushCancel()
	if err := m.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		log.Warn("Metrics push failed", zap.Error(err))
	}

	if runErr != nil {
		log.Error("Run failed", zap.Error(runErr))
		return runErr
	}
	log.Info("Run finished",
		zap.Int("added", report.Stats.Added),
		zap.Int("ledger_size", report.Stats.LedgerSize),
	)
	return nil
}

// ensureMCPLogin 服务端需要授权时打印登录链接并退出，授权完成后重新运行
func ensureMCPLogin(ctx context.Context, c *client.MCPEmailClient, log *zap.Logger) error {
	session, err := c.InitiateEmailLogin(ctx)
	if err != nil {
		return fmt.Errorf("启动邮箱登录失败: %w", err)
	}
	if session.LoginURL == "" {
		return nil
	}
	fmt.Printf("请在浏览器中完成登录: %s\n", session.LoginURL)
	log.Warn("Mail bridge is not authorized", zap.String("status", session.Status))
	return fmt.Errorf("mail bridge requires login: %s", session.Message)
}
