// mcp-server 通过 JSON-RPC 暴露本地邮箱，供 appledger 以 mcp 提供商访问。
// 同时处理 Google OAuth 回调，把令牌写入配置的 token 文件。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/YKarmar/appledger/internal/config"
	"github.com/YKarmar/appledger/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, config.ErrInvalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen string
	flagSet := pflag.NewFlagSet("mcp-server", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to YAML or TOML config")
	flagSet.StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadMail(configPath)
	if err != nil {
		return err
	}
	if cfg.Mail.Provider == config.ProviderMCP {
		return fmt.Errorf("%w: mcp-server needs a gmail or imap mail.provider", config.ErrInvalid)
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	server := NewMCPServer(cfg, log)
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("MCP server listening",
		zap.String("addr", cfg.Server.Listen),
		zap.String("provider", cfg.Mail.Provider),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}
	return nil
}
