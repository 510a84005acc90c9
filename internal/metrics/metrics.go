// Package metrics 记录单次运行的 Prometheus 指标，并在运行结束时推送到 Pushgateway。
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/YKarmar/appledger/internal/types"
)

// Metrics 每次运行使用独立的 registry，避免与全局默认 registry 混用
type Metrics struct {
	reg *prometheus.Registry

	// 各搜索策略返回的候选邮件数
	Candidates *prometheus.CounterVec
	// 分类结果，stage: subject/body
	Classified *prometheus.CounterVec
	// 写入账本的新记录
	Recorded prometheus.Counter
	// 已处理过而被跳过的消息
	Duplicates prometheus.Counter
	LastRun    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Candidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appledger_candidates_total",
			Help: "Candidate messages returned per search strategy",
		}, []string{"strategy"}),
		Classified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appledger_classified_total",
			Help: "Classifier decisions by stage",
		}, []string{"stage", "decision"}),
		Recorded: f.NewCounter(prometheus.CounterOpts{
			Name: "appledger_applications_recorded_total",
			Help: "Applications appended to the ledger",
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "appledger_duplicates_total",
			Help: "Messages skipped because their id was already processed",
		}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "appledger_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
	}
}

// ObserveCandidates 记录某个策略返回的候选数
func (m *Metrics) ObserveCandidates(strategy string, n int) {
	m.Candidates.WithLabelValues(strategy).Add(float64(n))
}

// ObserveDecision 记录一次分类结论
func (m *Metrics) ObserveDecision(stage types.Stage, decision types.Decision) {
	m.Classified.WithLabelValues(string(stage), string(decision)).Inc()
}

// MarkRun 记录运行完成时间
func (m *Metrics) MarkRun(t time.Time) {
	m.LastRun.Set(float64(t.Unix()))
}

// Push 把本次运行的指标推送到 Pushgateway。url 为空时不做任何事
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
