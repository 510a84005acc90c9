package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/YKarmar/appledger/internal/analyzer"
	"github.com/YKarmar/appledger/internal/types"
)

// Diagnosis 单封候选邮件的分类过程
type Diagnosis struct {
	Strategy    string
	Email       types.Email
	Verdict     analyzer.Verdict
	Application *types.Application
}

// Diagnose 对前 limit 封未处理的候选邮件分类，不写入账本
func (p *Pipeline) Diagnose(ctx context.Context, limit int) ([]Diagnosis, error) {
	snap, err := p.opts.Sync.Open(ctx)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]struct{})
	skip := func(id string) bool {
		_, dup := visited[id]
		return dup || snap.Seen(id)
	}

	var out []Diagnosis
	for _, strategy := range p.opts.Generator.Generate(p.opts.Now()) {
		emails, err := p.opts.Source.Search(ctx, strategy, skip)
		if err != nil {
			return out, fmt.Errorf("search %s: %w", strategy.Name, err)
		}
		for i := range emails {
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
			email := &emails[i]
			if skip(email.Key()) {
				continue
			}
			visited[email.Key()] = struct{}{}

			app, verdict, err := p.opts.Analyzer.Analyze(ctx, email, p.opts.Source.FetchBody)
			if err != nil {
				return out, err
			}
			out = append(out, Diagnosis{Strategy: strategy.Name, Email: *email, Verdict: verdict, Application: app})
		}
	}
	return out, nil
}

// PrintDiagnoses 逐条输出诊断结果
func PrintDiagnoses(w io.Writer, ds []Diagnosis) {
	fmt.Fprintf(w, "=== 诊断 %d 封候选邮件 ===\n", len(ds))
	for i, d := range ds {
		fmt.Fprintf(w, "\n[%d] %s\n", i+1, analyzer.TruncateText(d.Email.Subject, 100))
		fmt.Fprintf(w, "    From: %s\n", d.Email.From)
		fmt.Fprintf(w, "    策略: %s, 结论: %s (%s", d.Strategy, d.Verdict.Decision, d.Verdict.Stage)
		if d.Verdict.Matched != "" {
			fmt.Fprintf(w, ", 命中 %q", d.Verdict.Matched)
		}
		fmt.Fprintln(w, ")")
		if a := d.Application; a != nil {
			fmt.Fprintf(w, "    公司: %s, 职位: %s, 编号: %s, 日期: %s\n",
				a.Company, a.RoleTitle, a.JobID, a.DateApplied.Format(types.DateLayout))
		}
	}
}
