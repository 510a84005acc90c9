// Package query 生成邮件搜索策略。
//
// 每个策略互相独立，结果允许重叠，由账本按消息标识去重。
package query

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Strategy 一条搜索策略。各字段组之间为 AND，组内为 OR
type Strategy struct {
	Name       string    `json:"name"`
	Since      time.Time `json:"since"`
	Phrases    []string  `json:"phrases,omitempty"`     // 正文或主题中的完整短语
	FromAny    []string  `json:"from_any,omitempty"`    // 发件人包含
	SubjectAny []string  `json:"subject_any,omitempty"` // 主题包含
	TextAny    []string  `json:"text_any,omitempty"`    // 任意位置包含
}

// String 以 Gmail 搜索语法输出策略
func (s Strategy) String() string {
	var parts []string
	if !s.Since.IsZero() {
		parts = append(parts, "after:"+s.Since.Format("2006/01/02"))
	}
	if len(s.Phrases) > 0 {
		quoted := make([]string, len(s.Phrases))
		for i, p := range s.Phrases {
			quoted[i] = `"` + strings.ReplaceAll(p, `"`, "") + `"`
		}
		parts = append(parts, group(quoted))
	}
	if len(s.FromAny) > 0 {
		from := make([]string, len(s.FromAny))
		for i, f := range s.FromAny {
			from[i] = "from:" + f
		}
		parts = append(parts, group(from))
	}
	if len(s.SubjectAny) > 0 {
		parts = append(parts, "subject:"+group(s.SubjectAny))
	}
	if len(s.TextAny) > 0 {
		parts = append(parts, group(s.TextAny))
	}
	return strings.Join(parts, " ")
}

func group(terms []string) string {
	return "(" + strings.Join(terms, " OR ") + ")"
}

// Options 生成器配置，构造后不再修改
type Options struct {
	ConfirmationKeywords []string
	PhraseGroupSize      int
	StrategyCount        int       // 0 表示不限
	Since                time.Time // 优先于 LookbackDays
	LookbackDays         int
}

var (
	senderPrefixes = []string{"noreply", "no-reply", "careers", "recruiting", "talent", "jobs"}
	applyTerms     = []string{"application", "applied", "submit"}
	atsPlatforms   = []string{"greenhouse", "workday", "lever", "smartrecruiters", "icims", "successfactors", "ashby", "bamboohr", "jobvite"}
	subjectTerms   = []string{"application", "applied", "submission"}
	ackTerms       = []string{"received", "submitted", "confirmation", "thank"}
)

type Generator struct {
	opts Options
}

func NewGenerator(opts Options) *Generator {
	if opts.PhraseGroupSize <= 0 {
		opts.PhraseGroupSize = 5
	}
	opts.ConfirmationKeywords = slices.Clone(opts.ConfirmationKeywords)
	return &Generator{opts: opts}
}

// Generate 按固定顺序返回策略：短语组、发件人、ATS 平台、主题
func (g *Generator) Generate(now time.Time) []Strategy {
	since := g.opts.Since
	if since.IsZero() && g.opts.LookbackDays > 0 {
		y, m, d := now.AddDate(0, 0, -g.opts.LookbackDays).Date()
		since = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}

	var out []Strategy
	kws := g.opts.ConfirmationKeywords
	for i := 0; i < len(kws); i += g.opts.PhraseGroupSize {
		end := i + g.opts.PhraseGroupSize
		if end > len(kws) {
			end = len(kws)
		}
		out = append(out, Strategy{
			Name:    "phrases-" + strconv.Itoa(len(out)+1),
			Since:   since,
			Phrases: slices.Clone(kws[i:end]),
		})
	}
	out = append(out,
		Strategy{Name: "senders", Since: since, FromAny: slices.Clone(senderPrefixes), TextAny: slices.Clone(applyTerms)},
		Strategy{Name: "ats", Since: since, FromAny: slices.Clone(atsPlatforms)},
		Strategy{Name: "subject", Since: since, SubjectAny: slices.Clone(subjectTerms), TextAny: slices.Clone(ackTerms)},
	)

	if n := g.opts.StrategyCount; n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
