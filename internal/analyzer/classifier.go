package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/YKarmar/appledger/internal/types"
)

// 关键词配置。NewClassifier 会复制一份，之后不受调用方修改影响
type Keywords struct {
	Confirmation []string
	Exclusion    []string
}

// 按需获取正文
type BodyFetcher func(ctx context.Context, id string) (string, error)

// 分类结论，Matched 为命中的关键词
type Verdict struct {
	Decision types.Decision
	Stage    types.Stage
	Matched  string
}

func (v Verdict) Confirmed() bool {
	return v.Decision == types.DecisionConfirmed
}

// 两阶段分类器：先主题，主题无结论时再看正文
type Classifier struct {
	confirmation []string
	exclusion    []string
}

func NewClassifier(kw Keywords) *Classifier {
	return &Classifier{
		confirmation: lowerAll(kw.Confirmation),
		exclusion:    lowerAll(kw.Exclusion),
	}
}

// ClassifySubject 只看主题，可能返回 INCONCLUSIVE
func (c *Classifier) ClassifySubject(subject string) types.Decision {
	d, _ := c.match(subject)
	return d
}

// ClassifyBody 看正文，无结论按拒绝处理
func (c *Classifier) ClassifyBody(body string) types.Decision {
	d, _ := c.match(body)
	if d == types.DecisionInconclusive {
		return types.DecisionRejected
	}
	return d
}

// Classify 主题阶段无结论时才获取正文。获取到的正文写回 email.BodyText
func (c *Classifier) Classify(ctx context.Context, email *types.Email, fetch BodyFetcher) (Verdict, error) {
	if d, kw := c.match(email.Subject); d != types.DecisionInconclusive {
		return Verdict{Decision: d, Stage: types.StageSubject, Matched: kw}, nil
	}

	if email.BodyText == "" && fetch != nil {
		body, err := fetch(ctx, email.ID)
		if err != nil {
			return Verdict{}, fmt.Errorf("fetch body %s: %w", email.ID, err)
		}
		email.BodyText = body
	}

	d, kw := c.match(email.BodyText)
	if d == types.DecisionInconclusive {
		d = types.DecisionRejected
	}
	return Verdict{Decision: d, Stage: types.StageBody, Matched: kw}, nil
}

// match 排除词优先于确认词
func (c *Classifier) match(text string) (types.Decision, string) {
	text = normalize(text)
	if text == "" {
		return types.DecisionInconclusive, ""
	}
	for _, k := range c.exclusion {
		if strings.Contains(text, k) {
			return types.DecisionRejected, k
		}
	}
	for _, k := range c.confirmation {
		if strings.Contains(text, k) {
			return types.DecisionConfirmed, k
		}
	}
	return types.DecisionInconclusive, ""
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "’", "'") // 弯引号
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k = normalize(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
