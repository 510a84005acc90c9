package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/YKarmar/appledger/internal/types"
)

// 求职邮件分析器：分类后对确认邮件提取字段
type JobAnalyzer struct {
	classifier *Classifier
	extractor  *Extractor
}

// 创建求职分析器
func NewJobAnalyzer(classifier *Classifier, extractor *Extractor) *JobAnalyzer {
	return &JobAnalyzer{classifier: classifier, extractor: extractor}
}

// Analyze 返回分类结论；仅在确认时返回申请记录
func (ja *JobAnalyzer) Analyze(ctx context.Context, email *types.Email, fetch BodyFetcher) (*types.Application, Verdict, error) {
	verdict, err := ja.classifier.Classify(ctx, email, fetch)
	if err != nil {
		return nil, verdict, err
	}
	if !verdict.Confirmed() {
		return nil, verdict, nil
	}
	app := ja.extractor.Extract(*email)
	return &app, verdict, nil
}

// 辅助函数

var spaces = regexp.MustCompile(`\s+`)

// 截断文本到指定长度
func TruncateText(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen]) + "..."
}

// 清理文本
func cleanText(text string) string {
	// 移除多余的空白字符
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}
