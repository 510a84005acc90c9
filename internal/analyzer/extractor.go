package analyzer

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/YKarmar/appledger/internal/types"
)

const (
	companyName = `([A-Za-z0-9][A-Za-z0-9 .,&'+/-]*?)`
	companyEnd  = `(?:'s\b|\s+[-–—|:]\s|\s*[(\[!?:|–—]|\s+for\s|\s+-\s|,\s|\.\s|\.?$)`
	roleName    = `([A-Za-z0-9][A-Za-z0-9 &/+#.,'_-]*?)`
	roleEnd     = `(?:\s+(?:position|role)\b|\s+at\s|\s+with\s|\s*[(\[|!?–—]|\s+-\s|,\s|\.\s|\.?$)`
)

var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)\bthanks?(?:\s+you)?\s+for\s+(?:your\s+)?(?:applying|application|interest)\s+(?:to|at|with|in)\s+(?:the\s+)?` + companyName + companyEnd),
	regexp.MustCompile(`(?im)\byour\s+application\s+(?:to|at|with)\s+` + companyName + companyEnd),
	regexp.MustCompile(`(?im)\bapplication(?:\s+(?:received|submitted))?\s+(?:to|at|with|by)\s+` + companyName + companyEnd),
	regexp.MustCompile(`(?im)\b(?:position|role|job|opening)\s+(?:at|with)\s+` + companyName + companyEnd),
	regexp.MustCompile(`(?im)\bapplying\s+(?:to|at|with)\s+` + companyName + companyEnd),
	// "Application received: Software Engineer at Stripe"
	regexp.MustCompile(`(?im)\bapplication\b[^:\n]*:\s*[^\n]*?\s+at\s+` + companyName + companyEnd),
}

var rolePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)\bfor\s+the\s+` + roleName + `\s+(?:position|role|opening|job)\b`),
	regexp.MustCompile(`(?im)\bapplied\s+(?:for|to)\s+(?:the\s+)?` + roleName + `\s+(?:position|role)\b`),
	regexp.MustCompile(`(?im)\bapplication\s+for\s+(?:the\s+)?(?:position\s+of\s+)?` + roleName + roleEnd),
	regexp.MustCompile(`(?im)\b(?:position|role|job\s*title)\s*:\s*` + roleName + `(?:\s*[(\[|]|,\s|\.\s|\.?$)`),
}

// 主题中分隔符后的片段，例如 "Acme — Backend Engineer (Job ID: 1)"
var subjectSegment = regexp.MustCompile(`\s[-–—|]\s+` + roleName + `(?:\s*[(\[]|\s+[-–—|]\s|$)`)

// 冒号后的片段，例如 "Application received: Software Engineer Intern at Stripe"
var subjectLabel = regexp.MustCompile(`(?i)\bapplication\b[^:]*:\s+` + roleName + roleEnd)

// 以职位编号标签开头的片段不是职位名称
var jobIDLabel = regexp.MustCompile(`(?i)^(?:#|job[\s-]*(?:id|#|number|no\b)|requisition\b|req\b|posting[\s-]*id\b)`)

var jobIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:job[\s-]*(?:id|#|number|no\.?)|requisition(?:[\s-]*(?:id|number|#|no\.?))?|req(?:\.|[\s-]*(?:id|#|no\.?))|posting[\s-]*id)\s*[:#]?\s*([A-Za-z0-9_/-]*\d[A-Za-z0-9_/-]*)`),
	regexp.MustCompile(`\b([A-Z]{1,4}-\d{3,8})\b`),
}

// 只在主题中使用，正文里的长数字多半是电话或邮编
var longNumericID = regexp.MustCompile(`\b(\d{6,})\b`)

var senderNoise = regexp.MustCompile(`(?i)\b(careers|career|recruiting|recruitment|talent acquisition|talent|hiring|team|jobs|noreply|no-reply|do not reply|via|workday|greenhouse|lever|smartrecruiters|icims|successfactors|bamboohr|ashby|jobvite)\b`)

// 通用邮箱服务，不代表公司
var genericMailDomains = []string{
	"gmail.com", "googlemail.com", "outlook.com", "hotmail.com", "live.com", "msn.com",
	"yahoo.com", "icloud.com", "me.com", "aol.com", "proton.me", "protonmail.com",
	"gmx.com", "gmx.net", "mail.com", "zoho.com", "qq.com", "163.com", "126.com",
}

// 招聘平台，发件域名不代表招聘公司
var atsDomains = []string{
	"greenhouse.io", "greenhouse-mail.io", "myworkday.com", "myworkdayjobs.com", "workday.com",
	"lever.co", "smartrecruiters.com", "icims.com", "successfactors.com", "successfactors.eu",
	"ashbyhq.com", "bamboohr.com", "jobvite.com", "taleo.net", "oraclecloud.com", "workable.com",
	"workablemail.com", "recruitee.com", "breezy.hr", "applytojob.com", "jazzhr.com",
	"teamtailor.com", "personio.de", "rippling.com", "linkedin.com", "indeed.com",
	"indeedemail.com", "glassdoor.com", "ziprecruiter.com", "joinhandshake.com", "wellfound.com",
	"hire.lever.co", "paylocity.com", "ultipro.com", "adp.com", "dayforcehcm.com",
}

// 二级公共后缀
var secondLevelSuffixes = map[string]bool{
	"co.uk": true, "org.uk": true, "ac.uk": true, "com.au": true, "co.jp": true, "com.br": true,
	"co.in": true, "com.cn": true, "co.nz": true, "com.sg": true, "com.hk": true, "co.za": true,
}

// 字段提取器
type Extractor struct {
	loc *time.Location
	now func() time.Time
}

// 创建字段提取器。loc 决定申请日期所在的时区
func NewExtractor(loc *time.Location, now func() time.Time) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Extractor{loc: loc, now: now}
}

// Extract 从已确认的邮件中提取申请记录，缺失字段降级为空值或 Unknown
func (e *Extractor) Extract(email types.Email) types.Application {
	company := ExtractCompany(email.From, email.Subject)
	return types.Application{
		Company:     company,
		RoleTitle:   ExtractRole(email.Subject, email.BodyText, company),
		JobID:       ExtractJobID(email.Subject, email.BodyText),
		DateApplied: e.dateApplied(email.Date),
		MessageID:   email.Key(),
		From:        email.From,
		Subject:     email.Subject,
		ThreadURL:   email.ThreadURL,
	}
}

func (e *Extractor) dateApplied(ts time.Time) time.Time {
	if ts.IsZero() {
		ts = e.now()
	}
	y, m, d := ts.In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ExtractCompany 顺序：发件域名、主题模式、发件人显示名
func ExtractCompany(from, subject string) string {
	name, addr := parseFrom(from)
	if c := companyFromDomain(addr); c != "" {
		return c
	}
	if c := firstMatch(companyPatterns, subject, 60); c != "" {
		return c
	}
	if c := companyFromDisplayName(name); c != "" {
		return c
	}
	return types.UnknownCompany
}

// ExtractRole 先主题后正文，最后尝试主题中分隔符或冒号后的片段
func ExtractRole(subject, body, company string) string {
	for _, text := range []string{subject, body} {
		for _, re := range rolePatterns {
			if r := roleFrom(re, text, company); r != "" {
				return r
			}
		}
	}
	for _, re := range []*regexp.Regexp{subjectSegment, subjectLabel} {
		if r := roleFrom(re, subject, company); r != "" {
			return r
		}
	}
	return ""
}

func roleFrom(re *regexp.Regexp, text, company string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	r := cleanField(m[1], 80)
	if r == "" || strings.EqualFold(r, company) || jobIDLabel.MatchString(r) {
		return ""
	}
	return r
}

// ExtractJobID 返回职位编号，找不到时为空
func ExtractJobID(subject, body string) string {
	for _, text := range []string{subject, body} {
		for _, re := range jobIDPatterns {
			if m := re.FindStringSubmatch(text); m != nil {
				return strings.Trim(m[1], "-_/")
			}
		}
	}
	if m := longNumericID.FindStringSubmatch(subject); m != nil {
		return m[1]
	}
	return ""
}

func firstMatch(patterns []*regexp.Regexp, text string, maxLen int) string {
	if text == "" {
		return ""
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := cleanField(m[1], maxLen); v != "" {
				return v
			}
		}
	}
	return ""
}

func parseFrom(from string) (name, addr string) {
	if a, err := mail.ParseAddress(from); err == nil {
		return cleanText(a.Name), strings.ToLower(a.Address)
	}
	if i := strings.LastIndex(from, "<"); i >= 0 {
		addr = strings.Trim(from[i:], "<> ")
		name = strings.Trim(from[:i], `" `)
		return cleanText(name), strings.ToLower(addr)
	}
	if strings.Contains(from, "@") {
		return "", strings.ToLower(strings.TrimSpace(from))
	}
	return cleanText(from), ""
}

func companyFromDomain(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	domain := strings.Trim(addr[at+1:], ". ")
	if domain == "" || hasDomainSuffix(domain, genericMailDomains) || hasDomainSuffix(domain, atsDomains) {
		return ""
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return ""
	}
	idx := len(labels) - 2
	if len(labels) >= 3 && secondLevelSuffixes[strings.Join(labels[len(labels)-2:], ".")] {
		idx = len(labels) - 3
	}
	label := labels[idx]
	if label == "" {
		return ""
	}

	words := strings.FieldsFunc(label, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func hasDomainSuffix(domain string, list []string) bool {
	for _, d := range list {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func companyFromDisplayName(name string) string {
	if name == "" || strings.Contains(name, "@") {
		return ""
	}
	return cleanField(senderNoise.ReplaceAllString(name, " "), 60)
}

// cleanField 压缩空白、去除首尾标点，超长视为误匹配
func cleanField(s string, maxLen int) string {
	s = strings.Trim(cleanText(s), ` .,;:-–—|"'`)
	if len(s) > maxLen {
		return ""
	}
	return s
}
