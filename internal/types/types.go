package types

import (
	"strconv"
	"time"
)

// 分类结果
type Decision string

const (
	DecisionConfirmed    Decision = "CONFIRMED"    // 申请确认邮件
	DecisionRejected     Decision = "REJECTED"     // 非确认邮件（测评/面试/拒信/无关）
	DecisionInconclusive Decision = "INCONCLUSIVE" // 仅主题阶段使用，不会流出分类器
)

// 判定阶段
type Stage string

const (
	StageSubject Stage = "subject"
	StageBody    Stage = "body"
)

// 公司名无法解析时的占位值
const UnknownCompany = "Unknown"

// 日期在表格中的存储格式
const DateLayout = "2006-01-02"

// 候选邮件。BodyText 为空表示正文尚未获取
type Email struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
	Snippet   string    `json:"snippet,omitempty"`
	BodyText  string    `json:"body_text,omitempty"`
	MessageID string    `json:"message_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	ThreadURL string    `json:"thread_url,omitempty"`
	Folder    string    `json:"folder,omitempty"`
}

// Key 返回去重用的消息标识
func (e Email) Key() string {
	if e.MessageID != "" {
		return e.MessageID
	}
	return e.ID
}

// 账本中的一条申请记录
type Application struct {
	Company     string    `json:"company"`
	RoleTitle   string    `json:"role_title"`
	JobID       string    `json:"job_id"`
	DateApplied time.Time `json:"date_applied"`
	MessageID   string    `json:"message_id"`
	From        string    `json:"from"`
	Subject     string    `json:"subject"`
	ThreadURL   string    `json:"thread_url"`
}

// 公司汇总行
type CompanySummary struct {
	Company           string `json:"company"`
	ApplicationCount  int    `json:"application_count"`
	DistinctRoleCount int    `json:"distinct_role_count"`
}

// Row 按表格列顺序输出记录
func (a Application) Row() []string {
	return []string{
		a.Company,
		a.RoleTitle,
		a.JobID,
		a.DateApplied.Format(DateLayout),
		a.ThreadURL,
		a.From,
		a.Subject,
		a.MessageID,
	}
}

// 表格列名
var ApplicationHeaders = []string{
	"Company", "Role Title", "Job ID", "Date Applied", "Thread URL", "From", "Subject", "Message ID",
}

var ProcessedHeaders = []string{"Message ID"}

var SummaryHeaders = []string{"Company", "Applications", "Distinct Roles"}

// ApplicationFromRow 解析表格行，缺失的尾列按空字符串处理
func ApplicationFromRow(row []string) Application {
	col := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	app := Application{
		Company:   col(0),
		RoleTitle: col(1),
		JobID:     col(2),
		ThreadURL: col(4),
		From:      col(5),
		Subject:   col(6),
		MessageID: col(7),
	}
	if t, err := time.Parse(DateLayout, col(3)); err == nil {
		app.DateApplied = t
	}
	return app
}

// Row 按表格列顺序输出汇总行
func (s CompanySummary) Row() []string {
	return []string{s.Company, strconv.Itoa(s.ApplicationCount), strconv.Itoa(s.DistinctRoleCount)}
}
