package exporter

import (
	"fmt"
	"io"
	"sort"

	"github.com/YKarmar/appledger/internal/types"
)

// 一次运行的统计
type RunStats struct {
	Strategies  int
	Candidates  int
	Duplicates  int
	BodyFetches int
	Confirmed   int
	Rejected    int
	Added       int
	LedgerSize  int
}

// 打印运行统计和公司汇总（按投递次数降序，最多 limit 家）
func PrintRunReport(w io.Writer, stats RunStats, added []types.Application, summary []types.CompanySummary, limit int) {
	fmt.Fprintf(w, "\n=== 求职邮件统计 ===\n")
	fmt.Fprintf(w, "搜索策略: %d\n", stats.Strategies)
	fmt.Fprintf(w, "候选邮件: %d (重复 %d, 获取正文 %d)\n", stats.Candidates, stats.Duplicates, stats.BodyFetches)
	fmt.Fprintf(w, "确认邮件: %d, 排除: %d\n", stats.Confirmed, stats.Rejected)
	fmt.Fprintf(w, "新增记录: %d, 账本总数: %d\n", stats.Added, stats.LedgerSize)

	if len(added) > 0 {
		fmt.Fprintln(w, "\n本次新增:")
		for _, app := range added {
			role := app.RoleTitle
			if role == "" {
				role = "-"
			}
			fmt.Fprintf(w, "• %s - %s [%s]\n", app.Company, role, app.DateApplied.Format("01-02"))
		}
	}

	if len(summary) == 0 {
		return
	}

	companies := append([]types.CompanySummary(nil), summary...)
	sort.SliceStable(companies, func(i, j int) bool {
		return companies[i].ApplicationCount > companies[j].ApplicationCount
	})
	if limit > 0 && len(companies) > limit {
		companies = companies[:limit]
	}

	fmt.Fprintf(w, "\n涉及公司数量: %d 家\n", len(summary))
	fmt.Fprintln(w, "投递最多的公司:")
	for _, c := range companies {
		fmt.Fprintf(w, "  %s: %d 次 (%d 个职位)\n", c.Company, c.ApplicationCount, c.DistinctRoleCount)
	}
}
