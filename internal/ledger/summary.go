package ledger

import "github.com/YKarmar/appledger/internal/types"

type roleKey struct {
	role  string
	jobID string
}

// Summarize 按公司名（区分大小写）分组，公司按在账本中首次出现的顺序输出
func Summarize(apps []types.Application) []types.CompanySummary {
	index := make(map[string]int)
	roles := make(map[string]map[roleKey]struct{})
	var out []types.CompanySummary

	for _, a := range apps {
		i, ok := index[a.Company]
		if !ok {
			i = len(out)
			index[a.Company] = i
			out = append(out, types.CompanySummary{Company: a.Company})
			roles[a.Company] = make(map[roleKey]struct{})
		}
		out[i].ApplicationCount++
		roles[a.Company][roleKey{role: a.RoleTitle, jobID: a.JobID}] = struct{}{}
	}
	for i := range out {
		out[i].DistinctRoleCount = len(roles[out[i].Company])
	}
	return out
}
