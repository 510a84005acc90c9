package imapsource

import (
	"net/textproto"

	"github.com/emersion/go-imap"

	"github.com/YKarmar/appledger/internal/query"
)

// buildCriteria 将策略转换为 IMAP SEARCH 条件。顶层条件之间为 AND，
// 每个字段组转换为一棵 OR 树
func buildCriteria(s query.Strategy) *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	c.Since = s.Since

	var groups [][]*imap.SearchCriteria
	groups = append(groups, leaves(s.Phrases, func(v string) *imap.SearchCriteria {
		return &imap.SearchCriteria{Text: []string{v}}
	}))
	groups = append(groups, leaves(s.FromAny, func(v string) *imap.SearchCriteria {
		return &imap.SearchCriteria{Header: textproto.MIMEHeader{"From": {v}}}
	}))
	groups = append(groups, leaves(s.SubjectAny, func(v string) *imap.SearchCriteria {
		return &imap.SearchCriteria{Header: textproto.MIMEHeader{"Subject": {v}}}
	}))
	groups = append(groups, leaves(s.TextAny, func(v string) *imap.SearchCriteria {
		return &imap.SearchCriteria{Text: []string{v}}
	}))

	for _, g := range groups {
		switch len(g) {
		case 0:
		case 1:
			merge(c, g[0])
		default:
			c.Or = append(c.Or, orTree(g).Or[0])
		}
	}
	return c
}

func leaves(values []string, leaf func(string) *imap.SearchCriteria) []*imap.SearchCriteria {
	out := make([]*imap.SearchCriteria, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, leaf(v))
		}
	}
	return out
}

// orTree 要求至少两个叶子
func orTree(ls []*imap.SearchCriteria) *imap.SearchCriteria {
	right := ls[1]
	if len(ls) > 2 {
		right = orTree(ls[1:])
	}
	return &imap.SearchCriteria{Or: [][2]*imap.SearchCriteria{{ls[0], right}}}
}

func merge(dst, src *imap.SearchCriteria) {
	dst.Text = append(dst.Text, src.Text...)
	for k, vs := range src.Header {
		for _, v := range vs {
			dst.Header.Add(k, v)
		}
	}
}
