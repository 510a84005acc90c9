// Package sheets 将账本保存在一个 Google 表格中，每个区域对应一个工作表。
package sheets

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/YKarmar/appledger/internal/types"
)

// 工作表名称
type Tables struct {
	Applications string
	Processed    string
	Summary      string
}

type Store struct {
	srv     *sheets.Service
	sheetID string
	tables  Tables
}

// New 使用已授权的 HTTP 客户端创建表格账本，opts 追加在客户端之后（如 option.WithEndpoint）
func New(ctx context.Context, httpClient *http.Client, sheetID string, tables Tables, opts ...option.ClientOption) (*Store, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Store{srv: srv, sheetID: sheetID, tables: tables}, nil
}

func (s *Store) titles(ctx context.Context) (map[string]bool, error) {
	meta, err := s.srv.Spreadsheets.Get(s.sheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", s.sheetID, err)
	}
	existing := make(map[string]bool, len(meta.Sheets))
	for _, sh := range meta.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}
	return existing, nil
}

// Exists 记录表与标识表是否都已存在，只读
func (s *Store) Exists(ctx context.Context) (bool, error) {
	existing, err := s.titles(ctx)
	if err != nil {
		return false, err
	}
	return existing[s.tables.Applications] && existing[s.tables.Processed], nil
}

// Ensure 创建缺失的工作表，并在首行为空时写入表头
func (s *Store) Ensure(ctx context.Context) error {
	existing, err := s.titles(ctx)
	if err != nil {
		return err
	}

	regions := []struct {
		title   string
		headers []string
	}{
		{s.tables.Applications, types.ApplicationHeaders},
		{s.tables.Processed, types.ProcessedHeaders},
		{s.tables.Summary, types.SummaryHeaders},
	}

	var add []*sheets.Request
	for _, r := range regions {
		if !existing[r.title] {
			add = append(add, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: r.title}},
			})
		}
	}
	if len(add) > 0 {
		req := &sheets.BatchUpdateSpreadsheetRequest{Requests: add}
		if _, err := s.srv.Spreadsheets.BatchUpdate(s.sheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add sheets: %w", err)
		}
	}

	for _, r := range regions {
		head, err := s.srv.Spreadsheets.Values.Get(s.sheetID, a1(r.title, "1:1")).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("read %s headers: %w", r.title, err)
		}
		if len(head.Values) > 0 && len(head.Values[0]) > 0 {
			continue
		}
		vr := &sheets.ValueRange{Values: toValues([][]string{r.headers})}
		_, err = s.srv.Spreadsheets.Values.Update(s.sheetID, a1(r.title, "A1"), vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write %s headers: %w", r.title, err)
		}
	}
	return nil
}

func (s *Store) LoadApplications(ctx context.Context) ([]types.Application, error) {
	rows, err := s.read(ctx, s.tables.Applications, "A2:H")
	if err != nil {
		return nil, err
	}
	apps := make([]types.Application, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		apps = append(apps, types.ApplicationFromRow(row))
	}
	return apps, nil
}

func (s *Store) LoadProcessedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.read(ctx, s.tables.Processed, "A2:A")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 && row[0] != "" {
			ids = append(ids, row[0])
		}
	}
	return ids, nil
}

// Append 先追加记录再追加标识。第二步失败时记录仍可通过消息标识列恢复
func (s *Store) Append(ctx context.Context, apps []types.Application) error {
	if len(apps) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(apps))
	ids := make([][]string, 0, len(apps))
	for _, a := range apps {
		rows = append(rows, a.Row())
		ids = append(ids, []string{a.MessageID})
	}
	if err := s.append(ctx, s.tables.Applications, rows); err != nil {
		return err
	}
	return s.append(ctx, s.tables.Processed, ids)
}

func (s *Store) ReplaceSummary(ctx context.Context, rows []types.CompanySummary) error {
	_, err := s.srv.Spreadsheets.Values.Clear(s.sheetID, a1(s.tables.Summary, "A2:C"), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", s.tables.Summary, err)
	}
	if len(rows) == 0 {
		return nil
	}
	vr := &sheets.ValueRange{Values: summaryValues(rows)}
	_, err = s.srv.Spreadsheets.Values.Update(s.sheetID, a1(s.tables.Summary, "A2"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", s.tables.Summary, err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read(ctx context.Context, title, cells string) ([][]string, error) {
	vr, err := s.srv.Spreadsheets.Values.Get(s.sheetID, a1(title, cells)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", title, err)
	}
	return toStrings(vr.Values), nil
}

func (s *Store) append(ctx context.Context, title string, rows [][]string) error {
	vr := &sheets.ValueRange{Values: toValues(rows)}
	_, err := s.srv.Spreadsheets.Values.Append(s.sheetID, a1(title, "A:A"), vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", title, err)
	}
	return nil
}

// a1 生成带引号的 A1 区域，工作表名中的单引号需要转义
func a1(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

func toValues(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		out[i] = vals
	}
	return out
}

func toStrings(values [][]any) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		strs := make([]string, len(row))
		for j, v := range row {
			if s, ok := v.(string); ok {
				strs[j] = s
			} else if v != nil {
				strs[j] = fmt.Sprint(v)
			}
		}
		out[i] = strs
	}
	return out
}

func summaryValues(rows []types.CompanySummary) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{r.Company, r.ApplicationCount, r.DistinctRoleCount}
	}
	return out
}
