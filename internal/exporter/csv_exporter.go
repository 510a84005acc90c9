package exporter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/YKarmar/appledger/internal/types"
)

const (
	applicationsFile = "applications.csv"
	processedFile    = "processed_message_ids.csv"
	summaryFile      = "company_summary.csv"
)

// CSV目录账本，每个区域一个文件
type CSVExporter struct {
	dir string
}

// 创建CSV账本
func NewCSVExporter(dir string) *CSVExporter {
	return &CSVExporter{dir: dir}
}

func (ce *CSVExporter) path(name string) string {
	return filepath.Join(ce.dir, name)
}

// Ensure 创建目录和缺失的文件（含表头）
func (ce *CSVExporter) Ensure(_ context.Context) error {
	if err := os.MkdirAll(ce.dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	for name, headers := range map[string][]string{
		applicationsFile: types.ApplicationHeaders,
		processedFile:    types.ProcessedHeaders,
		summaryFile:      types.SummaryHeaders,
	} {
		if _, err := os.Stat(ce.path(name)); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", name, err)
		}
		if err := writeFile(ce.path(name), [][]string{headers}); err != nil {
			return err
		}
	}
	return nil
}

// Exists 账本的记录与标识文件是否都已存在
func (ce *CSVExporter) Exists(_ context.Context) (bool, error) {
	for _, name := range []string{applicationsFile, processedFile} {
		_, err := os.Stat(ce.path(name))
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", name, err)
		}
	}
	return true, nil
}

func (ce *CSVExporter) LoadApplications(_ context.Context) ([]types.Application, error) {
	rows, err := readRows(ce.path(applicationsFile))
	if err != nil {
		return nil, err
	}
	apps := make([]types.Application, 0, len(rows))
	for _, row := range rows {
		app := types.ApplicationFromRow(row)
		if app.MessageID == "" {
			continue
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func (ce *CSVExporter) LoadProcessedIDs(_ context.Context) ([]string, error) {
	rows, err := readRows(ce.path(processedFile))
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

// Append 先写记录文件再写标识文件
func (ce *CSVExporter) Append(_ context.Context, apps []types.Application) error {
	if len(apps) == 0 {
		return nil
	}
	records := make([][]string, len(apps))
	ids := make([][]string, len(apps))
	for i, app := range apps {
		records[i] = app.Row()
		ids[i] = []string{app.MessageID}
	}
	if err := appendFile(ce.path(applicationsFile), records); err != nil {
		return err
	}
	return appendFile(ce.path(processedFile), ids)
}

// ReplaceSummary 写临时文件后替换，避免读到半个文件
func (ce *CSVExporter) ReplaceSummary(_ context.Context, rows []types.CompanySummary) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, slices.Clone(types.SummaryHeaders))
	for _, r := range rows {
		records = append(records, r.Row())
	}
	tmp := ce.path(summaryFile + ".tmp")
	if err := writeFile(tmp, records); err != nil {
		return err
	}
	if err := os.Rename(tmp, ce.path(summaryFile)); err != nil {
		return fmt.Errorf("replace summary: %w", err)
	}
	return nil
}

func (ce *CSVExporter) Close() error { return nil }

// readRows 读取除表头外的所有行
func readRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var rows [][]string
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if header {
			header = false
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func writeFile(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("write CSV records: %w", err)
	}
	return file.Sync()
}

func appendFile(path string, records [][]string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("write CSV record: %w", err)
	}
	return file.Sync()
}
