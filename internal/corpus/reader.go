// Package corpus reads raw knowledge-base exports from a directory.
//
// CSV exports are routed by filename: names containing "jira" parse as
// tickets, names containing "confluence" as wiki pages, anything else as
// generic tabular rows. Plain .txt files index as single text artifacts.
// Unreadable files and malformed rows are skipped with a warning; only a
// missing corpus directory aborts the load.
package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/normalize"
)

// Stats counts what one load produced and what it had to skip.
type Stats struct {
	Files          int
	TextArtifacts  int
	Tickets        int
	WikiPages      int
	TabularRows    int
	SkippedFiles   int
	SkippedRecords int
}

// Reader loads every supported file in a corpus directory.
type Reader struct {
	dir    string
	logger *zap.Logger
}

// NewReader creates a corpus reader over dir.
func NewReader(dir string, logger *zap.Logger) *Reader {
	return &Reader{dir: dir, logger: logger}
}

// Load reads the whole corpus into normalized documents. Text artifacts come
// first, then tabular exports; os.ReadDir sorts entries by name, so rebuild
// order is deterministic for an unchanged corpus.
func (r *Reader) Load(ctx context.Context) ([]domain.Document, Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, stats, fmt.Errorf("%w: %s", domain.ErrCorpusNotFound, r.dir)
		}
		return nil, stats, fmt.Errorf("read corpus dir: %w", err)
	}

	var documents []domain.Document

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		stats.Files++
		doc, ok, err := r.readTextArtifact(e.Name())
		if err != nil {
			r.logger.Warn("Skipping unreadable text file",
				zap.String("file", e.Name()), zap.Error(err))
			stats.SkippedFiles++
			continue
		}
		if !ok {
			r.logger.Warn("Dropping empty text file", zap.String("file", e.Name()))
			stats.SkippedRecords++
			continue
		}
		documents = append(documents, doc)
		stats.TextArtifacts++
	}

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		stats.Files++
		var (
			docs    []domain.Document
			skipped int
			readErr error
		)
		switch name := strings.ToLower(e.Name()); {
		case strings.Contains(name, "jira"):
			docs, skipped, readErr = r.readTickets(e.Name())
			stats.Tickets += len(docs)
		case strings.Contains(name, "confluence"):
			docs, skipped, readErr = r.readWikiPages(e.Name())
			stats.WikiPages += len(docs)
		default:
			docs, skipped, readErr = r.readTabular(e.Name())
			stats.TabularRows += len(docs)
		}
		if readErr != nil {
			r.logger.Warn("Skipping unreadable export",
				zap.String("file", e.Name()), zap.Error(readErr))
			stats.SkippedFiles++
			continue
		}
		documents = append(documents, docs...)
		stats.SkippedRecords += skipped
	}

	r.logger.Info("Corpus loaded",
		zap.Int("files", stats.Files),
		zap.Int("tickets", stats.Tickets),
		zap.Int("wiki_pages", stats.WikiPages),
		zap.Int("text_artifacts", stats.TextArtifacts),
		zap.Int("tabular_rows", stats.TabularRows),
		zap.Int("skipped_files", stats.SkippedFiles),
		zap.Int("skipped_records", stats.SkippedRecords),
	)
	return documents, stats, nil
}

func (r *Reader) readTextArtifact(name string) (domain.Document, bool, error) {
	content, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return domain.Document{}, false, err
	}

	doc, ok := normalize.TextArtifact{Filename: name, Content: string(content)}.Document()
	return doc, ok, nil
}

func (r *Reader) readTickets(name string) ([]domain.Document, int, error) {
	rows, columns, skipped, err := r.readRows(name)
	if err != nil {
		return nil, 0, err
	}
	col := columnIndex(columns)

	var docs []domain.Document
	for _, row := range rows {
		t := normalize.Ticket{
			Key:         field(col, row, "key"),
			Summary:     field(col, row, "summary"),
			Description: field(col, row, "description"),
			Status:      field(col, row, "status"),
			Priority:    field(col, row, "priority"),
			IssueType:   field(col, row, "issue_type"),
			Assignee:    field(col, row, "assignee"),
			Reporter:    field(col, row, "reporter"),
			Created:     field(col, row, "created"),
			Updated:     field(col, row, "updated"),
			Labels:      field(col, row, "labels"),
			Components:  field(col, row, "components"),
			URL:         field(col, row, "url"),
		}
		if t.Key == "" {
			t.Key = field(col, row, "id")
		}

		doc, ok := t.Document()
		if !ok {
			skipped++
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped, nil
}

func (r *Reader) readWikiPages(name string) ([]domain.Document, int, error) {
	rows, columns, skipped, err := r.readRows(name)
	if err != nil {
		return nil, 0, err
	}
	col := columnIndex(columns)

	var docs []domain.Document
	for _, row := range rows {
		p := normalize.WikiPage{
			ID:        field(col, row, "id"),
			Title:     field(col, row, "title"),
			Content:   field(col, row, "content"),
			SpaceKey:  field(col, row, "space_key"),
			SpaceName: field(col, row, "space_name"),
			Version:   field(col, row, "version"),
			Created:   field(col, row, "created"),
			URL:       field(col, row, "url"),
		}

		doc, ok := p.Document()
		if !ok {
			skipped++
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped, nil
}

func (r *Reader) readTabular(name string) ([]domain.Document, int, error) {
	rows, columns, skipped, err := r.readRows(name)
	if err != nil {
		return nil, 0, err
	}

	var docs []domain.Document
	for _, row := range rows {
		tr := normalize.TabularRow{
			Filename: name,
			Columns:  columns,
			Values:   row,
			Ordinal:  len(docs),
		}

		doc, ok := tr.Document()
		if !ok {
			skipped++
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped, nil
}

// readRows parses one CSV file into its header and data rows. Malformed rows
// are skipped and counted rather than failing the file.
func (r *Reader) readRows(name string) ([][]string, []string, int, error) {
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		return nil, nil, 0, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, c := range header {
		columns[i] = strings.TrimSpace(c)
	}

	var (
		rows    [][]string
		skipped int
	)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.logger.Warn("Skipping malformed row",
				zap.String("file", name), zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, columns, skipped, nil
}

func columnIndex(columns []string) map[string]int {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return idx
}

func field(col map[string]int, row []string, key string) string {
	i, ok := col[key]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
