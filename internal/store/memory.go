package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cooling-towers/internal/georef"
	"cooling-towers/internal/tile"
)

// Memory：进程内的索引与结果表，语义与 PostgreSQL 实现一致；用于单格调试与测试
type Memory struct {
	mu      sync.Mutex
	index   map[tile.GridCell]bool
	results map[tile.GridCell][]ResultRow
	// AppendErr：非空时 Append 失败且不落任何行
	AppendErr error
	// MarkErr：非空时 MarkProcessed 失败
	MarkErr error
	marks   map[tile.GridCell]int
}

// ResultRow：结果表中的一行
type ResultRow struct {
	georef.LocatedDetection
	Cell tile.GridCell
	Provenance
}

func NewMemory(cells ...tile.GridCell) *Memory {
	m := &Memory{
		index:   make(map[tile.GridCell]bool, len(cells)),
		results: make(map[tile.GridCell][]ResultRow),
		marks:   make(map[tile.GridCell]int),
	}
	for _, c := range cells {
		m.index[c] = false
	}
	return m
}

func (m *Memory) Unprocessed(_ context.Context, skip, take int) ([]IndexRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []IndexRow
	for c, done := range m.index {
		if !done {
			rows = append(rows, IndexRow{Cell: c})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Cell, rows[j].Cell
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	if skip < 0 {
		skip = 0
	}
	if skip >= len(rows) {
		return nil, nil
	}
	rows = rows[skip:]
	if take >= 0 && take < len(rows) {
		rows = rows[:take]
	}
	return rows, nil
}

func (m *Memory) MarkProcessed(_ context.Context, cell tile.GridCell) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, m.MarkErr)
	}
	done, ok := m.index[cell]
	if !ok || done {
		return 0, nil
	}
	m.index[cell] = true
	m.marks[cell]++
	return 1, nil
}

func (m *Memory) Append(_ context.Context, prov Provenance, cell tile.GridCell, dets []georef.LocatedDetection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, m.AppendErr)
	}
	if len(dets) == 0 {
		return nil
	}
	rows := make([]ResultRow, len(dets))
	for i, d := range dets {
		rows[i] = ResultRow{LocatedDetection: d, Cell: cell, Provenance: prov}
	}
	m.results[cell] = rows
	return nil
}

// Processed：该格当前是否已标记
func (m *Memory) Processed(cell tile.GridCell) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index[cell]
}

// Marks：该格被翻转为已处理的次数
func (m *Memory) Marks(cell tile.GridCell) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[cell]
}

// Results：按 (row, col) 顺序返回全部结果行
func (m *Memory) Results() []ResultRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	cells := make([]tile.GridCell, 0, len(m.results))
	for c := range m.results {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	var out []ResultRow
	for _, c := range cells {
		out = append(out, m.results[c]...)
	}
	return out
}
