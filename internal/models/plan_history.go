// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hui-shao/byre/internal/database"
	"github.com/hui-shao/byre/internal/reconcile"
)

var ErrPlanRunNotFound = errors.New("plan run not found")

// PlanRun is one persisted reconciliation run: its full action list is
// serialized before anything touches the client, so the audit trail
// survives a partial application.
type PlanRun struct {
	ID        int64     `json:"id"`
	Site      string    `json:"site"`
	CreatedAt time.Time `json:"createdAt"`
	Applied   bool      `json:"applied"`
	Added     int       `json:"added"`
	Renamed   int       `json:"renamed"`
	Removed   int       `json:"removed"`
	Kept      int       `json:"kept"`

	Actions []reconcile.Action `json:"actions"`
}

type PlanHistoryStore struct {
	db database.Querier
}

func NewPlanHistoryStore(db database.Querier) *PlanHistoryStore {
	return &PlanHistoryStore{db: db}
}

// Record persists a freshly computed plan and returns its run id.
func (s *PlanHistoryStore) Record(ctx context.Context, site string, plan []reconcile.Action) (int64, error) {
	actions, err := json.Marshal(plan)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize plan: %w", err)
	}

	var added, renamed, removed, kept int
	for _, action := range plan {
		switch action.Kind {
		case reconcile.ActionAdd:
			added++
		case reconcile.ActionRename:
			renamed++
		case reconcile.ActionRemove:
			removed++
		case reconcile.ActionKeep:
			kept++
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_runs (site, added, renamed, removed, kept, actions)
		VALUES (?, ?, ?, ?, ?, ?)`,
		site, added, renamed, removed, kept, string(actions))
	if err != nil {
		return 0, fmt.Errorf("failed to record plan run: %w", err)
	}
	return res.LastInsertId()
}

// MarkApplied flags a run after the client accepted it.
func (s *PlanHistoryStore) MarkApplied(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE plan_runs SET applied = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPlanRunNotFound
	}
	return nil
}

func (s *PlanHistoryStore) Get(ctx context.Context, id int64) (*PlanRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, site, created_at, applied, added, renamed, removed, kept, actions
		FROM plan_runs WHERE id = ?`, id)
	run, err := scanPlanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanRunNotFound
	}
	return run, err
}

// List returns the most recent runs, newest first. An empty site
// matches all sites.
func (s *PlanHistoryStore) List(ctx context.Context, site string, limit int) ([]*PlanRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, site, created_at, applied, added, renamed, removed, kept, actions
		FROM plan_runs`
	args := []any{}
	if site != "" {
		query += " WHERE site = ?"
		args = append(args, site)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*PlanRun
	for rows.Next() {
		run, err := scanPlanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanPlanRun(scan func(dest ...any) error) (*PlanRun, error) {
	var run PlanRun
	var actions string
	if err := scan(&run.ID, &run.Site, &run.CreatedAt, &run.Applied,
		&run.Added, &run.Renamed, &run.Removed, &run.Kept, &actions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actions), &run.Actions); err != nil {
		return nil, fmt.Errorf("corrupt action list for run %d: %w", run.ID, err)
	}
	return &run, nil
}
