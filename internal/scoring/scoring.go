// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scoring turns catalog records into admission and retention
// decisions. It sits downstream of extraction and feeds the planner's
// policy predicates.
package scoring

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"

	"github.com/hui-shao/byre/internal/domain"
	"github.com/hui-shao/byre/internal/nexus"
	"github.com/hui-shao/byre/internal/reconcile"
)

// Scorer ranks catalog records by expected ratio return and applies
// the configured admission and retention rules.
type Scorer struct {
	freeWeight           float64
	costRecoveryDays     float64
	removalExemptionDays float64
	maxSeeders           int

	admitProgram  *vm.Program
	retainProgram *vm.Program
}

func NewScorer(cfg domain.ScoringConfig) (*Scorer, error) {
	s := &Scorer{
		freeWeight:           cfg.FreeWeight,
		costRecoveryDays:     cfg.CostRecoveryDays,
		removalExemptionDays: cfg.RemovalExemptionDays,
		maxSeeders:           cfg.MaxSeeders,
	}
	if s.freeWeight <= 0 {
		s.freeWeight = 1
	}
	if s.costRecoveryDays <= 0 {
		s.costRecoveryDays = 7
	}
	if s.removalExemptionDays <= 0 {
		s.removalExemptionDays = 15
	}

	if cfg.AdmitExpr != "" {
		program, err := expr.Compile(cfg.AdmitExpr, expr.Env(recordEnv{}), expr.AsBool())
		if err != nil {
			return nil, errors.Wrap(err, "invalid admit expression")
		}
		s.admitProgram = program
	}
	if cfg.RetainExpr != "" {
		program, err := expr.Compile(cfg.RetainExpr, expr.Env(localEnv{}), expr.AsBool())
		if err != nil {
			return nil, errors.Wrap(err, "invalid retain expression")
		}
		s.retainProgram = program
	}
	return s, nil
}

// recordEnv is the expression environment for admission predicates.
type recordEnv struct {
	Title     string  `expr:"title"`
	Category  string  `expr:"category"`
	SizeBytes int64   `expr:"sizeBytes"`
	AgeDays   float64 `expr:"ageDays"`
	Seeders   int     `expr:"seeders"`
	Leechers  int     `expr:"leechers"`
	Free      bool    `expr:"free"`
	Score     float64 `expr:"score"`
}

// localEnv is the expression environment for retention predicates.
type localEnv struct {
	Name    string  `expr:"name"`
	Site    string  `expr:"site"`
	AgeDays float64 `expr:"ageDays"`
	Seeders int     `expr:"seeders"`
	Free    bool    `expr:"free"`
	Score   float64 `expr:"score"`
}

// Score estimates how much ratio a record is worth pursuing. Fresh,
// leecher-heavy, free torrents score highest; anything seeded to
// saturation or past its recovery window decays toward zero.
func (s *Scorer) Score(rec *nexus.TorrentRecord) float64 {
	if rec.Seeders == 0 {
		// Nobody to download from.
		return 0
	}
	if s.maxSeeders > 0 && rec.Seeders > s.maxSeeders {
		return 0
	}

	// Demand per seeder, damped by age: a torrent past its recovery
	// window is unlikely to repay its download cost.
	demand := float64(rec.Leechers) / float64(rec.Seeders)
	decay := 1.0
	if rec.AgeDays > s.costRecoveryDays {
		decay = s.costRecoveryDays / rec.AgeDays
	}

	score := demand * decay
	factor := rec.Promotions.DownloadFactor()
	if factor == 0 {
		score *= s.freeWeight
	} else {
		score /= factor
	}
	score *= rec.Promotions.UploadFactor()
	return score
}

// Admit is the planner's admission predicate.
func (s *Scorer) Admit(rec *nexus.TorrentRecord) bool {
	score := s.Score(rec)
	if s.admitProgram != nil {
		ok, err := runBool(s.admitProgram, recordEnv{
			Title:     rec.Title,
			Category:  rec.Category,
			SizeBytes: rec.SizeBytes,
			AgeDays:   rec.AgeDays,
			Seeders:   rec.Seeders,
			Leechers:  rec.Leechers,
			Free:      rec.Promotions.Has(nexus.PromotionFree),
			Score:     score,
		})
		if err != nil {
			// A predicate that cannot evaluate admits nothing.
			return false
		}
		return ok
	}
	return score > 0
}

// Retain is the planner's retention predicate. Torrents younger than the
// exemption window are always kept so fresh additions get a fair chance
// to seed before any ratio-based culling.
func (s *Scorer) Retain(local *reconcile.LocalTorrent) bool {
	rec := local.MatchedRemote
	if rec == nil {
		return true
	}
	if rec.AgeDays < s.removalExemptionDays {
		return true
	}
	if s.retainProgram == nil {
		return true
	}
	ok, err := runBool(s.retainProgram, localEnv{
		Name:    local.Name,
		Site:    local.Site,
		AgeDays: rec.AgeDays,
		Seeders: rec.Seeders,
		Free:    rec.Promotions.Has(nexus.PromotionFree),
		Score:   s.Score(rec),
	})
	if err != nil {
		// Err on the side of keeping data.
		return true
	}
	return ok
}

// Rank sorts records by descending score, dropping zero-scored ones.
func (s *Scorer) Rank(records []nexus.TorrentRecord) []ScoredRecord {
	scored := make([]ScoredRecord, 0, len(records))
	for i := range records {
		if v := s.Score(&records[i]); v > 0 {
			scored = append(scored, ScoredRecord{Record: &records[i], Score: v})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

type ScoredRecord struct {
	Record *nexus.TorrentRecord
	Score  float64
}

// Budget caps the total size of admitted torrents against a byte
// allowance. Admissions reserve from the allowance in call order, so
// the same catalog snapshot always admits the same subset. A
// non-positive limit disables the cap.
type Budget struct {
	remaining int64
	unlimited bool
}

// NewBudget derives the remaining allowance from the configured limit
// and the bytes already held by local torrents.
func NewBudget(limitBytes, usedBytes int64) *Budget {
	if limitBytes <= 0 {
		return &Budget{unlimited: true}
	}
	remaining := limitBytes - usedBytes
	if remaining < 0 {
		remaining = 0
	}
	return &Budget{remaining: remaining}
}

// Admit reserves the record's size from the allowance, refusing
// records the remaining allowance cannot cover.
func (b *Budget) Admit(rec *nexus.TorrentRecord) bool {
	if b.unlimited {
		return true
	}
	if rec.SizeBytes > b.remaining {
		return false
	}
	b.remaining -= rec.SizeBytes
	return true
}

// Remaining reports the unreserved allowance in bytes.
func (b *Budget) Remaining() int64 {
	return b.remaining
}

func runBool(program *vm.Program, env any) (bool, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("expression returned %T, want bool", out)
	}
	return ok, nil
}
