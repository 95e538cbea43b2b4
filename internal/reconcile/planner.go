// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package reconcile computes the action plan that converges a local
// client's torrent set with a site catalog. Planning is pure: no I/O,
// no state across calls, same snapshots in means same plan out.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/hui-shao/byre/internal/nexus"
)

// LocalTorrent is the client's view of one torrent, tagged with the
// identity recovered from its display name. ContentHash and Files come
// from the client and are mandatory; a missing value breaks the
// planner's safety contract.
type LocalTorrent struct {
	Hash     string `json:"hash"`
	Name     string `json:"name"`
	SavePath string `json:"savePath"`

	// Stable identity of the on-disk data, independent of which
	// tracker entry references it.
	ContentHash string           `json:"contentHash"`
	Files       map[string]int64 `json:"-"`

	// Zero values when the name carries no recognizable tag.
	Site     string `json:"site,omitempty"`
	RemoteID int64  `json:"remoteId,omitempty"`

	MatchedRemote *nexus.TorrentRecord `json:"-"`
}

// Tracked reports whether the torrent carries a recognized identity tag.
func (t *LocalTorrent) Tracked() bool {
	return t.Site != "" && t.RemoteID > 0
}

type ActionKind string

const (
	ActionAdd    ActionKind = "add"
	ActionRename ActionKind = "rename"
	ActionRemove ActionKind = "remove"
	ActionKeep   ActionKind = "keep"
)

// Action is one planned client mutation. Every action is self-describing
// and safe to serialize for audit before application.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Add
	Record    *nexus.TorrentRecord `json:"record,omitempty"`
	TargetDir string               `json:"targetDir,omitempty"`
	Paused    bool                 `json:"paused,omitempty"`
	// Save path of an existing local torrent holding the same data;
	// lets the client validate in place instead of re-downloading.
	ReusePath string `json:"reusePath,omitempty"`

	// Rename / Remove / Keep
	Local   *LocalTorrent `json:"local,omitempty"`
	NewName string        `json:"newName,omitempty"`

	// Remove only. Within a shared-content group exactly one removal
	// carries this, and it is ordered after every sibling's removal.
	DeleteFiles bool `json:"deleteFiles,omitempty"`
}

// PlannerContractError marks a local torrent entry missing the content
// identity data the client is required to supply. It aborts the whole
// planning call: a plan built without knowing what data is shared can
// delete files another torrent still needs.
type PlannerContractError struct {
	Hash    string
	Missing string
}

func (e *PlannerContractError) Error() string {
	return fmt.Sprintf("local torrent %s is missing %s; refusing to plan", e.Hash, e.Missing)
}

// Policy carries the caller-supplied decisions the planner consults but
// does not compute: where data lands, which new records are worth
// adding, and which tracked torrents are worth keeping.
type Policy struct {
	DownloadDir string
	Paused      bool

	// RemoveAbsent marks tracked torrents whose record has vanished
	// from the catalog as removal candidates. Off by default because a
	// single listing page is rarely the whole catalog.
	RemoveAbsent bool

	// Admit decides whether an unmatched catalog record becomes an Add.
	Admit func(record *nexus.TorrentRecord) bool

	// Retain decides whether a matched local torrent stays. A nil
	// predicate retains everything still present upstream.
	Retain func(local *LocalTorrent) bool

	// ExpectedFiles returns the file set a record's payload would
	// contain, when known, for cross-site reuse detection. Nil (or a
	// nil return) disables the reuse hint for that record.
	ExpectedFiles func(record *nexus.TorrentRecord) map[string]int64
}

// Plan computes the ordered action list for one snapshot pair. The
// catalog is deduplicated by (site, remoteId) with the first occurrence
// winning. Locals without a recognized tag are outside management scope
// and produce no action. Order within the plan is deterministic:
// renames, then removals (shared-content groups linearized), then adds,
// then keeps.
func Plan(catalog []nexus.TorrentRecord, locals []*LocalTorrent, policy Policy) ([]Action, error) {
	for _, local := range locals {
		if local.ContentHash == "" {
			return nil, &PlannerContractError{Hash: local.Hash, Missing: "content hash"}
		}
		if local.Files == nil {
			return nil, &PlannerContractError{Hash: local.Hash, Missing: "file set"}
		}
	}

	remote := make(map[string]*nexus.TorrentRecord, len(catalog))
	order := make([]*nexus.TorrentRecord, 0, len(catalog))
	for i := range catalog {
		rec := &catalog[i]
		if _, seen := remote[rec.Key()]; seen {
			continue
		}
		remote[rec.Key()] = rec
		order = append(order, rec)
	}

	// Content-hash groups span the entire local set, candidates or not.
	groups := make(map[string][]*LocalTorrent)
	for _, local := range locals {
		groups[local.ContentHash] = append(groups[local.ContentHash], local)
	}

	matched := make(map[string]bool, len(locals))
	removing := make(map[string]bool)

	var renames, removals, adds, keeps []Action

	for _, local := range locals {
		if !local.Tracked() {
			continue
		}
		key := fmt.Sprintf("%s-%d", local.Site, local.RemoteID)
		if rec, ok := remote[key]; ok {
			local.MatchedRemote = rec
			matched[key] = true
		}

		if removable(local, policy) {
			removing[local.Hash] = true
			continue
		}

		if local.MatchedRemote != nil {
			want := CanonicalName(local.Site, local.RemoteID, local.MatchedRemote.Title)
			if local.Name != want {
				renames = append(renames, Action{Kind: ActionRename, Local: local, NewName: want})
				continue
			}
		}
		keeps = append(keeps, Action{Kind: ActionKeep, Local: local})
	}

	removals = linearizeRemovals(locals, groups, removing)

	for _, rec := range order {
		if matched[rec.Key()] {
			continue
		}
		if policy.Admit == nil || !policy.Admit(rec) {
			keeps = append(keeps, Action{Kind: ActionKeep, Record: rec})
			continue
		}
		add := Action{
			Kind:      ActionAdd,
			Record:    rec,
			TargetDir: policy.DownloadDir,
			Paused:    policy.Paused,
		}
		if policy.ExpectedFiles != nil {
			if expected := policy.ExpectedFiles(rec); expected != nil {
				add.ReusePath = findReusePath(locals, removing, expected)
			}
		}
		adds = append(adds, add)
	}

	plan := make([]Action, 0, len(renames)+len(removals)+len(adds)+len(keeps))
	plan = append(plan, renames...)
	plan = append(plan, removals...)
	plan = append(plan, adds...)
	plan = append(plan, keeps...)
	return plan, nil
}

func removable(local *LocalTorrent, policy Policy) bool {
	if local.MatchedRemote == nil {
		return policy.RemoveAbsent
	}
	return policy.Retain != nil && !policy.Retain(local)
}

// linearizeRemovals orders removal candidates so that within each
// content-hash group every sibling's reference is dropped before any
// file deletion happens, and at most one removal deletes files. When a
// group member is not itself a candidate the data stays needed, so no
// candidate in that group may delete files at all.
func linearizeRemovals(locals []*LocalTorrent, groups map[string][]*LocalTorrent, removing map[string]bool) []Action {
	var removals []Action
	emitted := make(map[string]bool)

	for _, local := range locals {
		if !removing[local.Hash] || emitted[local.ContentHash] {
			continue
		}
		emitted[local.ContentHash] = true

		group := groups[local.ContentHash]
		candidates := make([]*LocalTorrent, 0, len(group))
		for _, member := range group {
			if removing[member.Hash] {
				candidates = append(candidates, member)
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Hash < candidates[j].Hash
		})

		wholeGroup := len(candidates) == len(group)
		for i, member := range candidates {
			removals = append(removals, Action{
				Kind:        ActionRemove,
				Local:       member,
				DeleteFiles: wholeGroup && i == len(candidates)-1,
			})
		}
	}
	return removals
}

// findReusePath looks for a surviving local torrent whose file set
// already contains everything the expected payload needs. Candidates
// are scanned in hash order so the choice is stable.
func findReusePath(locals []*LocalTorrent, removing map[string]bool, expected map[string]int64) string {
	sorted := make([]*LocalTorrent, 0, len(locals))
	for _, local := range locals {
		if !removing[local.Hash] {
			sorted = append(sorted, local)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash < sorted[j].Hash })

	for _, local := range sorted {
		if containsFileSet(local.Files, expected) {
			return local.SavePath
		}
	}
	return ""
}

func containsFileSet(have, want map[string]int64) bool {
	if len(want) == 0 || len(have) < len(want) {
		return false
	}
	for path, size := range want {
		if haveSize, ok := have[path]; !ok || haveSize != size {
			return false
		}
	}
	return true
}
