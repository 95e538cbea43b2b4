// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hui-shao/byre/internal/nexus"
)

func record(site string, id int64, title string) nexus.TorrentRecord {
	return nexus.TorrentRecord{Site: site, SiteID: id, Title: title, Seeders: 1}
}

func local(site string, id int64, title, hash, contentHash string) *LocalTorrent {
	name := title
	if site != "" {
		name = CanonicalName(site, id, title)
	}
	return &LocalTorrent{
		Hash:        hash,
		Name:        name,
		SavePath:    "/data/" + hash,
		ContentHash: contentHash,
		Files:       map[string]int64{title: 100},
		Site:        site,
		RemoteID:    id,
	}
}

func admitAll(*nexus.TorrentRecord) bool  { return true }
func admitNone(*nexus.TorrentRecord) bool { return false }

func TestPlanAddsUnmatchedAdmittedRecords(t *testing.T) {
	catalog := []nexus.TorrentRecord{record("byr", 1, "A"), record("byr", 2, "B")}

	plan, err := Plan(catalog, nil, Policy{DownloadDir: "/dl", Paused: true, Admit: admitAll})
	require.NoError(t, err)
	require.Len(t, plan, 2)

	for i, action := range plan {
		assert.Equal(t, ActionAdd, action.Kind)
		assert.Equal(t, catalog[i].SiteID, action.Record.SiteID)
		assert.Equal(t, "/dl", action.TargetDir)
		assert.True(t, action.Paused)
		assert.Empty(t, action.ReusePath)
	}
}

func TestPlanRejectedRecordsAreKept(t *testing.T) {
	catalog := []nexus.TorrentRecord{record("byr", 1, "A")}

	plan, err := Plan(catalog, nil, Policy{Admit: admitNone})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, ActionKeep, plan[0].Kind)
	assert.NotNil(t, plan[0].Record)
}

func TestPlanDeduplicatesCatalogFirstWins(t *testing.T) {
	first := record("byr", 1, "First")
	second := record("byr", 1, "Second")

	plan, err := Plan([]nexus.TorrentRecord{first, second}, nil, Policy{Admit: admitAll})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "First", plan[0].Record.Title)
}

func TestPlanRenamesOnNameDrift(t *testing.T) {
	catalog := []nexus.TorrentRecord{record("byr", 1, "New.Title")}
	drifted := local("byr", 1, "Old.Title", "h1", "c1")

	plan, err := Plan(catalog, []*LocalTorrent{drifted}, Policy{Admit: admitNone})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, ActionRename, plan[0].Kind)
	assert.Equal(t, CanonicalName("byr", 1, "New.Title"), plan[0].NewName)
}

func TestPlanMatchedWithoutDriftIsKept(t *testing.T) {
	catalog := []nexus.TorrentRecord{record("byr", 1, "Same.Title")}
	matched := local("byr", 1, "Same.Title", "h1", "c1")

	plan, err := Plan(catalog, []*LocalTorrent{matched}, Policy{Admit: admitNone})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, ActionKeep, plan[0].Kind)
	assert.Same(t, matched, plan[0].Local)
}

func TestPlanContractViolationAbortsWholeCall(t *testing.T) {
	broken := local("byr", 1, "A", "h1", "")

	plan, err := Plan(nil, []*LocalTorrent{broken}, Policy{})
	assert.Nil(t, plan)

	var contractErr *PlannerContractError
	require.ErrorAs(t, err, &contractErr)
	assert.Equal(t, "h1", contractErr.Hash)

	noFiles := local("byr", 2, "B", "h2", "c2")
	noFiles.Files = nil
	_, err = Plan(nil, []*LocalTorrent{noFiles}, Policy{})
	require.ErrorAs(t, err, &contractErr)
}

func TestPlanIdempotence(t *testing.T) {
	catalog := []nexus.TorrentRecord{
		record("byr", 1, "A"), record("byr", 2, "B"), record("byr", 3, "C"),
	}
	locals := []*LocalTorrent{
		local("byr", 2, "B", "h2", "c2"),
		local("byr", 9, "Gone", "h9", "c9"),
	}
	policy := Policy{DownloadDir: "/dl", RemoveAbsent: true, Admit: admitAll}

	first, err := Plan(catalog, locals, policy)
	require.NoError(t, err)
	second, err := Plan(catalog, locals, policy)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// Three torrents share one content hash and all are removal candidates:
// the plan must drop two references without touching files and let only
// the final removal delete data, in that order.
func TestPlanLinearizesSharedContentRemoval(t *testing.T) {
	locals := []*LocalTorrent{
		local("byr", 1, "A", "h1", "shared"),
		local("byr", 2, "B", "h2", "shared"),
		local("byr", 3, "C", "h3", "shared"),
	}

	plan, err := Plan(nil, locals, Policy{RemoveAbsent: true})
	require.NoError(t, err)
	require.Len(t, plan, 3)

	deletions := 0
	for i, action := range plan {
		require.Equal(t, ActionRemove, action.Kind)
		if action.DeleteFiles {
			deletions++
			assert.Equal(t, len(plan)-1, i, "file deletion must come after all sibling removals")
		}
	}
	assert.Equal(t, 1, deletions)
}

// When a sibling sharing the content is not itself removable, no
// removal in the group may delete files at all.
func TestPlanNeverDeletesSharedFilesStillNeeded(t *testing.T) {
	catalog := []nexus.TorrentRecord{record("byr", 1, "Stays")}
	locals := []*LocalTorrent{
		local("byr", 1, "Stays", "h1", "shared"),
		local("byr", 9, "Gone", "h9", "shared"),
	}

	plan, err := Plan(catalog, locals, Policy{RemoveAbsent: true, Admit: admitNone})
	require.NoError(t, err)

	for _, action := range plan {
		if action.Kind == ActionRemove {
			assert.False(t, action.DeleteFiles)
		}
	}
}

func TestPlanRetentionPredicateDrivesRemoval(t *testing.T) {
	catalog := []nexus.TorrentRecord{record("byr", 1, "A")}
	locals := []*LocalTorrent{local("byr", 1, "A", "h1", "c1")}

	plan, err := Plan(catalog, locals, Policy{
		Admit:  admitNone,
		Retain: func(l *LocalTorrent) bool { return false },
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, ActionRemove, plan[0].Kind)
	assert.True(t, plan[0].DeleteFiles)
}

func TestPlanAbsentLocalsKeptWithoutRemoveAbsent(t *testing.T) {
	locals := []*LocalTorrent{local("byr", 9, "Gone", "h9", "c9")}

	plan, err := Plan(nil, locals, Policy{})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, ActionKeep, plan[0].Kind)
}

func TestPlanCrossSiteReuseHint(t *testing.T) {
	existing := local("tju", 5, "Same.Content", "h5", "c5")
	existing.Files = map[string]int64{"a": 100, "b": 200}
	existing.SavePath = "/data/existing"

	candidate := record("byr", 1, "Same.Content")

	plan, err := Plan([]nexus.TorrentRecord{candidate}, []*LocalTorrent{existing}, Policy{
		Admit: admitAll,
		ExpectedFiles: func(rec *nexus.TorrentRecord) map[string]int64 {
			return map[string]int64{"a": 100, "b": 200}
		},
	})
	require.NoError(t, err)

	var add *Action
	for i := range plan {
		if plan[i].Kind == ActionAdd {
			add = &plan[i]
		}
	}
	require.NotNil(t, add)
	assert.Equal(t, "/data/existing", add.ReusePath)
}

func TestPlanReuseRequiresExactSizes(t *testing.T) {
	existing := local("tju", 5, "Same.Content", "h5", "c5")
	existing.Files = map[string]int64{"a": 100, "b": 999}

	plan, err := Plan([]nexus.TorrentRecord{record("byr", 1, "X")}, []*LocalTorrent{existing}, Policy{
		Admit: admitAll,
		ExpectedFiles: func(rec *nexus.TorrentRecord) map[string]int64 {
			return map[string]int64{"a": 100, "b": 200}
		},
	})
	require.NoError(t, err)

	for _, action := range plan {
		if action.Kind == ActionAdd {
			assert.Empty(t, action.ReusePath)
		}
	}
}

func TestPlanReuseAcceptsSupersetFileSet(t *testing.T) {
	existing := local("tju", 5, "Pack", "h5", "c5")
	existing.Files = map[string]int64{"a": 100, "b": 200, "extra": 300}
	existing.SavePath = "/data/pack"

	plan, err := Plan([]nexus.TorrentRecord{record("byr", 1, "X")}, []*LocalTorrent{existing}, Policy{
		Admit: admitAll,
		ExpectedFiles: func(rec *nexus.TorrentRecord) map[string]int64 {
			return map[string]int64{"a": 100, "b": 200}
		},
	})
	require.NoError(t, err)

	found := false
	for _, action := range plan {
		if action.Kind == ActionAdd {
			assert.Equal(t, "/data/pack", action.ReusePath)
			found = true
		}
	}
	assert.True(t, found)
}

func TestPlanUntrackedLocalsAreLeftAlone(t *testing.T) {
	untracked := local("", 0, "manually.added", "h1", "c1")

	plan, err := Plan(nil, []*LocalTorrent{untracked}, Policy{RemoveAbsent: true})
	require.NoError(t, err)
	assert.Empty(t, plan)
}
