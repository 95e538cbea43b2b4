// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"

	"github.com/hui-shao/byre/internal/reconcile"
)

var addTagsMinVersion = semver.MustParse("2.6.2")

// TorrentFetcher supplies the .torrent payload for an Add action.
type TorrentFetcher func(ctx context.Context, site string, remoteID int64) ([]byte, error)

type ApplyResult struct {
	Added   int
	Renamed int
	Removed int
	Kept    int
}

// Apply executes a plan action by action, preserving its order. The
// plan's removal linearization only holds if nothing reorders it, so a
// failed action aborts the rest instead of skipping ahead.
func (c *Client) Apply(ctx context.Context, plan []reconcile.Action, fetch TorrentFetcher) (*ApplyResult, error) {
	result := &ApplyResult{}

	for i, action := range plan {
		var err error
		switch action.Kind {
		case reconcile.ActionRename:
			if err = c.rename(ctx, action); err == nil {
				result.Renamed++
			}
		case reconcile.ActionRemove:
			if err = c.remove(ctx, action); err == nil {
				result.Removed++
			}
		case reconcile.ActionAdd:
			if err = c.add(ctx, action, fetch); err == nil {
				result.Added++
			}
		case reconcile.ActionKeep:
			result.Kept++
		default:
			err = fmt.Errorf("unknown action kind %q", action.Kind)
		}
		if err != nil {
			return result, fmt.Errorf("plan aborted at action %d: %w", i, err)
		}
	}

	log.Info().
		Int("added", result.Added).
		Int("renamed", result.Renamed).
		Int("removed", result.Removed).
		Int("kept", result.Kept).
		Msg("Plan applied")
	return result, nil
}

func (c *Client) rename(ctx context.Context, action reconcile.Action) error {
	if !c.supports(renameTorrentMinVersion) {
		log.Warn().Str("hash", action.Local.Hash).Msg("WebAPI too old to rename, skipping")
		return nil
	}
	log.Info().Str("hash", action.Local.Hash).Str("newName", action.NewName).Msg("Renaming torrent")
	if err := c.qbt.SetTorrentNameCtx(ctx, action.Local.Hash, action.NewName); err != nil {
		return fmt.Errorf("failed to rename %s: %w", action.Local.Hash, err)
	}
	return nil
}

func (c *Client) remove(ctx context.Context, action reconcile.Action) error {
	log.Info().
		Str("hash", action.Local.Hash).
		Str("name", action.Local.Name).
		Bool("deleteFiles", action.DeleteFiles).
		Msg("Removing torrent")
	if err := c.qbt.DeleteTorrentsCtx(ctx, []string{action.Local.Hash}, action.DeleteFiles); err != nil {
		return fmt.Errorf("failed to remove %s: %w", action.Local.Hash, err)
	}
	return nil
}

func (c *Client) add(ctx context.Context, action reconcile.Action, fetch TorrentFetcher) error {
	if fetch == nil {
		return fmt.Errorf("no torrent fetcher wired for add actions")
	}
	rec := action.Record

	payload, err := fetch(ctx, rec.Site, rec.SiteID)
	if err != nil {
		return fmt.Errorf("failed to fetch payload for %s: %w", rec.Key(), err)
	}

	options := map[string]string{
		"category": rec.Category,
		"rename":   reconcile.CanonicalName(rec.Site, rec.SiteID, rec.Title),
	}
	if action.Paused {
		options["paused"] = "true"
	}
	if action.ReusePath != "" {
		// Same data already on disk under another tracker entry; point
		// at it and let the client verify instead of re-downloading.
		options["savepath"] = action.ReusePath
		options["skip_checking"] = "false"
		options["autoTMM"] = "false"
	} else if action.TargetDir != "" && rec.Category == "" {
		options["savepath"] = action.TargetDir
	}
	if c.supports(addTagsMinVersion) {
		options["tags"] = strings.Join([]string{ManagedTag, rec.Site}, ",")
	}
	if c.uploadLimitKB > 0 {
		options["upLimit"] = strconv.FormatInt(c.uploadLimitKB*1024, 10)
	}

	log.Info().Str("key", rec.Key()).Str("title", rec.Title).Bool("reuse", action.ReusePath != "").Msg("Adding torrent")
	if err := c.qbt.AddTorrentFromMemoryCtx(ctx, payload, options); err != nil {
		return fmt.Errorf("failed to add %s: %w", rec.Key(), err)
	}
	return nil
}
