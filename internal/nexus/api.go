// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nexus

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// swapped out in tests for a fixed clock
var timeNow = time.Now

// API exposes the catalog operations of one site over a Session.
type API struct {
	session *Session

	// Resolved once per handle; the value never changes within a session.
	currentUserID int64
}

func NewAPI(session *Session) *API {
	return &API{session: session}
}

func (a *API) Site() Site {
	return a.session.Site
}

// CurrentUserID resolves the logged-in account's numeric id from the
// index info bar. The first call fetches and caches it on the handle.
func (a *API) CurrentUserID(ctx context.Context) (int64, error) {
	if a.currentUserID != 0 {
		return a.currentUserID, nil
	}

	doc, err := a.session.FetchPage(ctx, "index.php")
	if err != nil {
		return 0, err
	}

	href, ok := doc.Find("#info_block a[href*='userdetails.php']").First().Attr("href")
	if !ok {
		return 0, fmt.Errorf("index page has no profile link; session may be invalid")
	}
	uid, err := extractURLID(href)
	if err != nil || uid <= 0 {
		return 0, fmt.Errorf("malformed profile link %q: %w", href, err)
	}

	log.Debug().Str("site", a.Site().Key).Int64("userID", uid).Msg("Resolved current user")
	a.currentUserID = uid
	return uid, nil
}

// UserInfo fetches and extracts a user profile. id 0 means the current user,
// whose profile exposes fields (ranking, seeding state) hidden on others.
func (a *API) UserInfo(ctx context.Context, id int64) (*UserRecord, error) {
	current, err := a.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		id = current
	}

	doc, err := a.session.FetchPage(ctx, fmt.Sprintf("userdetails.php?id=%d", id))
	if err != nil {
		return nil, err
	}
	user := ExtractUser(doc, a.Site().Key, id, id == current)
	return &user, nil
}

// ListTorrents fetches one listing page and extracts its rows. Extraction is
// partial-success: rows that fail come back as errors alongside the good ones.
func (a *API) ListTorrents(ctx context.Context, page int) ([]TorrentRecord, []*ExtractionError, error) {
	doc, err := a.session.FetchPage(ctx, fmt.Sprintf("torrents.php?page=%d", page))
	if err != nil {
		return nil, nil, err
	}

	records, rowErrs := ExtractListing(doc, a.Site().Key, timeNow())
	for _, re := range rowErrs {
		log.Warn().Err(re).Str("site", a.Site().Key).Int("page", page).Msg("Skipped listing row")
	}
	return records, rowErrs, nil
}

// DownloadTorrent fetches the .torrent payload for a listed torrent.
func (a *API) DownloadTorrent(ctx context.Context, id int64) ([]byte, error) {
	data, err := a.session.FetchBytes(ctx, fmt.Sprintf("download.php?id=%d", id))
	if err != nil {
		return nil, fmt.Errorf("failed to download torrent %d: %w", id, err)
	}
	if len(data) == 0 || data[0] != 'd' {
		return nil, fmt.Errorf("torrent %d download did not return a bencoded payload", id)
	}
	return data, nil
}
