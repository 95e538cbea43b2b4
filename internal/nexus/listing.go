// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nexus

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// ExtractionError reports a structural failure in one listing row. It is
// fatal to that row only; extraction of the remaining rows continues.
type ExtractionError struct {
	Row   int
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("row %d: failed to extract %s: %v", e.Row, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Listing cell layout on torrents.php:
//
//	0        1      2         3      4     5        6         7          8
//	category title  comments  time   size  seeders  leechers  completed  uploader
const listingCellCount = 9

// Publish timestamps appear in a span title attribute; the site has
// rendered both space- and T-separated forms over time.
var publishedAtLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ExtractListing parses a catalog page into normalized torrent records,
// preserving page order. Per-row structural failures are collected and
// returned alongside the successfully extracted rows; a malformed row
// never blocks the rest of the page.
func ExtractListing(doc *goquery.Document, site string, now time.Time) ([]TorrentRecord, []*ExtractionError) {
	var (
		records []TorrentRecord
		rowErrs []*ExtractionError
	)

	rowIndex := 0
	doc.Find("table.torrents tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < listingCellCount || row.Find("table.torrentname").Length() == 0 {
			// Header and spacer rows.
			return
		}
		index := rowIndex
		rowIndex++

		record, err := extractRow(cells, site, index, now)
		if err != nil {
			rowErrs = append(rowErrs, err)
			return
		}
		records = append(records, record)
	})

	return records, rowErrs
}

func extractRow(cells *goquery.Selection, site string, index int, now time.Time) (TorrentRecord, *ExtractionError) {
	titleCell := cells.Eq(1)

	titleLink := titleCell.Find("table.torrentname td.embedded a[href^='details']").First()
	if titleLink.Length() == 0 {
		return TorrentRecord{}, &ExtractionError{Row: index, Field: "title link", Err: errors.New("no details link in title cell")}
	}

	title := titleLink.AttrOr("title", "")
	if title == "" {
		// The visible text may be truncated; it is still better than nothing.
		title = titleLink.Text()
	}

	siteID, err := extractURLID(titleLink.AttrOr("href", ""))
	if err != nil {
		return TorrentRecord{}, &ExtractionError{Row: index, Field: "torrent id", Err: err}
	}

	// Age is load-bearing for downstream scoring, so a bad timestamp is
	// fatal for the row rather than defaulted.
	publishedRaw := cells.Eq(3).Find("span").First().AttrOr("title", "")
	publishedAt, err := parsePublishedAt(publishedRaw)
	if err != nil {
		return TorrentRecord{}, &ExtractionError{Row: index, Field: "publish timestamp", Err: err}
	}

	sizeBytes, err := ParseSize(cells.Eq(4).Text())
	if err != nil {
		log.Debug().Err(err).Int("row", index).Msg("Unparseable size cell, defaulting to 0")
		sizeBytes = 0
	}

	rawCategory := cells.Eq(0).Find("img").First().AttrOr("title", "")
	category, secondCategory := MapCategory(rawCategory)

	uploader := AnonymousUser()
	if userLink := cells.Eq(8).Find("a[href^='userdetails']").First(); userLink.Length() > 0 {
		if userID, err := extractURLID(userLink.AttrOr("href", "")); err == nil {
			uploader = UserRef{ID: userID, Name: userLink.Text()}
		}
	}

	return TorrentRecord{
		Title:          title,
		Subtitle:       extractSubtitle(titleLink),
		SiteID:         siteID,
		Site:           site,
		RawCategory:    rawCategory,
		Category:       category,
		SecondCategory: secondCategory,
		Promotions:     ClassifyPromotions(titleCell),
		SizeBytes:      sizeBytes,
		AgeDays:        AgeDays(publishedAt, now),
		Seeders:        intOr(cells.Eq(5).Text(), 0),
		Leechers:       intOr(cells.Eq(6).Text(), 0),
		Completed:      intOr(cells.Eq(7).Text(), 0),
		Comments:       intOr(cells.Eq(2).Text(), 0),
		Uploader:       uploader,
	}, nil
}

// extractSubtitle reads the text immediately following the first line
// break inside the title link's cell; absent means empty.
func extractSubtitle(titleLink *goquery.Selection) string {
	br := titleLink.Closest("td").Find("br").First()
	if br.Length() == 0 {
		return ""
	}
	next := br.Get(0).NextSibling
	if next == nil || next.Type != html.TextNode {
		return ""
	}
	return strings.TrimSpace(next.Data)
}

func parsePublishedAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing publish timestamp attribute")
	}
	var lastErr error
	for _, layout := range publishedAtLayouts {
		t, err := time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// extractURLID pulls the numeric id query parameter out of a site href
// like "details.php?id=1024&hit=1".
func extractURLID(href string) (int64, error) {
	u, err := url.Parse(href)
	if err != nil {
		return 0, fmt.Errorf("malformed href %q: %w", href, err)
	}
	raw := u.Query().Get("id")
	if raw == "" {
		return 0, fmt.Errorf("href %q has no id parameter", href)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric id in href %q: %w", href, err)
	}
	return id, nil
}
