// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package nexus extracts structured records from NexusPHP tracker pages.
package nexus

import (
	"fmt"
	"sort"
	"strings"
)

// Promotion is a tracker-granted traffic accounting modifier.
type Promotion uint8

const (
	// PromotionFree means the download does not count against the ratio.
	PromotionFree Promotion = 1 << iota
	// PromotionTwoUp doubles the upload credit.
	PromotionTwoUp
	// PromotionHalfDown halves the download cost.
	PromotionHalfDown
	// PromotionThirtyDown counts thirty percent of the download cost.
	PromotionThirtyDown
)

// PromotionSet is a combination of promotion flags; zero means none.
type PromotionSet uint8

func Promotions(flags ...Promotion) PromotionSet {
	var s PromotionSet
	for _, f := range flags {
		s |= PromotionSet(f)
	}
	return s
}

func (s PromotionSet) Has(p Promotion) bool { return s&PromotionSet(p) != 0 }

func (s PromotionSet) Empty() bool { return s == 0 }

// DownloadFactor returns the multiplier applied to downloaded bytes.
func (s PromotionSet) DownloadFactor() float64 {
	switch {
	case s.Has(PromotionFree):
		return 0
	case s.Has(PromotionThirtyDown):
		return 0.3
	case s.Has(PromotionHalfDown):
		return 0.5
	default:
		return 1
	}
}

// UploadFactor returns the multiplier applied to uploaded bytes.
func (s PromotionSet) UploadFactor() float64 {
	if s.Has(PromotionTwoUp) {
		return 2
	}
	return 1
}

func (s PromotionSet) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	if s.Has(PromotionFree) {
		parts = append(parts, "free")
	}
	if s.Has(PromotionTwoUp) {
		parts = append(parts, "2x-up")
	}
	if s.Has(PromotionHalfDown) {
		parts = append(parts, "50%-down")
	}
	if s.Has(PromotionThirtyDown) {
		parts = append(parts, "30%-down")
	}
	return strings.Join(parts, ",")
}

// UserRef points at a site account. The anonymous sentinel
// (ID 0, name "anonymous") stands in for hidden uploaders.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AnonymousUser is the sentinel for hidden uploaders.
func AnonymousUser() UserRef {
	return UserRef{ID: 0, Name: "anonymous"}
}

// TorrentRecord is one catalog entry, a value snapshot of a listing row.
// SiteID together with Site uniquely identifies it within one extraction.
type TorrentRecord struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`

	SiteID int64  `json:"siteId"`
	Site   string `json:"site"`

	RawCategory    string `json:"rawCategory"`
	Category       string `json:"category"`
	SecondCategory string `json:"secondCategory,omitempty"`

	Promotions PromotionSet `json:"promotions"`

	SizeBytes int64 `json:"sizeBytes"`

	// AgeDays is recomputed on every extraction, never persisted. It can go
	// negative under clock skew; display code clamps, the core does not.
	AgeDays float64 `json:"ageDays"`

	Seeders   int `json:"seeders"`
	Leechers  int `json:"leechers"`
	Completed int `json:"completed"`
	Comments  int `json:"comments"`

	Uploader UserRef `json:"uploader"`
}

// Key returns the (site, id) identity of the record.
func (t TorrentRecord) Key() string {
	return fmt.Sprintf("%s-%d", t.Site, t.SiteID)
}

// UserRecord is a site account's stats snapshot.
type UserRecord struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Site     string `json:"site"`

	Level       string  `json:"level,omitempty"`
	BonusPoints float64 `json:"bonusPoints"`

	// Invitations is nil when the account lacks invitation privilege,
	// which is distinct from holding zero invitations.
	Invitations *int `json:"invitations,omitempty"`

	Ratio           float64 `json:"ratio"`
	UploadedBytes   int64   `json:"uploadedBytes"`
	DownloadedBytes int64   `json:"downloadedBytes"`

	// Ranking is nil when the site does not rank or display the account.
	Ranking *int `json:"ranking,omitempty"`

	SeedingCount  int  `json:"seedingCount"`
	LeechingCount int  `json:"leechingCount"`
	Connectable   bool `json:"connectable"`
}

// categoryMapping maps a raw site category label to the managed
// (category, secondCategory) pair used for download directory layout.
// This table is data, not logic: sites add labels over time, and
// unmapped labels deliberately fall through to Others with the raw
// label preserved.
var categoryMapping = map[string][2]string{
	"电影":    {"Movies", ""},
	"剧集":    {"TVSeries", ""},
	"动漫":    {"Anime", ""},
	"音乐":    {"Music", ""},
	"综艺":    {"VarietyShows", ""},
	"游戏":    {"Games", ""},
	"软件":    {"Software", ""},
	"资料":    {"Documents", ""},
	"体育":    {"Sports", ""},
	"纪录":    {"Documentaries", ""},
	"纪录片":   {"Documentaries", ""},
	"电子书":   {"Documents", "Books"},
	"大陆电影":  {"Movies", "Mainland"},
	"港台电影":  {"Movies", "HongKongTaiwan"},
	"欧美电影":  {"Movies", "Western"},
	"大陆剧集":  {"TVSeries", "Mainland"},
	"欧美剧集":  {"TVSeries", "Western"},
	"日韩剧集":  {"TVSeries", "JapanKorea"},
	"华语流行":  {"Music", "Chinese"},
	"欧美流行":  {"Music", "Western"},
	"古典音乐":  {"Music", "Classical"},
	"原声带":   {"Music", "Soundtrack"},
	"PC游戏":  {"Games", "PC"},
	"主机游戏":  {"Games", "Console"},
	"移动游戏":  {"Games", "Mobile"},
	"操作系统":  {"Software", "OS"},
	"应用软件":  {"Software", "Applications"},
	"学习资料":  {"Documents", "Study"},
	"Other": {"Others", ""},
}

// CategoryOther is the fallback bucket for unmapped raw labels.
const CategoryOther = "Others"

// MapCategory converts a raw site category label into the managed pair.
// Unmapped labels fall back to Others; the raw label survives on the
// record itself.
func MapCategory(raw string) (category, secondCategory string) {
	if pair, ok := categoryMapping[strings.TrimSpace(raw)]; ok {
		return pair[0], pair[1]
	}
	return CategoryOther, ""
}

// Categories returns the distinct managed top-level categories in
// sorted order, used to bootstrap transfer-client categories.
func Categories() []string {
	seen := map[string]struct{}{CategoryOther: {}}
	out := []string{CategoryOther}
	for _, pair := range categoryMapping {
		if _, ok := seen[pair[0]]; ok {
			continue
		}
		seen[pair[0]] = struct{}{}
		out = append(out, pair[0])
	}
	sort.Strings(out)
	return out
}
