// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nexus

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// Field labels on userdetails.php. Unknown labels are ignored rather
// than rejected so newly added site fields do not break extraction.
const (
	labelLevel       = "等级"
	labelBonus       = "魔力值"
	labelInvitations = "邀请"
	labelTransfer    = "传输"

	transferFieldRatio      = "分享率"
	transferFieldUploaded   = "上传量"
	transferFieldDownloaded = "下载量"

	noInvitationPrivilege = "没有邀请资格"
)

// ExtractUser parses a profile page into a user-statistics snapshot.
// The compact info bar (ranking, live activity, connectivity) only
// renders for the logged-in account's own view; for other profiles
// those fields keep their defaults because the markup is absent.
func ExtractUser(doc *goquery.Document, site string, userID int64, isCurrentUser bool) UserRecord {
	user := UserRecord{UserID: userID, Site: site}

	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		user.Username = strings.TrimSpace(h1.Text())
	}

	info := map[string]*goquery.Selection{}
	doc.Find("td.embedded > table > tbody > tr, td.embedded > table > tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() != 2 {
			return
		}
		info[strings.TrimSpace(cells.Eq(0).Text())] = cells.Eq(1)
	})

	extractUserTable(&user, info)

	if isCurrentUser {
		extractInfoBar(&user, doc)
	}

	return user
}

func extractUserTable(user *UserRecord, info map[string]*goquery.Selection) {
	if cell, ok := info[labelLevel]; ok {
		if img := cell.Find("img").First(); img.Length() > 0 {
			user.Level = img.AttrOr("title", "")
		}
	}

	if cell, ok := info[labelBonus]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(cell.Text()), 64); err == nil {
			user.BonusPoints = v
		}
	}

	if cell, ok := info[labelInvitations]; ok {
		text := strings.TrimSpace(cell.Text())
		if !strings.Contains(text, noInvitationPrivilege) {
			if v, err := strconv.Atoi(text); err == nil && v >= 0 {
				user.Invitations = &v
			}
		}
	}

	if cell, ok := info[labelTransfer]; ok {
		extractTransferCell(user, cell)
	}
}

// extractTransferCell splits the composite transfer cell into per-line
// "field: value" pairs; unrecognized lines are ignored.
func extractTransferCell(user *UserRecord, cell *goquery.Selection) {
	cell.Find("td").Each(func(_ int, sub *goquery.Selection) {
		text := strings.TrimSpace(sub.Text())
		field, value, found := strings.Cut(text, ":")
		if !found {
			field, value, found = strings.Cut(text, "：")
		}
		if !found {
			return
		}
		field, value = strings.TrimSpace(field), strings.TrimSpace(value)

		switch field {
		case transferFieldRatio:
			// "∞" renders when nothing was downloaded yet, "---" when the
			// ratio is hidden; both leave the zero value.
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				user.Ratio = v
			}
		case transferFieldUploaded:
			if v, err := ParseSize(value); err == nil {
				user.UploadedBytes = v
			} else {
				log.Debug().Err(err).Msg("Unparseable uploaded total")
			}
		case transferFieldDownloaded:
			if v, err := ParseSize(value); err == nil {
				user.DownloadedBytes = v
			} else {
				log.Debug().Err(err).Msg("Unparseable downloaded total")
			}
		}
	})
}

// extractInfoBar reads the permission-gated info bar at the top of the
// page: upload ranking, live seeding/downloading counts, connectivity.
func extractInfoBar(user *UserRecord, doc *goquery.Document) {
	doc.Find("#info_block font.color_bonus").EachWithBreak(func(_ int, tag *goquery.Selection) bool {
		if !strings.Contains(tag.Text(), "上传排行") {
			return true
		}
		if node := tag.Get(0).NextSibling; node != nil {
			ranking := strings.TrimSpace(node.Data)
			if v, err := strconv.Atoi(ranking); err == nil && v > 0 {
				user.Ranking = &v
			}
		}
		return false
	})

	if up := doc.Find("#info_block img.arrowup[title='当前做种']").First(); up.Length() > 0 {
		if node := up.Get(0).NextSibling; node != nil {
			user.SeedingCount = intOr(node.Data, 0)
		}
	}

	if down := doc.Find("#info_block img.arrowdown[title='当前下载']").First(); down.Length() > 0 {
		if node := down.Get(0).NextSibling; node != nil {
			user.LeechingCount = intOr(node.Data, 0)
		}
	}

	connectable := doc.Find("#info_block font[color='green']").First()
	user.Connectable = connectable.Length() > 0 && strings.Contains(connectable.Text(), "是")
}
