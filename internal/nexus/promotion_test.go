// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nexus

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titleCellFromHTML(t *testing.T, rowHTML string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<table>" + rowHTML + "</table>"))
	require.NoError(t, err)
	cell := doc.Find("td.classify").First()
	require.Equal(t, 1, cell.Length())
	return cell
}

func TestClassifyPromotions(t *testing.T) {
	tests := []struct {
		name string
		row  string
		want PromotionSet
	}{
		{
			name: "no promotion",
			row:  `<tr><td class="classify"><a href="details.php?id=1">x</a></td></tr>`,
			want: 0,
		},
		{
			name: "free icon",
			row:  `<tr><td class="classify"><img class="pro_free" alt="free"/></td></tr>`,
			want: Promotions(PromotionFree),
		},
		{
			name: "combined icon before single",
			row:  `<tr><td class="classify"><img class="pro_free2up" alt="free2up"/></td></tr>`,
			want: Promotions(PromotionFree, PromotionTwoUp),
		},
		{
			name: "inline marker",
			row:  `<tr><td class="classify"><font class="halfdown">50%</font></td></tr>`,
			want: Promotions(PromotionHalfDown),
		},
		{
			name: "row background",
			row:  `<tr class="free_bg"><td class="classify">x</td></tr>`,
			want: Promotions(PromotionFree),
		},
		{
			name: "thirty percent background",
			row:  `<tr class="thirtypercentdown_bg"><td class="classify">x</td></tr>`,
			want: Promotions(PromotionThirtyDown),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPromotions(titleCellFromHTML(t, tt.row))
			assert.Equal(t, tt.want, got)
		})
	}
}

// A row can carry two encodings of different promotions at once; the
// first table entry must win so flags are never double counted.
func TestClassifyPromotionsFirstMatchWins(t *testing.T) {
	// Background says free+2x, icon says plain free. Background rules
	// come first in the table.
	cell := titleCellFromHTML(t,
		`<tr class="twoupfree_bg"><td class="classify"><img class="pro_free" alt="free"/></td></tr>`)

	got := ClassifyPromotions(cell)
	assert.Equal(t, Promotions(PromotionFree, PromotionTwoUp), got)

	// Reversed dominance: only an icon present, background plain.
	cell = titleCellFromHTML(t,
		`<tr class="free_bg"><td class="classify"><img class="pro_free2up" alt="free2up"/></td></tr>`)
	assert.Equal(t, Promotions(PromotionFree), ClassifyPromotions(cell))
}
