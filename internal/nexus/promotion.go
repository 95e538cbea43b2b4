// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nexus

import "github.com/PuerkitoBio/goquery"

// promotionRule pairs a CSS selector with the promotion set it encodes.
type promotionRule struct {
	selector string
	flags    PromotionSet
}

// promotionRules enumerates the three markup encodings the site uses for
// the same promotions: row background highlighting, inline marker text,
// and icon images. The order is load-bearing: a row can match several
// encodings at once and classification returns the FIRST hit only, so
// combined encodings (e.g. free+2x backgrounds) sit before their
// single-flag cousins would shadow them.
var promotionRules = []promotionRule{
	// Background highlighting on the row.
	{"tr.twoupfree_bg", Promotions(PromotionFree, PromotionTwoUp)},
	{"tr.twouphalfdown_bg", Promotions(PromotionHalfDown, PromotionTwoUp)},
	{"tr.free_bg", Promotions(PromotionFree)},
	{"tr.twoup_bg", Promotions(PromotionTwoUp)},
	{"tr.halfdown_bg", Promotions(PromotionHalfDown)},
	{"tr.thirtypercentdown_bg", Promotions(PromotionThirtyDown)},
	// Inline marker text, e.g. "2X免费".
	{"font.twoupfree", Promotions(PromotionFree, PromotionTwoUp)},
	{"font.twouphalfdown", Promotions(PromotionHalfDown, PromotionTwoUp)},
	{"font.free", Promotions(PromotionFree)},
	{"font.twoup", Promotions(PromotionTwoUp)},
	{"font.halfdown", Promotions(PromotionHalfDown)},
	{"font.thirtypercent", Promotions(PromotionThirtyDown)},
	// Icon images.
	{"img.pro_free2up", Promotions(PromotionFree, PromotionTwoUp)},
	{"img.pro_50pctdown2up", Promotions(PromotionHalfDown, PromotionTwoUp)},
	{"img.pro_free", Promotions(PromotionFree)},
	{"img.pro_2up", Promotions(PromotionTwoUp)},
	{"img.pro_50pctdown", Promotions(PromotionHalfDown)},
	{"img.pro_30pctdown", Promotions(PromotionThirtyDown)},
	// Unmarked promotions exist on the site; nothing to detect them by.
}

// ClassifyPromotions maps a listing row's markup subtree to its promotion
// set. First matching rule wins; no match means no promotion.
func ClassifyPromotions(cell *goquery.Selection) PromotionSet {
	for _, rule := range promotionRules {
		if cell.Find(rule.selector).Length() > 0 {
			return rule.flags
		}
		// Background classes live on the row itself, not inside the cell.
		if cell.Is(rule.selector) || cell.Closest(rule.selector).Length() > 0 {
			return rule.flags
		}
	}
	return 0
}
