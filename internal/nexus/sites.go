// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nexus

import (
	"fmt"
	"sort"
	"strings"
)

// Site describes one NexusPHP deployment. The key doubles as the
// transfer-client tag and the site token in canonical torrent names.
type Site struct {
	Key     string
	Name    string
	BaseURL string
}

// URL joins a site-relative path onto the base URL.
func (s Site) URL(path string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

var registry = map[string]Site{
	"byr": {Key: "byr", Name: "BYRBT", BaseURL: "https://byr.pt/"},
	"tju": {Key: "tju", Name: "TJUPT", BaseURL: "https://tjupt.org/"},
}

// LookupSite resolves a site key against the registry.
func LookupSite(key string) (Site, error) {
	site, ok := registry[key]
	if !ok {
		return Site{}, fmt.Errorf("unknown site key %q", key)
	}
	return site, nil
}

// SiteKeys returns all registered site keys in stable order.
func SiteKeys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
