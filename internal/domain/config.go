// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the unmarshal target for the TOML configuration file.
type Config struct {
	Version string `mapstructure:"-"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	DataDir string `mapstructure:"dataDir"`

	Sites []SiteConfig `mapstructure:"sites"`

	QBittorrent QBittorrentConfig `mapstructure:"qbittorrent"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
}

// SiteConfig holds credentials for one NexusPHP site.
type SiteConfig struct {
	Key         string `mapstructure:"key"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	CookieCache string `mapstructure:"cookieCache"`
}

type QBittorrentConfig struct {
	URL           string  `mapstructure:"url"`
	DownloadDir   string  `mapstructure:"downloadDir"`
	SizeLimitGB   float64 `mapstructure:"sizeLimitGB"`
	UploadLimitMB float64 `mapstructure:"uploadLimitMB"`
	Paused        bool    `mapstructure:"paused"`
}

// ScoringConfig tunes the downstream admission/retention policy.
// AdmitExpr and RetainExpr optionally override the built-in scorer with
// expression predicates evaluated per torrent.
type ScoringConfig struct {
	FreeWeight           float64 `mapstructure:"freeWeight"`
	CostRecoveryDays     float64 `mapstructure:"costRecoveryDays"`
	RemovalExemptionDays float64 `mapstructure:"removalExemptionDays"`
	MaxSeeders           int     `mapstructure:"maxSeeders"`
	AdmitExpr            string  `mapstructure:"admitExpr"`
	RetainExpr           string  `mapstructure:"retainExpr"`
}
