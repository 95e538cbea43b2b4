// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)
