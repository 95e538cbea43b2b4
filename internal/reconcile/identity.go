// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package reconcile

import (
	"fmt"
	"strconv"
	"strings"
)

// UnrecognizedNameError marks a client torrent whose name carries no
// identity tag. These torrents are outside management scope and are
// reported, never acted on.
type UnrecognizedNameError struct {
	Name string
}

func (e *UnrecognizedNameError) Error() string {
	return fmt.Sprintf("torrent name %q carries no identity tag", e.Name)
}

// Identity is the cross-boundary key embedded in a managed torrent's name.
type Identity struct {
	Site     string
	RemoteID int64
}

func (id Identity) String() string {
	return fmt.Sprintf("%s-%d", id.Site, id.RemoteID)
}

// CanonicalName builds the client-side display name a managed torrent
// must carry: the identity tag prepended to the site title.
func CanonicalName(site string, remoteID int64, title string) string {
	return fmt.Sprintf("[%s-%d]%s", site, remoteID, title)
}

// Identify parses the identity tag out of a client torrent name. The tag
// is a leading bracketed "[site-id]" where site is a non-empty
// alphanumeric token and id a positive integer; anything else is
// unrecognized.
func Identify(name string) (Identity, error) {
	if !strings.HasPrefix(name, "[") {
		return Identity{}, &UnrecognizedNameError{Name: name}
	}
	end := strings.IndexByte(name, ']')
	if end < 0 {
		return Identity{}, &UnrecognizedNameError{Name: name}
	}

	tag := name[1:end]
	sep := strings.LastIndexByte(tag, '-')
	if sep <= 0 {
		return Identity{}, &UnrecognizedNameError{Name: name}
	}

	site := tag[:sep]
	if !isSiteToken(site) {
		return Identity{}, &UnrecognizedNameError{Name: name}
	}

	id, err := strconv.ParseInt(tag[sep+1:], 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, &UnrecognizedNameError{Name: name}
	}

	return Identity{Site: site, RemoteID: id}, nil
}

func isSiteToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
