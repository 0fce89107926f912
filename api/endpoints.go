package api

import (
	"net/url"
	"path"
)

// Endpoint paths, relative to the server root.
const (
	pathAchievements = "/achievements"
	pathFriends      = "/friends"
	pathGroups       = "/groups"
	pathNotify       = "/notifications"
	pathTests        = "/tests"
	pathUsers        = "/users"
	pathChats        = "/chats"

	PathMe      = pathUsers + "/me"
	PathProfile = pathUsers + "/profile"
)

// join builds a path from a fixed prefix and escaped path segments.
func join(prefix string, segments ...string) string {
	p := prefix
	for _, s := range segments {
		p = path.Join(p, url.PathEscape(s))
	}
	return p
}

// withQuery appends a single query parameter.
func withQuery(p, key, value string) string {
	return p + "?" + url.Values{key: {value}}.Encode()
}
