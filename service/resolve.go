package service

import (
	"context"
	"regexp"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/atproto/syntax"
)

// bsky.app style permalink: https://host/profile/<handle-or-did>/post/<rkey>
var postURLRegex = regexp.MustCompile(`^https?://[^/]+/profile/([^/]+)/post/([^/]+)/?$`)

// IsPostURL reports whether raw looks like a Bluesky post permalink. Purely
// syntactic; no network.
func IsPostURL(raw string) bool {
	return postURLRegex.MatchString(raw)
}

// ResolvePostURL turns a post permalink into a strong ref for that post and,
// when the post is itself a reply, the strong ref of its thread root.
//
// Any failure (bad URL shape, unknown handle, missing record) returns
// (nil, nil): broken or private links degrade to "link not recognized"
// instead of aborting the caller's flow.
func (s *Service) ResolvePostURL(ctx context.Context, raw string) (*comatproto.RepoStrongRef, *comatproto.RepoStrongRef) {
	m := postURLRegex.FindStringSubmatch(raw)
	if m == nil {
		return nil, nil
	}
	actor, rkey := m[1], m[2]

	atid, err := syntax.ParseAtIdentifier(actor)
	if err != nil {
		s.logger.Warn("post URL has invalid actor segment", "url", raw, "err", err)
		return nil, nil
	}
	ident, err := s.dir.Lookup(ctx, *atid)
	if err != nil {
		s.logger.Warn("failed to resolve post author", "actor", actor, "err", err)
		return nil, nil
	}

	post, ref, err := s.client.FetchPost(ctx, ident.DID.String(), rkey)
	if err != nil {
		s.logger.Warn("failed to fetch linked post", "url", raw, "err", err)
		return nil, nil
	}

	var root *comatproto.RepoStrongRef
	if post.Reply != nil && post.Reply.Root != nil {
		root = post.Reply.Root
	}
	return ref, root
}
