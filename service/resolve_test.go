package service

import (
	"context"
	"testing"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPostURL(t *testing.T) {
	assert := assert.New(t)

	assert.True(IsPostURL("https://bsky.app/profile/alice.example.com/post/3k44dkkmslc2t"))
	assert.True(IsPostURL("https://bsky.app/profile/did:plc:abc123/post/3k44dkkmslc2t"))
	assert.True(IsPostURL("http://staging.bsky.app/profile/alice.example.com/post/abc/"))

	assert.False(IsPostURL("https://example.com/x"))
	assert.False(IsPostURL("https://bsky.app/profile/alice.example.com"))
	assert.False(IsPostURL("https://bsky.app/profile/alice.example.com/lists/abc"))
	assert.False(IsPostURL("not a url at all"))
	assert.False(IsPostURL(""))
}

func TestResolvePostURL(t *testing.T) {
	assert := assert.New(t)
	svc, client, _, _ := newTestService(t)
	ctx := context.Background()

	url, want := insertRemotePost(client, "did:plc:alice111", "abc", &appbsky.FeedPost{Text: "plain post"})
	ref, root := svc.ResolvePostURL(ctx, url)
	require.NotNil(t, ref)
	assert.Equal(want.Uri, ref.Uri)
	assert.Equal(want.Cid, ref.Cid)
	assert.Nil(root)
}

func TestResolvePostURLWithRoot(t *testing.T) {
	assert := assert.New(t)
	svc, client, _, _ := newTestService(t)
	ctx := context.Background()

	rootRef := &comatproto.RepoStrongRef{Cid: "bafy-r", Uri: "at://did:plc:x/app.bsky.feed.post/r"}
	url, _ := insertRemotePost(client, "did:plc:alice111", "leaf", &appbsky.FeedPost{
		Text: "reply in thread",
		Reply: &appbsky.FeedPost_ReplyRef{
			Parent: &comatproto.RepoStrongRef{Cid: "bafy-p", Uri: "at://did:plc:x/app.bsky.feed.post/p"},
			Root:   rootRef,
		},
	})

	ref, root := svc.ResolvePostURL(ctx, url)
	require.NotNil(t, ref)
	require.NotNil(t, root)
	assert.Equal(rootRef.Uri, root.Uri)
}

func TestResolvePostURLSoftFailures(t *testing.T) {
	assert := assert.New(t)
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	// not a post URL shape
	ref, root := svc.ResolvePostURL(ctx, "https://example.com/whatever")
	assert.Nil(ref)
	assert.Nil(root)

	// unknown handle
	ref, root = svc.ResolvePostURL(ctx, "https://bsky.app/profile/ghost.example.com/post/abc")
	assert.Nil(ref)
	assert.Nil(root)

	// known handle, missing record
	ref, root = svc.ResolvePostURL(ctx, "https://bsky.app/profile/alice.example.com/post/gone")
	assert.Nil(ref)
	assert.Nil(root)
}
