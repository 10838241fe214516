package service

import (
	"context"
	"testing"

	appbsky "github.com/bluesky-social/indigo/api/bsky"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEmbedNone(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	embed, err := svc.buildEmbed(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Nil(t, embed)
}

func TestBuildEmbedImages(t *testing.T) {
	assert := assert.New(t)
	svc, client, _, _ := newTestService(t)

	images := []Image{
		{Data: []byte("img-one"), Alt: "first"},
		{Data: []byte("img-two"), Alt: "second"},
	}
	embed, err := svc.buildEmbed(context.Background(), images, "")
	require.NoError(t, err)
	require.NotNil(t, embed)
	require.NotNil(t, embed.EmbedImages)
	assert.Nil(embed.EmbedExternal)
	assert.Nil(embed.EmbedRecord)
	assert.Nil(embed.EmbedRecordWithMedia)

	got := embed.EmbedImages.Images
	require.Len(t, got, 2)
	// upload order preserved
	assert.Equal("first", got[0].Alt)
	assert.Equal("second", got[1].Alt)
	assert.Equal([]byte("img-one"), client.uploads[0])
	assert.Equal([]byte("img-two"), client.uploads[1])
	require.NotNil(t, got[0].AspectRatio)
	assert.Equal(int64(640), got[0].AspectRatio.Width)
	assert.Equal(int64(480), got[0].AspectRatio.Height)
}

func TestBuildEmbedImagesWithPlainLink(t *testing.T) {
	assert := assert.New(t)
	svc, _, _, _ := newTestService(t)

	// a non-post link alongside photos: images win, no external embed
	embed, err := svc.buildEmbed(context.Background(), []Image{{Data: []byte("x")}}, "https://example.com/article")
	require.NoError(t, err)
	require.NotNil(t, embed)
	assert.NotNil(embed.EmbedImages)
	assert.Nil(embed.EmbedExternal)
	assert.Nil(embed.EmbedRecordWithMedia)
}

func TestBuildEmbedRecord(t *testing.T) {
	assert := assert.New(t)
	svc, client, _, _ := newTestService(t)

	url, ref := insertRemotePost(client, "did:plc:alice111", "quoteme", &appbsky.FeedPost{Text: "quote this"})
	embed, err := svc.buildEmbed(context.Background(), nil, url)
	require.NoError(t, err)
	require.NotNil(t, embed)
	require.NotNil(t, embed.EmbedRecord)
	assert.Equal(ref.Uri, embed.EmbedRecord.Record.Uri)
	assert.Nil(embed.EmbedImages)
	assert.Nil(embed.EmbedExternal)
}

func TestBuildEmbedRecordWithMedia(t *testing.T) {
	assert := assert.New(t)
	svc, client, _, _ := newTestService(t)

	url, ref := insertRemotePost(client, "did:plc:alice111", "quoteme", &appbsky.FeedPost{Text: "quote this"})
	embed, err := svc.buildEmbed(context.Background(), []Image{{Data: []byte("pic")}}, url)
	require.NoError(t, err)
	require.NotNil(t, embed)
	rwm := embed.EmbedRecordWithMedia
	require.NotNil(t, rwm)
	assert.Equal(ref.Uri, rwm.Record.Record.Uri)
	require.NotNil(t, rwm.Media)
	require.NotNil(t, rwm.Media.EmbedImages)
	assert.Len(rwm.Media.EmbedImages.Images, 1)
}

func TestBuildEmbedExternal(t *testing.T) {
	assert := assert.New(t)
	svc, _, _, _ := newTestService(t)

	embed, err := svc.buildEmbed(context.Background(), nil, "https://example.com/article")
	require.NoError(t, err)
	require.NotNil(t, embed)
	require.NotNil(t, embed.EmbedExternal)
	assert.Equal("https://example.com/article", embed.EmbedExternal.External.Uri)
}

func TestBuildEmbedUnresolvablePostURLFallsBackToExternal(t *testing.T) {
	assert := assert.New(t)
	svc, _, _, _ := newTestService(t)

	// post-shaped URL that doesn't resolve: degrade to an external link card
	url := "https://bsky.app/profile/alice.example.com/post/private"
	embed, err := svc.buildEmbed(context.Background(), nil, url)
	require.NoError(t, err)
	require.NotNil(t, embed)
	require.NotNil(t, embed.EmbedExternal)
	assert.Equal(url, embed.EmbedExternal.External.Uri)
	assert.Nil(embed.EmbedRecord)
}

func TestBuildEmbedUnmeasurableImageStillEmbeds(t *testing.T) {
	assert := assert.New(t)
	svc, _, _, _ := newTestService(t)
	svc.measure = DecodeImageSize // real decoder against garbage bytes

	embed, err := svc.buildEmbed(context.Background(), []Image{{Data: []byte("not an image")}}, "")
	require.NoError(t, err)
	require.NotNil(t, embed)
	require.NotNil(t, embed.EmbedImages)
	require.Len(t, embed.EmbedImages.Images, 1)
	assert.Nil(embed.EmbedImages.Images[0].AspectRatio)
}
