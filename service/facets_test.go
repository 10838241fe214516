package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMentions(t *testing.T) {
	assert := assert.New(t)

	spans := ParseMentions("hello @alice.example.com how are you")
	require.Len(t, spans, 1)
	assert.Equal("alice.example.com", spans[0].Value)
	assert.Equal(SpanMention, spans[0].Kind)
	assert.Equal(int64(7), spans[0].Start)
	assert.Equal(int64(24), spans[0].End)
	assert.Equal("alice.example.com", "hello @alice.example.com how are you"[spans[0].Start:spans[0].End])

	// offsets are byte offsets, not rune offsets
	text := "héllo @alice.example.com"
	spans = ParseMentions(text)
	require.Len(t, spans, 1)
	assert.Equal("alice.example.com", text[spans[0].Start:spans[0].End])

	// start of string counts as a boundary
	spans = ParseMentions("@alice.example.com says hi")
	require.Len(t, spans, 1)
	assert.Equal(int64(1), spans[0].Start)

	// preceded by a word character: not a mention
	assert.Empty(ParseMentions("mail@alice.example.com"))

	// bare words without a dot are not handles
	assert.Empty(ParseMentions("hey @everyone"))

	// multiple mentions come back in scan order
	spans = ParseMentions("@alice.example.com and @bob.example.com")
	require.Len(t, spans, 2)
	assert.Equal("alice.example.com", spans[0].Value)
	assert.Equal("bob.example.com", spans[1].Value)
}

func TestParseURLs(t *testing.T) {
	assert := assert.New(t)

	text := "see https://example.com/a and http://other.net/b?q=1"
	spans := ParseURLs(text)
	require.Len(t, spans, 2)
	assert.Equal("https://example.com/a", spans[0].Value)
	assert.Equal("http://other.net/b?q=1", spans[1].Value)
	assert.Equal(spans[0].Value, text[spans[0].Start:spans[0].End])
	assert.Equal(spans[1].Value, text[spans[1].Start:spans[1].End])
	assert.Less(spans[0].Start, spans[1].Start)

	// trailing sentence punctuation stays out of the span
	spans = ParseURLs("look at https://example.com/page.")
	require.Len(t, spans, 1)
	assert.Equal("https://example.com/page", spans[0].Value)

	assert.Empty(ParseURLs("no links here"))
}

func TestBuildFacetsOrderAndResolution(t *testing.T) {
	assert := assert.New(t)
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	text := "https://example.com first, then @alice.example.com and @bob.example.com plus https://other.net"
	facets := svc.BuildFacets(ctx, text)
	require.Len(t, facets, 4)

	// mentions first in text order, then links in text order
	assert.Equal("did:plc:alice111", facets[0].Features[0].RichtextFacet_Mention.Did)
	assert.Equal("did:plc:bob222", facets[1].Features[0].RichtextFacet_Mention.Did)
	assert.Equal("https://example.com", facets[2].Features[0].RichtextFacet_Link.Uri)
	assert.Equal("https://other.net", facets[3].Features[0].RichtextFacet_Link.Uri)

	for _, f := range facets {
		assert.True(f.Index.ByteStart < f.Index.ByteEnd)
		assert.True(f.Index.ByteEnd <= int64(len(text)))
	}
}

func TestBuildFacetsSkipsUnresolvableMentions(t *testing.T) {
	assert := assert.New(t)
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	text := "@ghost.example.com @alice.example.com https://example.com"
	facets := svc.BuildFacets(ctx, text)
	require.Len(t, facets, 2)
	assert.Equal("did:plc:alice111", facets[0].Features[0].RichtextFacet_Mention.Did)
	assert.Equal("https://example.com", facets[1].Features[0].RichtextFacet_Link.Uri)
}

func TestBuildFacetsEmptyText(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	assert.Empty(t, svc.BuildFacets(context.Background(), ""))
}

func TestMentionSpanWithinLongText(t *testing.T) {
	assert := assert.New(t)

	prefix := strings.Repeat("x", 100) + " "
	text := prefix + "@alice.example.com"
	spans := ParseMentions(text)
	require.Len(t, spans, 1)
	assert.Equal(int64(len(prefix)+1), spans[0].Start)
	assert.Equal(int64(len(text)), spans[0].End)
}
