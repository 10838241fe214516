package service

import (
	"context"
	"regexp"

	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
)

// Facet indices are byte offsets into the UTF-8 text, per the richtext
// lexicon, so all scanning here works on byte positions.
var (
	mentionRegex = regexp.MustCompile(`(?:^|[^a-zA-Z0-9_])(@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+)`)
	urlRegex     = regexp.MustCompile(`https?://[^\s<>"]*[^\s<>".,;:!?)\]']`)
)

type SpanKind string

const (
	SpanMention SpanKind = "mention"
	SpanLink    SpanKind = "link"
)

// Span is a half-open byte range [Start, End) into the post text.
type Span struct {
	Start int64
	End   int64
	Kind  SpanKind
	Value string
}

// ParseMentions finds @handle tokens preceded by start-of-text or a non-word
// byte. Spans bound the handle itself, excluding the leading '@'.
func ParseMentions(text string) []Span {
	var spans []Span
	for _, m := range mentionRegex.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		spans = append(spans, Span{
			Start: int64(start + 1), // skip the '@'
			End:   int64(end),
			Kind:  SpanMention,
			Value: text[start+1 : end],
		})
	}
	return spans
}

// ParseURLs finds http(s) URLs, in scan order.
func ParseURLs(text string) []Span {
	var spans []Span
	for _, m := range urlRegex.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{
			Start: int64(m[0]),
			End:   int64(m[1]),
			Kind:  SpanLink,
			Value: text[m[0]:m[1]],
		})
	}
	return spans
}

// BuildFacets computes richtext facets for the post text: mention facets
// first (in scan order), then link facets. A handle that fails to resolve is
// dropped without failing the rest.
func (s *Service) BuildFacets(ctx context.Context, text string) []*appbsky.RichtextFacet {
	var facets []*appbsky.RichtextFacet

	for _, span := range ParseMentions(text) {
		handle, err := syntax.ParseHandle(span.Value)
		if err != nil {
			s.logger.Debug("skipping invalid mention handle", "handle", span.Value, "err", err)
			continue
		}
		ident, err := s.dir.LookupHandle(ctx, handle)
		if err != nil {
			s.logger.Debug("skipping unresolvable mention", "handle", span.Value, "err", err)
			continue
		}
		facets = append(facets, &appbsky.RichtextFacet{
			Index: &appbsky.RichtextFacet_ByteSlice{ByteStart: span.Start, ByteEnd: span.End},
			Features: []*appbsky.RichtextFacet_Features_Elem{{
				RichtextFacet_Mention: &appbsky.RichtextFacet_Mention{Did: ident.DID.String()},
			}},
		})
	}

	for _, span := range ParseURLs(text) {
		facets = append(facets, &appbsky.RichtextFacet{
			Index: &appbsky.RichtextFacet_ByteSlice{ByteStart: span.Start, ByteEnd: span.End},
			Features: []*appbsky.RichtextFacet_Features_Elem{{
				RichtextFacet_Link: &appbsky.RichtextFacet_Link{Uri: span.Value},
			}},
		})
	}

	return facets
}
