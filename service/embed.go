package service

import (
	"context"
	"fmt"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
)

// Image is one photo attached to a post, before upload.
type Image struct {
	Data []byte
	Alt  string
}

// buildEmbed picks and constructs the single embed for a post, from its
// photos and an optional quote-or-link target URL. Precedence:
//
//  1. photos + resolvable post URL  -> quoted post with media
//  2. photos (target absent, not a post URL, or unresolvable) -> images
//  3. no photos + resolvable post URL -> quoted post
//  4. no photos + other target -> external link card
//  5. neither -> no embed
//
// Target resolution is a soft-fail: an unresolvable post URL falls through
// to the external-link shape rather than erroring. Blob upload failures are
// hard errors.
func (s *Service) buildEmbed(ctx context.Context, images []Image, target string) (*appbsky.FeedPost_Embed, error) {
	if len(images) == 0 && target == "" {
		return nil, nil
	}

	var quoted *comatproto.RepoStrongRef
	if target != "" && IsPostURL(target) {
		if ref, _ := s.ResolvePostURL(ctx, target); ref != nil {
			quoted = ref
		}
	}

	if len(images) > 0 {
		uploaded, err := s.uploadImages(ctx, images)
		if err != nil {
			return nil, err
		}
		if quoted != nil {
			return &appbsky.FeedPost_Embed{
				EmbedRecordWithMedia: &appbsky.EmbedRecordWithMedia{
					Record: &appbsky.EmbedRecord{Record: quoted},
					Media: &appbsky.EmbedRecordWithMedia_Media{
						EmbedImages: &appbsky.EmbedImages{Images: uploaded},
					},
				},
			}, nil
		}
		// Images take visual precedence over a non-post link; the images
		// embed has no link slot, so the URL only survives as a link facet.
		return &appbsky.FeedPost_Embed{
			EmbedImages: &appbsky.EmbedImages{Images: uploaded},
		}, nil
	}

	if quoted != nil {
		return &appbsky.FeedPost_Embed{
			EmbedRecord: &appbsky.EmbedRecord{Record: quoted},
		}, nil
	}
	return &appbsky.FeedPost_Embed{
		EmbedExternal: &appbsky.EmbedExternal{
			External: &appbsky.EmbedExternal_External{Uri: target},
		},
	}, nil
}

// uploadImages uploads each photo in order, measuring its pixel dimensions
// for the aspect ratio hint. A photo that can't be decoded still embeds,
// just without the hint.
func (s *Service) uploadImages(ctx context.Context, images []Image) ([]*appbsky.EmbedImages_Image, error) {
	out := make([]*appbsky.EmbedImages_Image, 0, len(images))
	for i, img := range images {
		blob, err := s.client.UploadBlob(ctx, img.Data)
		if err != nil {
			return nil, fmt.Errorf("uploading image %d: %w", i+1, err)
		}
		embedded := &appbsky.EmbedImages_Image{
			Alt:   img.Alt,
			Image: blob,
		}
		if width, height, err := s.measure(img.Data); err == nil {
			embedded.AspectRatio = &appbsky.EmbedDefs_AspectRatio{Width: width, Height: height}
		} else {
			s.logger.Warn("could not measure image dimensions", "index", i, "err", err)
		}
		out = append(out, embedded)
	}
	return out, nil
}
