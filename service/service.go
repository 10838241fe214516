// Package service composes, publishes, and tracks Bluesky posts on behalf of
// the bot: richtext facet construction, post-URL resolution, embed selection,
// reply threading, and the local record of everything authored.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/identity"
	"github.com/bluesky-social/indigo/atproto/syntax"
	lexutil "github.com/bluesky-social/indigo/lex/util"

	"github.com/maurelioredfox/bsky-bot/store"
)

// Validation errors: bad caller input, reported once, never retried.
var (
	ErrEmptyPost            = errors.New("a post needs text or at least one image")
	ErrTooManyImages        = errors.New("a post can carry at most 4 images")
	ErrPostNotFound         = errors.New("post not found")
	ErrReplyTargetNotFound  = errors.New("reply target not found")
	ErrRepostTargetNotFound = errors.New("repost target not found")
	ErrNotAPostURL          = errors.New("not a bluesky post URL")
	ErrNoProfileFields      = errors.New("at least one profile field must be provided")
	ErrNoListConfigured     = errors.New("no bluesky list is configured")
)

const maxImagesPerPost = 4

// Client is the network client for the account's PDS.
type Client interface {
	Did() string
	FetchPost(ctx context.Context, did, rkey string) (*appbsky.FeedPost, *comatproto.RepoStrongRef, error)
	UploadBlob(ctx context.Context, data []byte) (*lexutil.LexBlob, error)
	PublishPost(ctx context.Context, post *appbsky.FeedPost) (*comatproto.RepoStrongRef, error)
	DeletePost(ctx context.Context, uri string) error
	Repost(ctx context.Context, subject *comatproto.RepoStrongRef) (*comatproto.RepoStrongRef, error)
	FetchProfile(ctx context.Context) (*appbsky.ActorProfile, *string, error)
	PutProfile(ctx context.Context, profile *appbsky.ActorProfile, swapRecord *string) error
	AddListItem(ctx context.Context, listURI, subjectDid string) error
}

// PostStore is the local record of authored posts. The service is the only
// writer; callers serialize operations per conversational context.
type PostStore interface {
	List(limit int) ([]store.Post, error)
	Get(id uint) (*store.Post, error)
	GetByUri(uri string) (*store.Post, error)
	Save(post *store.Post) error
	Delete(id uint) error
}

type Service struct {
	client  Client
	dir     identity.Directory
	store   PostStore
	listURI string
	measure ImageSizeFunc
	logger  *slog.Logger
}

func New(client Client, dir identity.Directory, posts PostStore, listURI string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:  client,
		dir:     dir,
		store:   posts,
		listURI: listURI,
		measure: DecodeImageSize,
		logger:  logger.With("subsystem", "service"),
	}
}

// PostInput is everything a new post can carry. QuoteOrLink may be a Bluesky
// post permalink (becomes a quote) or any other URL (becomes a link card);
// ReplyTo must be a Bluesky post permalink.
type PostInput struct {
	Text        string
	Images      []Image
	QuoteOrLink string
	ReplyTo     string
}

// CreatePost validates, annotates, embeds, publishes, and records a post.
func (s *Service) CreatePost(ctx context.Context, in PostInput) (*store.Post, error) {
	if in.Text == "" && len(in.Images) == 0 {
		return nil, ErrEmptyPost
	}
	if len(in.Images) > maxImagesPerPost {
		return nil, ErrTooManyImages
	}

	var reply *appbsky.FeedPost_ReplyRef
	if in.ReplyTo != "" {
		parent, root := s.ResolvePostURL(ctx, in.ReplyTo)
		if parent == nil {
			return nil, fmt.Errorf("%w: %s", ErrReplyTargetNotFound, in.ReplyTo)
		}
		if root == nil {
			root = parent
		}
		reply = &appbsky.FeedPost_ReplyRef{Parent: parent, Root: root}
	}

	facets := s.BuildFacets(ctx, in.Text)
	embed, err := s.buildEmbed(ctx, in.Images, in.QuoteOrLink)
	if err != nil {
		return nil, err
	}

	ref, err := s.client.PublishPost(ctx, &appbsky.FeedPost{
		Text:   in.Text,
		Facets: facets,
		Embed:  embed,
		Reply:  reply,
	})
	if err != nil {
		return nil, fmt.Errorf("publishing post: %w", err)
	}

	post := &store.Post{Text: in.Text, Cid: ref.Cid, Uri: ref.Uri}
	if reply != nil {
		// thread linkage against local storage only; the remote chain may
		// include posts the bot never authored
		if parent, err := s.store.GetByUri(reply.Parent.Uri); err == nil {
			post.ParentID = &parent.ID
		}
		if root, err := s.store.GetByUri(reply.Root.Uri); err == nil {
			post.RootID = &root.ID
		}
	}
	if err := s.store.Save(post); err != nil {
		return nil, fmt.Errorf("recording post %s: %w", ref.Uri, err)
	}
	s.logger.Info("created post", "uri", ref.Uri, "id", post.ID)
	return post, nil
}

// ReplyToStoredPost publishes a reply to a post the bot authored earlier,
// identified by its local id. The thread root comes from the local chain,
// defaulting to the target itself when it has none.
func (s *Service) ReplyToStoredPost(ctx context.Context, id uint, text string) (*store.Post, error) {
	if text == "" {
		return nil, ErrEmptyPost
	}
	parent, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrPostNotFound, id)
		}
		return nil, err
	}

	root := parent
	if parent.RootID != nil {
		if r, err := s.store.Get(*parent.RootID); err == nil {
			root = r
		} else {
			s.logger.Warn("stored root missing, threading from parent", "id", id, "root_id", *parent.RootID)
		}
	}

	ref, err := s.client.PublishPost(ctx, &appbsky.FeedPost{
		Text:   text,
		Facets: s.BuildFacets(ctx, text),
		Reply: &appbsky.FeedPost_ReplyRef{
			Parent: &comatproto.RepoStrongRef{Cid: parent.Cid, Uri: parent.Uri},
			Root:   &comatproto.RepoStrongRef{Cid: root.Cid, Uri: root.Uri},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("publishing reply: %w", err)
	}

	post := &store.Post{
		Text:     text,
		Cid:      ref.Cid,
		Uri:      ref.Uri,
		ParentID: &parent.ID,
		RootID:   &root.ID,
	}
	if err := s.store.Save(post); err != nil {
		return nil, fmt.Errorf("recording reply %s: %w", ref.Uri, err)
	}
	s.logger.Info("created reply", "uri", ref.Uri, "id", post.ID, "parent", parent.ID)
	return post, nil
}

// Repost reposts an existing Bluesky post by permalink.
func (s *Service) Repost(ctx context.Context, url string) (*store.Post, error) {
	if !IsPostURL(url) {
		return nil, fmt.Errorf("%w: %s", ErrNotAPostURL, url)
	}
	subject, _ := s.ResolvePostURL(ctx, url)
	if subject == nil {
		return nil, fmt.Errorf("%w: %s", ErrRepostTargetNotFound, url)
	}
	ref, err := s.client.Repost(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("publishing repost: %w", err)
	}
	post := &store.Post{Cid: ref.Cid, Uri: ref.Uri, RepostOf: url}
	if err := s.store.Save(post); err != nil {
		return nil, fmt.Errorf("recording repost %s: %w", ref.Uri, err)
	}
	s.logger.Info("created repost", "uri", ref.Uri, "subject", url)
	return post, nil
}

// DeletePost deletes a locally tracked post remotely and then locally.
// Replies referencing it keep their (now dangling) parent/root ids.
func (s *Service) DeletePost(ctx context.Context, id uint) error {
	post, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: id %d", ErrPostNotFound, id)
		}
		return err
	}
	if err := s.client.DeletePost(ctx, post.Uri); err != nil {
		return err
	}
	if err := s.store.Delete(id); err != nil {
		return fmt.Errorf("removing local record %d: %w", id, err)
	}
	s.logger.Info("deleted post", "uri", post.Uri, "id", id)
	return nil
}

// ListPosts returns the most recently authored posts, newest first.
func (s *Service) ListPosts(ctx context.Context, limit int) ([]store.Post, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.List(limit)
}

// ProfileUpdate carries the profile fields to change; nil/empty fields keep
// their current values.
type ProfileUpdate struct {
	DisplayName *string
	Description *string
	Avatar      []byte
	Banner      []byte
}

// UpdateProfile merges the given fields into the current profile record and
// writes it back, guarded against concurrent modification.
func (s *Service) UpdateProfile(ctx context.Context, in ProfileUpdate) error {
	if in.DisplayName == nil && in.Description == nil && len(in.Avatar) == 0 && len(in.Banner) == 0 {
		return ErrNoProfileFields
	}

	profile, swapCid, err := s.client.FetchProfile(ctx)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &appbsky.ActorProfile{}
	}

	if in.DisplayName != nil {
		profile.DisplayName = in.DisplayName
	}
	if in.Description != nil {
		profile.Description = in.Description
	}
	if len(in.Avatar) > 0 {
		blob, err := s.client.UploadBlob(ctx, in.Avatar)
		if err != nil {
			return fmt.Errorf("uploading avatar: %w", err)
		}
		profile.Avatar = blob
	}
	if len(in.Banner) > 0 {
		blob, err := s.client.UploadBlob(ctx, in.Banner)
		if err != nil {
			return fmt.Errorf("uploading banner: %w", err)
		}
		profile.Banner = blob
	}

	if err := s.client.PutProfile(ctx, profile, swapCid); err != nil {
		return err
	}
	s.logger.Info("updated profile")
	return nil
}

// AddToList adds an account (by handle) to the configured list.
func (s *Service) AddToList(ctx context.Context, rawHandle string) error {
	if s.listURI == "" {
		return ErrNoListConfigured
	}
	handle, err := syntax.ParseHandle(rawHandle)
	if err != nil {
		return fmt.Errorf("invalid handle %q: %w", rawHandle, err)
	}
	ident, err := s.dir.LookupHandle(ctx, handle)
	if err != nil {
		return fmt.Errorf("resolving handle %q: %w", rawHandle, err)
	}
	if err := s.client.AddListItem(ctx, s.listURI, ident.DID.String()); err != nil {
		return err
	}
	s.logger.Info("added to list", "handle", rawHandle, "list", s.listURI)
	return nil
}
