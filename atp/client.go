// Package atp wraps an authenticated xrpc session against the account's PDS
// with the handful of repo operations the bot needs.
package atp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/hashicorp/go-retryablehttp"
)

// Session is a logged-in xrpc client bound to a single account repo.
type Session struct {
	client *xrpc.Client
	logger *slog.Logger
}

type retryLogger struct {
	logger *slog.Logger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.logger.Warn(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.logger.Warn(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.logger.Info(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.logger.Debug(msg, kv...) }

// robustHTTPClient retries connection errors, 5xx, and 429 (respecting
// Retry-After), logging intermediate failures at WARN.
func robustHTTPClient(logger *slog.Logger) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(retryLogger{logger})
	client := retryClient.StandardClient()
	client.Timeout = 30 * time.Second
	return client
}

// NewSession logs in with an identifier (handle or DID) and app password.
func NewSession(ctx context.Context, host, identifier, password string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := &xrpc.Client{
		Client: robustHTTPClient(logger.With("subsystem", "http")),
		Host:   host,
	}
	sess, err := comatproto.ServerCreateSession(ctx, client, &comatproto.ServerCreateSession_Input{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  sess.AccessJwt,
		RefreshJwt: sess.RefreshJwt,
		Handle:     sess.Handle,
		Did:        sess.Did,
	}
	logger.Info("logged in", "handle", sess.Handle, "did", sess.Did)
	return &Session{client: client, logger: logger}, nil
}

// Did returns the account's DID.
func (s *Session) Did() string {
	return s.client.Auth.Did
}

// FetchPost reads a post record out of another account's repo, returning the
// record along with its current CID and at:// URI.
func (s *Session) FetchPost(ctx context.Context, did, rkey string) (*appbsky.FeedPost, *comatproto.RepoStrongRef, error) {
	out, err := comatproto.RepoGetRecord(ctx, s.client, "", "app.bsky.feed.post", did, rkey)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching post record: %w", err)
	}
	if out.Cid == nil {
		return nil, nil, fmt.Errorf("fetched post record missing CID: %s", out.Uri)
	}
	post, ok := out.Value.Val.(*appbsky.FeedPost)
	if !ok {
		return nil, nil, fmt.Errorf("fetched record is not a post: %s", out.Uri)
	}
	return post, &comatproto.RepoStrongRef{Cid: *out.Cid, Uri: out.Uri}, nil
}

// UploadBlob uploads raw bytes (eg, an image) and returns the blob ref.
func (s *Session) UploadBlob(ctx context.Context, data []byte) (*lexutil.LexBlob, error) {
	out, err := comatproto.RepoUploadBlob(ctx, s.client, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("uploading blob: %w", err)
	}
	return out.Blob, nil
}

// PublishPost creates the post record in the account's repo.
func (s *Session) PublishPost(ctx context.Context, post *appbsky.FeedPost) (*comatproto.RepoStrongRef, error) {
	post.CreatedAt = syntax.DatetimeNow().String()
	resp, err := comatproto.RepoCreateRecord(ctx, s.client, &comatproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       s.client.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return nil, fmt.Errorf("creating post record: %w", err)
	}
	return &comatproto.RepoStrongRef{Cid: resp.Cid, Uri: resp.Uri}, nil
}

// DeletePost removes a post record (by at:// URI) from the account's repo.
func (s *Session) DeletePost(ctx context.Context, uri string) error {
	aturi, err := syntax.ParseATURI(uri)
	if err != nil {
		return fmt.Errorf("parsing post URI: %w", err)
	}
	_, err = comatproto.RepoDeleteRecord(ctx, s.client, &comatproto.RepoDeleteRecord_Input{
		Collection: aturi.Collection().String(),
		Repo:       s.client.Auth.Did,
		Rkey:       aturi.RecordKey().String(),
	})
	if err != nil {
		return fmt.Errorf("deleting post record: %w", err)
	}
	return nil
}

// Repost creates a repost record pointing at the subject.
func (s *Session) Repost(ctx context.Context, subject *comatproto.RepoStrongRef) (*comatproto.RepoStrongRef, error) {
	repost := &appbsky.FeedRepost{
		CreatedAt: syntax.DatetimeNow().String(),
		Subject:   subject,
	}
	resp, err := comatproto.RepoCreateRecord(ctx, s.client, &comatproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.repost",
		Repo:       s.client.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: repost},
	})
	if err != nil {
		return nil, fmt.Errorf("creating repost record: %w", err)
	}
	return &comatproto.RepoStrongRef{Cid: resp.Cid, Uri: resp.Uri}, nil
}

// FetchProfile reads the account's own profile record. A missing record is
// not an error; both returns are nil.
func (s *Session) FetchProfile(ctx context.Context) (*appbsky.ActorProfile, *string, error) {
	out, err := comatproto.RepoGetRecord(ctx, s.client, "", "app.bsky.actor.profile", s.client.Auth.Did, "self")
	if err != nil {
		// an account that never set a profile has no record at all
		s.logger.Debug("no existing profile record", "err", err)
		return nil, nil, nil
	}
	profile, ok := out.Value.Val.(*appbsky.ActorProfile)
	if !ok {
		return nil, nil, fmt.Errorf("fetched record is not a profile: %s", out.Uri)
	}
	return profile, out.Cid, nil
}

// PutProfile writes the account's profile record, guarded by the CID of the
// version read earlier so concurrent writes fail instead of clobbering.
func (s *Session) PutProfile(ctx context.Context, profile *appbsky.ActorProfile, swapRecord *string) error {
	_, err := comatproto.RepoPutRecord(ctx, s.client, &comatproto.RepoPutRecord_Input{
		Collection: "app.bsky.actor.profile",
		Repo:       s.client.Auth.Did,
		Rkey:       "self",
		SwapRecord: swapRecord,
		Record:     &lexutil.LexiconTypeDecoder{Val: profile},
	})
	if err != nil {
		return fmt.Errorf("updating profile record: %w", err)
	}
	return nil
}

// AddListItem adds a subject account to a list owned by this account.
func (s *Session) AddListItem(ctx context.Context, listURI, subjectDid string) error {
	item := &appbsky.GraphListitem{
		CreatedAt: syntax.DatetimeNow().String(),
		List:      listURI,
		Subject:   subjectDid,
	}
	_, err := comatproto.RepoCreateRecord(ctx, s.client, &comatproto.RepoCreateRecord_Input{
		Collection: "app.bsky.graph.listitem",
		Repo:       s.client.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: item},
	})
	if err != nil {
		return fmt.Errorf("creating listitem record: %w", err)
	}
	return nil
}
