package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/maurelioredfox/bsky-bot/store"
)

// CommandKind tags the operation a Command carries.
type CommandKind string

const (
	CmdPost          CommandKind = "post"
	CmdReply         CommandKind = "reply"
	CmdDelete        CommandKind = "delete"
	CmdList          CommandKind = "list"
	CmdRepost        CommandKind = "repost"
	CmdProfileUpdate CommandKind = "profile_update"
	CmdAddToList     CommandKind = "add_to_list"
)

// Command is a tagged variant: exactly the field matching Kind is set, and
// the constructors reject variants missing required fields up front.
type Command struct {
	Kind CommandKind

	Post    *PostInput
	Reply   *ReplyInput
	Delete  *DeleteInput
	List    *ListInput
	Repost  *RepostInput
	Profile *ProfileUpdate
	ListAdd *AddToListInput
}

type ReplyInput struct {
	ID   uint
	Text string
}

type DeleteInput struct {
	ID uint
}

type ListInput struct {
	Limit int
}

type RepostInput struct {
	URL string
}

type AddToListInput struct {
	Handle string
}

func NewPostCommand(in PostInput) (Command, error) {
	if in.Text == "" && len(in.Images) == 0 {
		return Command{}, ErrEmptyPost
	}
	if len(in.Images) > maxImagesPerPost {
		return Command{}, ErrTooManyImages
	}
	return Command{Kind: CmdPost, Post: &in}, nil
}

func NewReplyCommand(id uint, text string) (Command, error) {
	if text == "" {
		return Command{}, ErrEmptyPost
	}
	return Command{Kind: CmdReply, Reply: &ReplyInput{ID: id, Text: text}}, nil
}

func NewDeleteCommand(id uint) Command {
	return Command{Kind: CmdDelete, Delete: &DeleteInput{ID: id}}
}

func NewListCommand(limit int) Command {
	return Command{Kind: CmdList, List: &ListInput{Limit: limit}}
}

func NewRepostCommand(url string) (Command, error) {
	if !IsPostURL(url) {
		return Command{}, fmt.Errorf("%w: %s", ErrNotAPostURL, url)
	}
	return Command{Kind: CmdRepost, Repost: &RepostInput{URL: url}}, nil
}

func NewProfileUpdateCommand(in ProfileUpdate) (Command, error) {
	if in.DisplayName == nil && in.Description == nil && len(in.Avatar) == 0 && len(in.Banner) == 0 {
		return Command{}, ErrNoProfileFields
	}
	return Command{Kind: CmdProfileUpdate, Profile: &in}, nil
}

func NewAddToListCommand(handle string) (Command, error) {
	if handle == "" {
		return Command{}, errors.New("handle must not be empty")
	}
	return Command{Kind: CmdAddToList, ListAdd: &AddToListInput{Handle: handle}}, nil
}

// Result is what a successful command produced, for the caller to report.
type Result struct {
	Post  *store.Post
	Posts []store.Post
}

// Execute dispatches one command. Errors bubble up to the single caller-side
// boundary that reports them; nothing is swallowed here.
func (s *Service) Execute(ctx context.Context, cmd Command) (*Result, error) {
	res, err := s.execute(ctx, cmd)
	status := "ok"
	if err != nil {
		status = "error"
	}
	commandsExecuted.WithLabelValues(string(cmd.Kind), status).Inc()
	return res, err
}

func (s *Service) execute(ctx context.Context, cmd Command) (*Result, error) {
	switch cmd.Kind {
	case CmdPost:
		post, err := s.CreatePost(ctx, *cmd.Post)
		if err != nil {
			return nil, err
		}
		return &Result{Post: post}, nil
	case CmdReply:
		post, err := s.ReplyToStoredPost(ctx, cmd.Reply.ID, cmd.Reply.Text)
		if err != nil {
			return nil, err
		}
		return &Result{Post: post}, nil
	case CmdDelete:
		return nil, s.DeletePost(ctx, cmd.Delete.ID)
	case CmdList:
		posts, err := s.ListPosts(ctx, cmd.List.Limit)
		if err != nil {
			return nil, err
		}
		return &Result{Posts: posts}, nil
	case CmdRepost:
		post, err := s.Repost(ctx, cmd.Repost.URL)
		if err != nil {
			return nil, err
		}
		return &Result{Post: post}, nil
	case CmdProfileUpdate:
		return nil, s.UpdateProfile(ctx, *cmd.Profile)
	case CmdAddToList:
		return nil, s.AddToList(ctx, cmd.ListAdd.Handle)
	default:
		return nil, fmt.Errorf("unknown command kind: %q", cmd.Kind)
	}
}
