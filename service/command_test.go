package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandConstructorsValidate(t *testing.T) {
	assert := assert.New(t)

	_, err := NewPostCommand(PostInput{})
	assert.ErrorIs(err, ErrEmptyPost)

	_, err = NewPostCommand(PostInput{Images: make([]Image, 5)})
	assert.ErrorIs(err, ErrTooManyImages)

	cmd, err := NewPostCommand(PostInput{Text: "hi"})
	assert.NoError(err)
	assert.Equal(CmdPost, cmd.Kind)
	assert.NotNil(cmd.Post)

	_, err = NewReplyCommand(1, "")
	assert.ErrorIs(err, ErrEmptyPost)

	_, err = NewRepostCommand("https://example.com/x")
	assert.ErrorIs(err, ErrNotAPostURL)

	_, err = NewProfileUpdateCommand(ProfileUpdate{})
	assert.ErrorIs(err, ErrNoProfileFields)

	_, err = NewAddToListCommand("")
	assert.Error(err)
}

func TestExecuteDispatch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	cmd, err := NewPostCommand(PostInput{Text: "dispatched"})
	require.NoError(err)
	res, err := svc.Execute(ctx, cmd)
	require.NoError(err)
	require.NotNil(res.Post)
	assert.Equal("dispatched", res.Post.Text)

	res, err = svc.Execute(ctx, NewListCommand(10))
	require.NoError(err)
	require.Len(res.Posts, 1)
	assert.Equal("dispatched", res.Posts[0].Text)

	_, err = svc.Execute(ctx, NewDeleteCommand(res.Posts[0].ID))
	require.NoError(err)

	_, err = svc.Execute(ctx, NewDeleteCommand(999))
	assert.ErrorIs(err, ErrPostNotFound)

	_, err = svc.Execute(ctx, Command{Kind: "bogus"})
	assert.Error(err)
}
