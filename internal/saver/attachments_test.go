package saver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ostiwe/vksaver/internal/vkapi"
)

type MockLikeService struct {
	mock.Mock
}

func (m *MockLikeService) LikedRefs(ctx context.Context, token string, userID int64, refs []vkapi.LikeRef) ([]string, error) {
	args := m.Called(ctx, token, userID, refs)
	return args.Get(0).([]string), args.Error(1)
}

func photoNode(owner, id int64, key string) Attachment {
	return Attachment{Type: "photo", Photo: &PhotoAttachment{ID: id, OwnerID: owner, AccessKey: key}}
}

func wallNode(attachments ...Attachment) Attachment {
	return Attachment{Type: "wall", Wall: &WallAttachment{Attachments: attachments}}
}

func TestResolver_Resolve_FlattensDepthFirst(t *testing.T) {
	resolver := NewResolver(nil, "token", 1)

	attachments := []Attachment{
		photoNode(1, 10, "a"),
		wallNode(
			photoNode(2, 20, "b"),
			wallNode(photoNode(3, 30, "c")),
		),
		{Type: "doc"},
		photoNode(4, 40, "d"),
	}

	refs := resolver.Resolve(attachments)

	assert.Equal(t, []AttachmentRef{
		{Kind: "photo", OwnerID: 1, ItemID: 10, AccessKey: "a"},
		{Kind: "photo", OwnerID: 2, ItemID: 20, AccessKey: "b"},
		{Kind: "photo", OwnerID: 3, ItemID: 30, AccessKey: "c"},
		{Kind: "photo", OwnerID: 4, ItemID: 40, AccessKey: "d"},
	}, refs)
}

func TestResolver_Filter_EmptyInput(t *testing.T) {
	likes := new(MockLikeService)
	resolver := NewResolver(likes, "token", 1)

	tokens, err := resolver.Filter(context.Background(), nil, true)

	assert.NoError(t, err)
	assert.Empty(t, tokens)
	likes.AssertNotCalled(t, "LikedRefs")
}

func TestResolver_Filter_LikedOnlyDisabled(t *testing.T) {
	likes := new(MockLikeService)
	resolver := NewResolver(likes, "token", 1)

	attachments := []Attachment{photoNode(1, 10, "a"), photoNode(2, 20, "b")}
	tokens, err := resolver.Filter(context.Background(), attachments, false)

	assert.NoError(t, err)
	assert.Equal(t, []string{"1_10_a", "2_20_b"}, tokens)
	likes.AssertNotCalled(t, "LikedRefs")
}

func TestResolver_Filter_KeepsLikedSubset(t *testing.T) {
	likes := new(MockLikeService)
	likes.On("LikedRefs", mock.Anything, "token", int64(7), mock.Anything).
		Return([]string{"photo2_20"}, nil)
	resolver := NewResolver(likes, "token", 7)

	attachments := []Attachment{photoNode(1, 10, "a"), photoNode(2, 20, "b")}
	tokens, err := resolver.Filter(context.Background(), attachments, true)

	assert.NoError(t, err)
	assert.Equal(t, []string{"2_20"}, tokens)
	likes.AssertExpectations(t)
}

// An empty liked result is indistinguishable from an empty response, and the
// bot resolves that ambiguity by keeping everything.
func TestResolver_Filter_EmptyLikedResultKeepsAll(t *testing.T) {
	likes := new(MockLikeService)
	likes.On("LikedRefs", mock.Anything, "token", int64(7), mock.Anything).
		Return([]string{}, nil)
	resolver := NewResolver(likes, "token", 7)

	attachments := []Attachment{photoNode(1, 10, "a"), photoNode(2, 20, "b")}
	tokens, err := resolver.Filter(context.Background(), attachments, true)

	assert.NoError(t, err)
	assert.Equal(t, []string{"1_10_a", "2_20_b"}, tokens)
}

func TestResolver_Filter_LikeCheckError(t *testing.T) {
	likes := new(MockLikeService)
	likes.On("LikedRefs", mock.Anything, "token", int64(7), mock.Anything).
		Return([]string(nil), assert.AnError)
	resolver := NewResolver(likes, "token", 7)

	tokens, err := resolver.Filter(context.Background(), []Attachment{photoNode(1, 10, "a")}, true)

	assert.Error(t, err)
	assert.Nil(t, tokens)
}
