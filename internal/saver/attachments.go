package saver

import (
	"context"
	"fmt"
	"strings"

	"github.com/ostiwe/vksaver/internal/logutil"
	"github.com/ostiwe/vksaver/internal/vkapi"
)

// LikeService evaluates a batched "liked?" query in one remote round trip.
type LikeService interface {
	LikedRefs(ctx context.Context, token string, userID int64, refs []vkapi.LikeRef) ([]string, error)
}

// Resolver extracts photo references from a message's attachment tree and
// optionally narrows them to items the owner has liked.
type Resolver struct {
	likes     LikeService
	userToken string
	userID    int64
}

// NewResolver constructs a resolver acting on behalf of the given user.
func NewResolver(likes LikeService, userToken string, userID int64) *Resolver {
	return &Resolver{likes: likes, userToken: userToken, userID: userID}
}

// Resolve flattens the attachment tree depth-first into photo refs, recursing
// into reposted wall items. Non-photo, non-wall nodes are ignored.
func (r *Resolver) Resolve(attachments []Attachment) []AttachmentRef {
	var refs []AttachmentRef
	for _, att := range attachments {
		switch att.Type {
		case "photo":
			if att.Photo == nil {
				continue
			}
			refs = append(refs, AttachmentRef{
				Kind:      "photo",
				OwnerID:   att.Photo.OwnerID,
				ItemID:    att.Photo.ID,
				AccessKey: att.Photo.AccessKey,
			})
		case "wall":
			if att.Wall == nil {
				continue
			}
			refs = append(refs, r.Resolve(att.Wall.Attachments)...)
		}
	}
	return refs
}

// Filter resolves the attachment tree into photo tokens. With likedOnly set
// it keeps only refs the user has liked, via a single batched remote check.
//
// When the batched check comes back empty, the full unfiltered list is
// returned instead of an empty one. The service reports "no likes" and an
// empty response the same way, and the bot has always resolved that ambiguity
// in favor of keeping everything.
func (r *Resolver) Filter(ctx context.Context, attachments []Attachment, likedOnly bool) ([]string, error) {
	if len(attachments) == 0 {
		return nil, nil
	}

	refs := r.Resolve(attachments)
	if !likedOnly || len(refs) == 0 {
		return refTokens(refs), nil
	}

	likeRefs := make([]vkapi.LikeRef, len(refs))
	for i, ref := range refs {
		likeRefs[i] = vkapi.LikeRef{Type: ref.Kind, OwnerID: ref.OwnerID, ItemID: ref.ItemID}
	}

	liked, err := r.likes.LikedRefs(ctx, r.userToken, r.userID, likeRefs)
	if err != nil {
		return nil, fmt.Errorf("check liked: %w", err)
	}
	if len(liked) == 0 {
		logutil.Debugf("liked check returned nothing, keeping all %d refs", len(refs))
		return refTokens(refs), nil
	}

	tokens := make([]string, len(liked))
	for i, item := range liked {
		tokens[i] = strings.TrimPrefix(item, "photo")
	}
	return tokens, nil
}

func refTokens(refs []AttachmentRef) []string {
	if len(refs) == 0 {
		return nil
	}
	tokens := make([]string, len(refs))
	for i, ref := range refs {
		tokens[i] = ref.Token()
	}
	return tokens
}
