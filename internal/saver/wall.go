package saver

import (
	"context"
	"strings"
	"time"

	"github.com/ostiwe/vksaver/internal/logutil"
	"github.com/ostiwe/vksaver/internal/vkapi"
)

// postponedPageSize is the service's one-page limit for queue queries.
const postponedPageSize = 100

// WallService is the remote surface the scheduler depends on.
type WallService interface {
	PostponedPosts(ctx context.Context, token string, ownerID int64, offset, count int) (vkapi.PendingPostList, error)
	CreatePost(ctx context.Context, token string, ownerID int64, fromGroup bool, message, attachments string, publishDate int64) (int64, error)
}

// Scheduler computes collision-free publish times against a community's
// postponed-post queue and submits new scheduled posts.
type Scheduler struct {
	api       WallService
	userToken string
	now       func() time.Time
}

// NewScheduler constructs a scheduler acting with the owner's user token.
func NewScheduler(api WallService, userToken string) *Scheduler {
	return &Scheduler{api: api, userToken: userToken, now: time.Now}
}

// NextPublishTime returns the publish time of the latest pending post in the
// community's queue, or the current time when the queue is empty.
func (s *Scheduler) NextPublishTime(ctx context.Context, communityID int64) (int64, error) {
	return s.lastPendingTime(ctx, communityID, 0)
}

func (s *Scheduler) lastPendingTime(ctx context.Context, communityID int64, offset int) (int64, error) {
	list, err := s.api.PostponedPosts(ctx, s.userToken, -communityID, offset, postponedPageSize)
	if err != nil {
		return 0, PublicationError{CommunityID: communityID, Err: err}
	}
	if list.Count == 0 {
		return s.now().Unix(), nil
	}
	if list.Count > postponedPageSize-1 && offset == 0 {
		// The queue is returned newest-first by creation, so the post with
		// the largest publish time sits at the tail of the last page. The
		// offset depends on that undocumented ordering; do not generalize.
		return s.lastPendingTime(ctx, communityID, list.Count-2)
	}
	if len(list.Items) == 0 {
		return s.now().Unix(), nil
	}
	return list.Items[len(list.Items)-1].Date, nil
}

// TargetPublishTime spaces a new post intervalHours after the latest pending
// publish time. No clamping to "now" happens here; the remote service's own
// validation governs acceptance of past timestamps.
func TargetPublishTime(lastPending int64, intervalHours int) int64 {
	return lastPending + int64(intervalHours)*3600
}

// SubmitPost creates the scheduled post on the community wall, attributed to
// the community, and returns the assigned post id with its publish time.
func (s *Scheduler) SubmitPost(ctx context.Context, communityID int64, message string, attachments []string, publishAt int64) (ScheduledPost, error) {
	postID, err := s.api.CreatePost(ctx, s.userToken, -communityID, true, message, strings.Join(attachments, ","), publishAt)
	if err != nil {
		return ScheduledPost{}, PublicationError{CommunityID: communityID, Err: err}
	}
	logutil.Infof("scheduled wall-%d_%d for %s", communityID, postID, time.Unix(publishAt, 0).Format(time.RFC3339))
	return ScheduledPost{PostID: postID, PublishAt: publishAt}, nil
}
