package saver

import (
	"fmt"
	"time"
)

// Message is the inbound direct message carried by a message_new event.
type Message struct {
	FromID      int64        `json:"from_id"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is one node of a message's attachment tree. Reposted wall items
// carry their own attachments, so the structure nests.
type Attachment struct {
	Type  string           `json:"type"`
	Photo *PhotoAttachment `json:"photo,omitempty"`
	Wall  *WallAttachment  `json:"wall,omitempty"`
}

// PhotoAttachment references a photo in the service's content space.
type PhotoAttachment struct {
	ID        int64  `json:"id"`
	OwnerID   int64  `json:"owner_id"`
	AccessKey string `json:"access_key"`
}

// WallAttachment is a reposted wall item whose attachments are inspected
// recursively.
type WallAttachment struct {
	Attachments []Attachment `json:"attachments"`
}

// AttachmentRef is a flattened reference to a photo extracted from a message.
type AttachmentRef struct {
	Kind      string
	OwnerID   int64
	ItemID    int64
	AccessKey string
}

// Token renders the ref as an "{owner}_{item}_{key}" photo token, the form
// photos.getById expects.
func (r AttachmentRef) Token() string {
	return fmt.Sprintf("%d_%d_%s", r.OwnerID, r.ItemID, r.AccessKey)
}

// UploadedPhoto is the handle returned after saving a local image to a
// community's wall album.
type UploadedPhoto struct {
	OwnerID   int64
	ItemID    int64
	AccessKey string
}

// Token renders the handle as a post attachment token.
func (p UploadedPhoto) Token() string {
	return fmt.Sprintf("photo%d_%d_%s", p.OwnerID, p.ItemID, p.AccessKey)
}

// ScheduledPost is the outcome of a successful scheduling operation.
type ScheduledPost struct {
	PostID    int64
	PublishAt int64
}

// ConfirmationMessage formats the user-facing confirmation for a scheduled
// post, matching the bot's historical wording.
func (p ScheduledPost) ConfirmationMessage(communityID int64) string {
	when := time.Unix(p.PublishAt, 0).Format("02.01.2006 в 15:04")
	return fmt.Sprintf("Пост будет опубликован %s\nvk.com/wall-%d_%d", when, communityID, p.PostID)
}
