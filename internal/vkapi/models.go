package vkapi

// PendingPost is one entry of a community's postponed-post queue.
type PendingPost struct {
	ID   int64
	Date int64
}

// PendingPostList is one page of the queue. Count is the total queue size,
// which can exceed len(Items) when the queue spans pages.
type PendingPostList struct {
	Count int
	Items []PendingPost
}

// PhotoSize is one rendition of a photo. The API orders sizes smallest first.
type PhotoSize struct {
	Type string
	URL  string
}

// Photo is a resolved photo with its renditions.
type Photo struct {
	ID      int64
	OwnerID int64
	Sizes   []PhotoSize
}

// SavedPhoto is a photo committed to a wall album, usable as a post attachment.
type SavedPhoto struct {
	ID        int64
	OwnerID   int64
	AccessKey string
}
