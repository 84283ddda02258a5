package saver

import "fmt"

// ValidationError rejects a malformed or unauthorized inbound event before
// any side effect happens.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s", e.Reason)
}

// TransferError reports a failed photo download. Partial downloads already on
// disk are not cleaned up.
type TransferError struct {
	Ref string
	Err error
}

func (e TransferError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("photo download failed: %v", e.Err)
	}
	return fmt.Sprintf("photo download failed (%s): %v", e.Ref, e.Err)
}

func (e TransferError) Unwrap() error { return e.Err }

// UploadError reports a failed wall-album upload. Uploads already committed
// before the failure stay committed.
type UploadError struct {
	Path string
	Err  error
}

func (e UploadError) Error() string {
	return fmt.Sprintf("photo upload failed (%s): %v", e.Path, e.Err)
}

func (e UploadError) Unwrap() error { return e.Err }

// PublicationError flattens every remote failure during scheduling, rate
// limits and policy rejections included, into one kind carrying the original
// reason.
type PublicationError struct {
	CommunityID int64
	Err         error
}

func (e PublicationError) Error() string {
	return fmt.Sprintf("scheduling failed for community %d: %v", e.CommunityID, e.Err)
}

func (e PublicationError) Unwrap() error { return e.Err }

// NotificationError reports a failed confirmation message. It never implies
// the post was not scheduled; the two outcomes are independent.
type NotificationError struct {
	UserID int64
	Err    error
}

func (e NotificationError) Error() string {
	return fmt.Sprintf("notification to %d failed: %v", e.UserID, e.Err)
}

func (e NotificationError) Unwrap() error { return e.Err }
