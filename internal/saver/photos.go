package saver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ostiwe/vksaver/internal/logutil"
	"github.com/ostiwe/vksaver/internal/vkapi"
)

// minPhotoBytes is the sanity threshold below which a URI download is treated
// as "image unavailable" rather than a real file.
const minPhotoBytes = 5

// PhotoService is the remote surface the transfer pipeline depends on.
type PhotoService interface {
	PhotosByID(ctx context.Context, token string, ids []string) ([]vkapi.Photo, error)
	Fetch(ctx context.Context, uri string) ([]byte, error)
	UploadWallPhoto(ctx context.Context, token string, groupID int64, path string) ([]vkapi.SavedPhoto, error)
}

// Pipeline moves photos from the remote service (or an arbitrary URI) through
// transient local files into a community's wall album. It is not
// transactional: a failure partway leaves earlier uploads committed and later
// local files on disk.
type Pipeline struct {
	api       PhotoService
	userToken string
	tmpDir    string

	// Courtesy pauses between remote calls.
	downloadDelay time.Duration
	uploadDelay   time.Duration
}

// PipelineOption adjusts pipeline construction.
type PipelineOption func(*Pipeline)

// WithTransferDelays overrides the courtesy pauses between remote calls.
// Zero disables them.
func WithTransferDelays(download, upload time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.downloadDelay = download
		p.uploadDelay = upload
	}
}

// NewPipeline constructs a pipeline storing transient files under tmpDir.
func NewPipeline(api PhotoService, userToken, tmpDir string, opts ...PipelineOption) *Pipeline {
	if tmpDir == "" {
		tmpDir = filepath.Join(os.TempDir(), "vksaver")
	}
	p := &Pipeline{
		api:           api,
		userToken:     userToken,
		tmpDir:        tmpDir,
		downloadDelay: 5 * time.Millisecond,
		uploadDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DownloadPhotos fetches the largest rendition of every photo token into a
// uniquely named temporary file and returns the local paths in order.
func (p *Pipeline) DownloadPhotos(ctx context.Context, tokens []string) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	photos, err := p.api.PhotosByID(ctx, p.userToken, tokens)
	if err != nil {
		return nil, TransferError{Err: err}
	}

	paths := make([]string, 0, len(photos))
	for _, photo := range photos {
		if len(photo.Sizes) == 0 {
			return nil, TransferError{Ref: fmt.Sprintf("%d_%d", photo.OwnerID, photo.ID), Err: errors.New("no sizes in response")}
		}
		biggest := photo.Sizes[len(photo.Sizes)-1]

		data, err := p.api.Fetch(ctx, biggest.URL)
		if err != nil {
			return nil, TransferError{Ref: fmt.Sprintf("%d_%d", photo.OwnerID, photo.ID), Err: err}
		}

		path, err := p.writeTemp(data)
		if err != nil {
			return nil, TransferError{Err: err}
		}
		paths = append(paths, path)
		time.Sleep(p.downloadDelay)
	}

	logutil.Debugf("downloaded %d photos to %s", len(paths), p.tmpDir)
	return paths, nil
}

// DownloadURI fetches one image from an arbitrary URI. An unreachable URI or
// a body under the sanity threshold yields an empty result, not an error;
// callers treat that as "image unavailable".
func (p *Pipeline) DownloadURI(ctx context.Context, uri string) ([]string, error) {
	data, err := p.api.Fetch(ctx, uri)
	if err != nil {
		logutil.Debugf("uri fetch failed: %v", err)
		return nil, nil
	}
	if len(data) < minPhotoBytes {
		return nil, nil
	}

	path, err := p.writeTemp(data)
	if err != nil {
		return nil, TransferError{Err: err}
	}
	return []string{path}, nil
}

// UploadWallPhotos pushes each local file into the community's wall album and
// deletes the local file once the save is confirmed. Files uploaded before a
// failure stay committed.
func (p *Pipeline) UploadWallPhotos(ctx context.Context, communityID int64, paths []string) ([]UploadedPhoto, error) {
	uploaded := make([]UploadedPhoto, 0, len(paths))
	for _, path := range paths {
		saved, err := p.api.UploadWallPhoto(ctx, p.userToken, communityID, path)
		if err != nil {
			return uploaded, UploadError{Path: path, Err: err}
		}
		if len(saved) == 0 {
			return uploaded, UploadError{Path: path, Err: errors.New("empty save response")}
		}

		uploaded = append(uploaded, UploadedPhoto{
			OwnerID:   saved[0].OwnerID,
			ItemID:    saved[0].ID,
			AccessKey: saved[0].AccessKey,
		})
		if err := os.Remove(path); err != nil {
			logutil.Debugf("remove %s: %v", path, err)
		}
		time.Sleep(p.uploadDelay)
	}
	return uploaded, nil
}

func (p *Pipeline) writeTemp(data []byte) (string, error) {
	if err := os.MkdirAll(p.tmpDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("image%d-%s.jpg", time.Now().Unix(), uuid.NewString())
	path := filepath.Join(p.tmpDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
