package saver

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ostiwe/vksaver/internal/vkapi"
)

type MockPhotoService struct {
	mock.Mock
}

func (m *MockPhotoService) PhotosByID(ctx context.Context, token string, ids []string) ([]vkapi.Photo, error) {
	args := m.Called(ctx, token, ids)
	return args.Get(0).([]vkapi.Photo), args.Error(1)
}

func (m *MockPhotoService) Fetch(ctx context.Context, uri string) ([]byte, error) {
	args := m.Called(ctx, uri)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockPhotoService) UploadWallPhoto(ctx context.Context, token string, groupID int64, path string) ([]vkapi.SavedPhoto, error) {
	args := m.Called(ctx, token, groupID, path)
	return args.Get(0).([]vkapi.SavedPhoto), args.Error(1)
}

func testPipeline(t *testing.T, api PhotoService) *Pipeline {
	t.Helper()
	return NewPipeline(api, "token", t.TempDir(), WithTransferDelays(0, 0))
}

func TestNewPipeline_WithTransferDelays(t *testing.T) {
	pipeline := NewPipeline(new(MockPhotoService), "token", t.TempDir())
	assert.Equal(t, 5*time.Millisecond, pipeline.downloadDelay)
	assert.Equal(t, time.Second, pipeline.uploadDelay)

	pipeline = NewPipeline(new(MockPhotoService), "token", t.TempDir(), WithTransferDelays(0, 0))
	assert.Zero(t, pipeline.downloadDelay)
	assert.Zero(t, pipeline.uploadDelay)
}

func TestPipeline_DownloadPhotos(t *testing.T) {
	api := new(MockPhotoService)
	api.On("PhotosByID", mock.Anything, "token", []string{"1_10_a", "2_20_b"}).Return([]vkapi.Photo{
		{ID: 10, OwnerID: 1, Sizes: []vkapi.PhotoSize{{URL: "https://cdn/small-a"}, {URL: "https://cdn/big-a"}}},
		{ID: 20, OwnerID: 2, Sizes: []vkapi.PhotoSize{{URL: "https://cdn/big-b"}}},
	}, nil)
	api.On("Fetch", mock.Anything, "https://cdn/big-a").Return([]byte("picture-a"), nil)
	api.On("Fetch", mock.Anything, "https://cdn/big-b").Return([]byte("picture-b"), nil)
	pipeline := testPipeline(t, api)

	paths, err := pipeline.DownloadPhotos(context.Background(), []string{"1_10_a", "2_20_b"})

	require.NoError(t, err)
	require.Len(t, paths, 2)
	first, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "picture-a", string(first))
	// The biggest rendition is the last entry of sizes.
	api.AssertNotCalled(t, "Fetch", mock.Anything, "https://cdn/small-a")
}

func TestPipeline_DownloadPhotos_EmptyInput(t *testing.T) {
	api := new(MockPhotoService)
	pipeline := testPipeline(t, api)

	paths, err := pipeline.DownloadPhotos(context.Background(), nil)

	assert.NoError(t, err)
	assert.Empty(t, paths)
	api.AssertNotCalled(t, "PhotosByID")
}

func TestPipeline_DownloadPhotos_FetchFailure(t *testing.T) {
	api := new(MockPhotoService)
	api.On("PhotosByID", mock.Anything, "token", mock.Anything).Return([]vkapi.Photo{
		{ID: 10, OwnerID: 1, Sizes: []vkapi.PhotoSize{{URL: "https://cdn/big-a"}}},
	}, nil)
	api.On("Fetch", mock.Anything, "https://cdn/big-a").Return([]byte(nil), assert.AnError)
	pipeline := testPipeline(t, api)

	_, err := pipeline.DownloadPhotos(context.Background(), []string{"1_10_a"})

	var transferErr TransferError
	assert.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "1_10", transferErr.Ref)
}

func TestPipeline_DownloadURI_TinyBodyIsUnavailable(t *testing.T) {
	api := new(MockPhotoService)
	api.On("Fetch", mock.Anything, "https://example.com/p.jpg").Return([]byte("abc"), nil)
	pipeline := testPipeline(t, api)

	paths, err := pipeline.DownloadURI(context.Background(), "https://example.com/p.jpg")

	assert.NoError(t, err)
	assert.Empty(t, paths)
}

func TestPipeline_DownloadURI_FetchFailureIsUnavailable(t *testing.T) {
	api := new(MockPhotoService)
	api.On("Fetch", mock.Anything, "https://example.com/p.jpg").Return([]byte(nil), assert.AnError)
	pipeline := testPipeline(t, api)

	paths, err := pipeline.DownloadURI(context.Background(), "https://example.com/p.jpg")

	assert.NoError(t, err)
	assert.Empty(t, paths)
}

func TestPipeline_DownloadURI(t *testing.T) {
	api := new(MockPhotoService)
	api.On("Fetch", mock.Anything, "https://example.com/p.jpg").Return([]byte("real picture bytes"), nil)
	pipeline := testPipeline(t, api)

	paths, err := pipeline.DownloadURI(context.Background(), "https://example.com/p.jpg")

	require.NoError(t, err)
	require.Len(t, paths, 1)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "real picture bytes", string(data))
}

func TestPipeline_UploadWallPhotos(t *testing.T) {
	api := new(MockPhotoService)
	pipeline := testPipeline(t, api)

	paths := []string{
		writeTestFile(t, pipeline.tmpDir, "one"),
		writeTestFile(t, pipeline.tmpDir, "two"),
	}

	api.On("UploadWallPhoto", mock.Anything, "token", int64(42), paths[0]).
		Return([]vkapi.SavedPhoto{{ID: 900, OwnerID: -42, AccessKey: "k1"}}, nil).Once()
	api.On("UploadWallPhoto", mock.Anything, "token", int64(42), paths[1]).
		Return([]vkapi.SavedPhoto{{ID: 901, OwnerID: -42, AccessKey: "k2"}}, nil).Once()

	uploaded, err := pipeline.UploadWallPhotos(context.Background(), 42, paths)

	require.NoError(t, err)
	require.Len(t, uploaded, 2)
	assert.Equal(t, "photo-42_900_k1", uploaded[0].Token())
	assert.Equal(t, "photo-42_901_k2", uploaded[1].Token())
	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[1])
	api.AssertExpectations(t)
}

// A failure partway through is not rolled back: earlier uploads stay
// committed and the failing file stays on disk.
func TestPipeline_UploadWallPhotos_PartialFailure(t *testing.T) {
	api := new(MockPhotoService)
	pipeline := testPipeline(t, api)

	paths := []string{
		writeTestFile(t, pipeline.tmpDir, "one"),
		writeTestFile(t, pipeline.tmpDir, "two"),
	}

	api.On("UploadWallPhoto", mock.Anything, "token", int64(42), paths[0]).
		Return([]vkapi.SavedPhoto{{ID: 900, OwnerID: -42, AccessKey: "k1"}}, nil).Once()
	api.On("UploadWallPhoto", mock.Anything, "token", int64(42), paths[1]).
		Return([]vkapi.SavedPhoto(nil), assert.AnError).Once()

	uploaded, err := pipeline.UploadWallPhotos(context.Background(), 42, paths)

	var uploadErr UploadError
	assert.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, paths[1], uploadErr.Path)
	require.Len(t, uploaded, 1)
	assert.Equal(t, "photo-42_900_k1", uploaded[0].Token())
	assert.NoFileExists(t, paths[0])
	assert.FileExists(t, paths[1])
}

func writeTestFile(t *testing.T, dir, content string) string {
	t.Helper()
	f, err := os.CreateTemp(dir, "photo-*.jpg")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}
