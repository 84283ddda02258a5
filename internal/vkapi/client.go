package vkapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/SevereCloud/vksdk/v2/api"
	"github.com/goccy/go-json"

	"github.com/ostiwe/vksaver/internal/logutil"
)

const requestTimeout = 30 * time.Second

// Client is a thin wrapper over the vksdk API client. Access tokens are
// passed per call because the owner's user token and per-community tokens
// are used side by side; one SDK session is kept per token.
type Client struct {
	// BaseURL overrides the production endpoint, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client

	mu       sync.Mutex
	sessions map[string]*api.VK
}

// NewClient constructs a client against the production endpoint.
func NewClient() *Client {
	return &Client{HTTPClient: &http.Client{Timeout: requestTimeout}}
}

func (c *Client) session(token string) *api.VK {
	c.mu.Lock()
	defer c.mu.Unlock()

	if vk, ok := c.sessions[token]; ok {
		return vk
	}

	vk := api.NewVK(token)
	if c.BaseURL != "" {
		vk.MethodURL = strings.TrimRight(c.BaseURL, "/") + "/method/"
	}
	if c.HTTPClient != nil {
		vk.Client = c.HTTPClient
	}

	if c.sessions == nil {
		c.sessions = make(map[string]*api.VK)
	}
	c.sessions[token] = vk
	return vk
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// PostponedPosts fetches one page of the owner's postponed-post queue.
func (c *Client) PostponedPosts(ctx context.Context, token string, ownerID int64, offset, count int) (PendingPostList, error) {
	resp, err := c.session(token).WallGet(api.Params{
		"owner_id": ownerID,
		"offset":   offset,
		"count":    count,
		"filter":   "postponed",
	}.WithContext(ctx))
	if err != nil {
		return PendingPostList{}, fmt.Errorf("wall.get: %w", err)
	}

	list := PendingPostList{Count: resp.Count, Items: make([]PendingPost, len(resp.Items))}
	for i, item := range resp.Items {
		list.Items[i] = PendingPost{ID: int64(item.ID), Date: int64(item.Date)}
	}
	return list, nil
}

// CreatePost schedules a wall post for publication at publishDate.
func (c *Client) CreatePost(ctx context.Context, token string, ownerID int64, fromGroup bool, message, attachments string, publishDate int64) (int64, error) {
	resp, err := c.session(token).WallPost(api.Params{
		"owner_id":     ownerID,
		"from_group":   fromGroup,
		"message":      message,
		"attachments":  attachments,
		"publish_date": publishDate,
	}.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("wall.post: %w", err)
	}
	return int64(resp.PostID), nil
}

// SendMessage delivers a direct message to userID. randomID deduplicates
// redelivered requests on the server side.
func (c *Client) SendMessage(ctx context.Context, token string, userID, randomID int64, message, attachment string) error {
	params := api.Params{
		"user_id":   userID,
		"random_id": randomID,
		"message":   message,
	}
	if attachment != "" {
		params["attachment"] = attachment
	}

	if _, err := c.session(token).MessagesSend(params.WithContext(ctx)); err != nil {
		return fmt.Errorf("messages.send: %w", err)
	}
	return nil
}

// PhotosByID resolves photo tokens ("{owner}_{id}_{key}") to their renditions.
func (c *Client) PhotosByID(ctx context.Context, token string, ids []string) ([]Photo, error) {
	resp, err := c.session(token).PhotosGetByID(api.Params{
		"photos": strings.Join(ids, ","),
	}.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("photos.getById: %w", err)
	}

	photos := make([]Photo, len(resp))
	for i, item := range resp {
		photo := Photo{ID: int64(item.ID), OwnerID: int64(item.OwnerID), Sizes: make([]PhotoSize, len(item.Sizes))}
		for j, size := range item.Sizes {
			photo.Sizes[j] = PhotoSize{Type: size.Type, URL: size.URL}
		}
		photos[i] = photo
	}
	return photos, nil
}

// UploadWallPhoto pushes a local file into the community's wall album through
// the SDK's upload flow (request an upload server, transfer, confirm the
// save). The flow has no context support upstream.
func (c *Client) UploadWallPhoto(ctx context.Context, token string, groupID int64, path string) ([]SavedPhoto, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	defer file.Close()

	resp, err := c.session(token).UploadGroupWallPhoto(int(groupID), file)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}

	saved := make([]SavedPhoto, len(resp))
	for i, item := range resp {
		saved[i] = SavedPhoto{ID: int64(item.ID), OwnerID: int64(item.OwnerID), AccessKey: item.AccessKey}
	}
	logutil.Debugf("uploaded %s to community %d", filepath.Base(path), groupID)
	return saved, nil
}

// LikeRef identifies one likeable item for a batched isLiked check.
type LikeRef struct {
	Type    string `json:"type"`
	OwnerID int64  `json:"owner_id"`
	ItemID  int64  `json:"item_id"`
}

// LikedRefs evaluates likes.isLiked for every ref in one server-side execute
// loop and returns the liked subset as "{type}{owner}_{item}" strings, in the
// order the server walked them.
func (c *Client) LikedRefs(ctx context.Context, token string, userID int64, refs []LikeRef) ([]string, error) {
	items, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("execute: encode refs: %w", err)
	}

	code := fmt.Sprintf(`var items = %s;
var liked = [];
var i = 0;
while (i < items.length) {
    var r = API.likes.isLiked({"user_id": %d, "type": items[i].type, "owner_id": items[i].owner_id, "item_id": items[i].item_id});
    if (parseInt(r.liked) == 1) {
        liked.push(items[i].type + items[i].owner_id + "_" + items[i].item_id);
    }
    i = i + 1;
}
return liked;`, items, userID)

	var liked []string
	if err := c.session(token).ExecuteWithArgs(code, api.Params{}.WithContext(ctx), &liked); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	return liked, nil
}

// Fetch downloads the content behind an arbitrary URI. This is a plain file
// download from a CDN or the browser extension's source page, not an API
// method, so it goes through the HTTP client directly.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", uri, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	return data, nil
}
