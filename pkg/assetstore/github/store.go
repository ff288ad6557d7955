// Package github implements assetstore.Store against the GitHub
// Releases API.
//
// The bearer token is supplied out-of-band via GITHUB_TOKEN. Requests
// share a rate limiter so batch upload cycles stay under the API's
// secondary rate limits.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/songlift/songlift/pkg/assetstore"
)

const backend = "github"

// TokenEnv is the environment variable the bearer credential is read from.
const TokenEnv = "GITHUB_TOKEN"

// Config configures the GitHub release store.
type Config struct {
	// Owner and Repo identify the repository releases are created in.
	Owner string
	Repo  string

	// Token is the bearer credential. Empty means read TokenEnv.
	Token string

	// APIBase overrides the API endpoint (tests, GitHub Enterprise).
	// Default: https://api.github.com
	APIBase string

	// UploadBase overrides the upload endpoint. When empty the
	// release's upload_url is used as returned by the API.
	UploadBase string

	// RequestsPerSecond limits API call rate. Zero means unlimited.
	RequestsPerSecond float64

	// Timeout bounds each HTTP request. Default: 5 minutes (asset
	// uploads can be large).
	Timeout time.Duration
}

// Store talks to the GitHub Releases API.
type Store struct {
	cfg     Config
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

var _ assetstore.Store = (*Store)(nil)

// New creates a GitHub release store. The credential is resolved
// lazily: construction succeeds without a token, and operations
// return assetstore.ErrMissingToken.
func New(cfg Config) *Store {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.github.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv(TokenEnv)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Store{
		cfg:     cfg,
		token:   token,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

type releasePayload struct {
	ID        int64  `json:"id"`
	TagName   string `json:"tag_name"`
	UploadURL string `json:"upload_url"`
	Assets    []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// FindOrCreateRelease looks up the release for tag, creating it when
// absent. The returned handle carries the upload URL and the assets
// known at resolution time.
func (s *Store) FindOrCreateRelease(ctx context.Context, tag, name string) (*assetstore.Release, error) {
	if s.token == "" {
		return nil, &assetstore.StoreError{Op: "FindOrCreateRelease", Backend: backend, Err: assetstore.ErrMissingToken}
	}

	rel, err := s.getReleaseByTag(ctx, tag)
	if err == nil {
		return rel, nil
	}
	if !assetstore.IsNotFound(err) {
		return nil, err
	}

	return s.createRelease(ctx, tag, name)
}

func (s *Store) getReleaseByTag(ctx context.Context, tag string) (*assetstore.Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", s.cfg.APIBase, s.cfg.Owner, s.cfg.Repo, url.PathEscape(tag))

	resp, err := s.do(ctx, http.MethodGet, endpoint, "", nil, 0)
	if err != nil {
		return nil, s.wrapError("FindOrCreateRelease", tag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, s.statusError("FindOrCreateRelease", tag, resp)
	}

	return s.decodeRelease("FindOrCreateRelease", tag, resp.Body)
}

func (s *Store) createRelease(ctx context.Context, tag, name string) (*assetstore.Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases", s.cfg.APIBase, s.cfg.Owner, s.cfg.Repo)

	body, err := json.Marshal(map[string]any{
		"tag_name":   tag,
		"name":       name,
		"body":       "Automated artifact release",
		"draft":      false,
		"prerelease": false,
	})
	if err != nil {
		return nil, &assetstore.StoreError{Op: "FindOrCreateRelease", Backend: backend, Name: tag, Err: err}
	}

	resp, err := s.do(ctx, http.MethodPost, endpoint, "application/json", bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, s.wrapError("FindOrCreateRelease", tag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return nil, s.statusError("FindOrCreateRelease", tag, resp)
	}

	return s.decodeRelease("FindOrCreateRelease", tag, resp.Body)
}

func (s *Store) decodeRelease(op, tag string, r io.Reader) (*assetstore.Release, error) {
	var payload releasePayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, &assetstore.StoreError{Op: op, Backend: backend, Name: tag, Err: err}
	}

	assets := assetstore.AssetMap{}
	for _, a := range payload.Assets {
		assets[a.Name] = a.BrowserDownloadURL
	}

	// The API returns a URI template: .../assets{?name,label}
	uploadURL := payload.UploadURL
	if i := strings.IndexByte(uploadURL, '{'); i >= 0 {
		uploadURL = uploadURL[:i]
	}
	if s.cfg.UploadBase != "" {
		uploadURL = s.cfg.UploadBase + fmt.Sprintf("/repos/%s/%s/releases/%d/assets", s.cfg.Owner, s.cfg.Repo, payload.ID)
	}

	return &assetstore.Release{
		ID:        payload.ID,
		Tag:       payload.TagName,
		UploadURL: uploadURL,
		Assets:    assets,
	}, nil
}

// ListAssets returns the current asset map for the release.
func (s *Store) ListAssets(ctx context.Context, rel *assetstore.Release) (assetstore.AssetMap, error) {
	if s.token == "" {
		return nil, &assetstore.StoreError{Op: "ListAssets", Backend: backend, Err: assetstore.ErrMissingToken}
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?per_page=100", s.cfg.APIBase, s.cfg.Owner, s.cfg.Repo, rel.ID)
	assets := assetstore.AssetMap{}

	for page := 1; ; page++ {
		resp, err := s.do(ctx, http.MethodGet, fmt.Sprintf("%s&page=%d", endpoint, page), "", nil, 0)
		if err != nil {
			return nil, s.wrapError("ListAssets", rel.Tag, err)
		}

		if resp.StatusCode != http.StatusOK {
			err := s.statusError("ListAssets", rel.Tag, resp)
			_ = resp.Body.Close()
			return nil, err
		}

		var pageAssets []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&pageAssets)
		_ = resp.Body.Close()
		if decodeErr != nil {
			return nil, &assetstore.StoreError{Op: "ListAssets", Backend: backend, Name: rel.Tag, Err: decodeErr}
		}

		for _, a := range pageAssets {
			assets[a.Name] = a.BrowserDownloadURL
		}
		if len(pageAssets) < 100 {
			return assets, nil
		}
	}
}

// Upload posts one asset to the release's upload endpoint and returns
// its public download URL.
func (s *Store) Upload(ctx context.Context, rel *assetstore.Release, name, mime string, body io.Reader, size int64) (string, error) {
	if s.token == "" {
		return "", &assetstore.StoreError{Op: "Upload", Backend: backend, Name: name, Err: assetstore.ErrMissingToken}
	}

	endpoint := fmt.Sprintf("%s?name=%s", rel.UploadURL, url.QueryEscape(name))

	resp, err := s.do(ctx, http.MethodPost, endpoint, mime, body, size)
	if err != nil {
		return "", s.wrapError("Upload", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return "", s.statusError("Upload", name, resp)
	}

	var payload struct {
		BrowserDownloadURL string `json:"browser_download_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &assetstore.StoreError{Op: "Upload", Backend: backend, Name: name, Err: err}
	}
	return payload.BrowserDownloadURL, nil
}

// do performs one authenticated request, honoring the rate limiter.
func (s *Store) do(ctx context.Context, method, endpoint, contentType string, body io.Reader, size int64) (*http.Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if size > 0 {
		req.ContentLength = size
	}

	return s.client.Do(req)
}

// wrapError converts transport errors to store errors.
func (s *Store) wrapError(op, name string, err error) error {
	return &assetstore.StoreError{Op: op, Backend: backend, Name: name, Err: err}
}

// statusError maps non-success HTTP statuses to sentinel errors.
func (s *Store) statusError(op, name string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	wrapped := &assetstore.StoreError{Op: op, Backend: backend, Name: name}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		wrapped.Err = assetstore.ErrNotFound
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests:
		wrapped.Err = assetstore.ErrThrottled
	case resp.StatusCode >= 500:
		wrapped.Err = assetstore.ErrUnavailable
	default:
		wrapped.Err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return wrapped
}
