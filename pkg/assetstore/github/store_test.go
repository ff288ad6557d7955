package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songlift/songlift/pkg/assetstore"
)

// fakeReleaseServer imitates the subset of the GitHub Releases API the
// store uses: tag lookup, release creation, asset listing, and upload.
type fakeReleaseServer struct {
	t        *testing.T
	releases map[string]int64            // tag -> id
	assets   map[int64]map[string]string // id -> name -> url
	nextID   int64
	uploads  int
}

func newFakeReleaseServer(t *testing.T) *fakeReleaseServer {
	return &fakeReleaseServer{
		t:        t,
		releases: map[string]int64{},
		assets:   map[int64]map[string]string{},
		nextID:   100,
	}
}

func (f *fakeReleaseServer) releaseJSON(baseURL string, id int64, tag string) map[string]any {
	assets := make([]map[string]any, 0)
	for name, url := range f.assets[id] {
		assets = append(assets, map[string]any{"name": name, "browser_download_url": url})
	}
	return map[string]any{
		"id":         id,
		"tag_name":   tag,
		"upload_url": fmt.Sprintf("%s/upload/%d/assets{?name,label}", baseURL, id),
		"assets":     assets,
	}
}

func (f *fakeReleaseServer) handler(baseURL *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/releases/tags/"):
			tag := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			id, ok := f.releases[tag]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(f.releaseJSON(*baseURL, id, tag))

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/releases"):
			var body struct {
				TagName string `json:"tag_name"`
			}
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
			id := f.nextID
			f.nextID++
			f.releases[body.TagName] = id
			f.assets[id] = map[string]string{}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(f.releaseJSON(*baseURL, id, body.TagName))

		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/assets"):
			var id int64
			_, err := fmt.Sscanf(r.URL.Path, "/repos/owner/repo/releases/%d/assets", &id)
			require.NoError(f.t, err)
			page := r.URL.Query().Get("page")
			out := make([]map[string]any, 0)
			if page == "" || page == "1" {
				for name, url := range f.assets[id] {
					out = append(out, map[string]any{"name": name, "browser_download_url": url})
				}
			}
			_ = json.NewEncoder(w).Encode(out)

		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/upload/"):
			var id int64
			_, err := fmt.Sscanf(r.URL.Path, "/upload/%d/assets", &id)
			require.NoError(f.t, err)
			name := r.URL.Query().Get("name")
			data, err := io.ReadAll(r.Body)
			require.NoError(f.t, err)
			require.NotEmpty(f.t, data)
			f.uploads++
			url := fmt.Sprintf("https://downloads.example.com/%d/%s", id, name)
			f.assets[id][name] = url
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"browser_download_url": url})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestStore(t *testing.T) (*Store, *fakeReleaseServer) {
	f := newFakeReleaseServer(t)
	var baseURL string
	srv := httptest.NewServer(f.handler(&baseURL))
	baseURL = srv.URL
	t.Cleanup(srv.Close)

	return New(Config{
		Owner:   "owner",
		Repo:    "repo",
		Token:   "test-token",
		APIBase: srv.URL,
	}), f
}

func TestFindOrCreateRelease_CreatesWhenAbsent(t *testing.T) {
	s, f := newTestStore(t)

	rel, err := s.FindOrCreateRelease(context.Background(), "latest", "Latest Songs")
	require.NoError(t, err)
	assert.Equal(t, "latest", rel.Tag)
	assert.NotZero(t, rel.ID)
	assert.NotContains(t, rel.UploadURL, "{")
	assert.Contains(t, f.releases, "latest")
}

func TestFindOrCreateRelease_ReusesExisting(t *testing.T) {
	s, _ := newTestStore(t)

	first, err := s.FindOrCreateRelease(context.Background(), "latest", "Latest Songs")
	require.NoError(t, err)
	second, err := s.FindOrCreateRelease(context.Background(), "latest", "Latest Songs")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestUploadAndList(t *testing.T) {
	s, f := newTestStore(t)
	ctx := context.Background()

	rel, err := s.FindOrCreateRelease(ctx, "latest", "Latest Songs")
	require.NoError(t, err)

	url, err := s.Upload(ctx, rel, "My Song.mp3", "audio/mpeg", strings.NewReader("mp3-bytes"), 9)
	require.NoError(t, err)
	assert.Contains(t, url, "My Song.mp3")
	assert.Equal(t, 1, f.uploads)

	assets, err := s.ListAssets(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, assetstore.AssetMap{"My Song.mp3": url}, assets)
}

func TestReleaseHandleCarriesExistingAssets(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rel, err := s.FindOrCreateRelease(ctx, "latest", "Latest Songs")
	require.NoError(t, err)
	_, err = s.Upload(ctx, rel, "Old.mp3", "audio/mpeg", strings.NewReader("x"), 1)
	require.NoError(t, err)

	// Resolving the release again reports the previously uploaded asset,
	// which is how callers skip re-uploads across process restarts.
	again, err := s.FindOrCreateRelease(ctx, "latest", "Latest Songs")
	require.NoError(t, err)
	assert.Contains(t, again.Assets, "Old.mp3")
}

func TestMissingTokenIsHardStop(t *testing.T) {
	t.Setenv(TokenEnv, "")
	s := New(Config{Owner: "owner", Repo: "repo"})

	_, err := s.FindOrCreateRelease(context.Background(), "latest", "x")
	assert.True(t, assetstore.IsMissingToken(err))

	_, err = s.ListAssets(context.Background(), &assetstore.Release{ID: 1})
	assert.True(t, assetstore.IsMissingToken(err))

	_, err = s.Upload(context.Background(), &assetstore.Release{ID: 1}, "a.mp3", "audio/mpeg", strings.NewReader("x"), 1)
	assert.True(t, assetstore.IsMissingToken(err))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"throttled on 403", http.StatusForbidden, assetstore.IsThrottled},
		{"throttled on 429", http.StatusTooManyRequests, assetstore.IsThrottled},
		{"unavailable on 503", http.StatusServiceUnavailable, assetstore.IsUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			s := New(Config{Owner: "owner", Repo: "repo", Token: "test-token", APIBase: srv.URL})
			_, err := s.FindOrCreateRelease(context.Background(), "latest", "x")
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}
