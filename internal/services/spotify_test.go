package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/oauth2"
)

var testCredentials = map[string]string{
	"client_id":     "test_client_id",
	"client_secret": "test_client_secret",
}

// newTestCatalog returns an authenticated catalog pointed at handler.
func newTestCatalog(t *testing.T, handler http.HandlerFunc) *SpotifyCatalog {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	srv, err := NewSpotifyCatalog(testCredentials, WithBaseURL(server.URL), WithRateLimit(0))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	if err := srv.Authenticate(context.Background(), &oauth2.Token{AccessToken: "test_access_token"}); err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}
	return srv
}

type mockTokenSource struct {
	tokens []*oauth2.Token
	calls  int
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	token := m.tokens[min(m.calls, len(m.tokens)-1)]
	m.calls++
	return token, nil
}

func TestSpotifyCatalog(t *testing.T) {
	t.Run("NewSpotifyCatalog", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewSpotifyCatalog(testCredentials)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
			if srv.config.RedirectURL != "http://127.0.0.1:3000/callback" {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyCatalog(map[string]string{"client_secret": "secret"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyCatalog(map[string]string{"client_id": "id"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("AuthURL", func(t *testing.T) {
		srv, _ := NewSpotifyCatalog(testCredentials)
		authURL := srv.AuthURL("test_state")

		for _, want := range []string{"accounts.spotify.com", "test_client_id", "test_state", "playlist-modify-private"} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL %q should contain %q", authURL, want)
			}
		}
	})

	t.Run("Unauthenticated requests fail", func(t *testing.T) {
		srv, _ := NewSpotifyCatalog(testCredentials)
		if _, err := srv.CurrentOwnerID(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if err := srv.Authenticate(context.Background(), &oauth2.Token{}); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated for empty token, got %v", err)
		}
	})

	t.Run("Exchange", func(t *testing.T) {
		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("code") != "the_code" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"issued","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`)
		}))
		defer tokenServer.Close()

		srv, _ := NewSpotifyCatalog(testCredentials)
		srv.config.Endpoint.TokenURL = tokenServer.URL

		token, err := srv.Exchange(context.Background(), "the_code")
		if err != nil {
			t.Fatalf("Exchange() error = %v", err)
		}
		if token.AccessToken != "issued" || token.RefreshToken != "refresh" {
			t.Errorf("unexpected token %+v", token)
		}
		if srv.Token() == nil || srv.Token().AccessToken != "issued" {
			t.Error("expected catalog to be authenticated with the issued token")
		}

		if _, err := srv.Exchange(context.Background(), "wrong"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("CurrentOwnerID", func(t *testing.T) {
		srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/me" {
				t.Errorf("expected path /me, got %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test_access_token" {
				t.Errorf("expected bearer token header, got %q", got)
			}
			json.NewEncoder(w).Encode(SpotifyUser{ID: "owner1", DisplayName: "Owner"})
		})

		id, err := srv.CurrentOwnerID(context.Background())
		if err != nil || id != "owner1" {
			t.Errorf("CurrentOwnerID() = %q, %v", id, err)
		}
	})

	t.Run("ListTracks", func(t *testing.T) {
		t.Run("paginates and skips local and null items", func(t *testing.T) {
			var offsets []string
			srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/playlists/dest1/tracks" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.URL.Query().Get("limit") != "100" {
					t.Errorf("expected page size 100, got %s", r.URL.Query().Get("limit"))
				}
				offset := r.URL.Query().Get("offset")
				offsets = append(offsets, offset)

				switch offset {
				case "0":
					fmt.Fprint(w, `{"items":[
						{"track":{"id":"a","name":"Song A","uri":"spotify:track:a","artists":[{"name":"X"}]}},
						{"track":null},
						{"is_local":true,"track":{"id":"","name":"Local","uri":"spotify:local:1"}}
					],"next":"more"}`)
				default:
					fmt.Fprint(w, `{"items":[{"track":{"id":"b","name":"Song B","artists":[{"name":"Y"},{"name":"Z"}]}}],"next":null}`)
				}
			})

			tracks, err := srv.ListTracks(context.Background(), "dest1")
			if err != nil {
				t.Fatalf("ListTracks() error = %v", err)
			}
			if strings.Join(offsets, ",") != "0,100" {
				t.Errorf("expected offsets 0,100, got %v", offsets)
			}
			if len(tracks) != 2 {
				t.Fatalf("expected 2 tracks, got %d", len(tracks))
			}
			if tracks[0].CatalogID != "a" || tracks[1].CatalogID != "b" {
				t.Errorf("unexpected ids %q, %q", tracks[0].CatalogID, tracks[1].CatalogID)
			}
			if tracks[1].URI != "spotify:track:b" {
				t.Errorf("expected derived uri, got %q", tracks[1].URI)
			}
			if tracks[1].ArtistString() != "Y, Z" {
				t.Errorf("unexpected artists %v", tracks[1].Artists)
			}
		})

		t.Run("rejects catalog items without id", func(t *testing.T) {
			srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"items":[{"track":{"name":"Ghost"}}],"next":null}`)
			})
			if _, err := srv.ListTracks(context.Background(), "dest1"); !errors.Is(err, shared.ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})

		t.Run("maps missing playlist", func(t *testing.T) {
			srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":{"status":404,"message":"Not found."}}`)
			})
			_, err := srv.ListTracks(context.Background(), "gone")
			if !errors.Is(err, shared.ErrPlaylistNotFound) {
				t.Errorf("expected ErrPlaylistNotFound, got %v", err)
			}
			if !strings.Contains(err.Error(), "Not found.") {
				t.Errorf("expected API message in error, got %v", err)
			}
		})
	})

	t.Run("Search", func(t *testing.T) {
		t.Run("returns top candidate", func(t *testing.T) {
			srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Get("q") != "track:Song A artist:X Y" || q.Get("type") != "track" {
					t.Errorf("unexpected query %v", q)
				}
				fmt.Fprint(w, `{"tracks":{"items":[{"id":"a","uri":"spotify:track:a","name":"Song A","artists":[{"name":"X"}]}]}}`)
			})

			match, err := srv.Search(context.Background(), "Song A", []string{"X", "Y"})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if !match.Found() || match.ID != "a" || match.Title != "Song A" {
				t.Errorf("unexpected match %+v", match)
			}
		})

		t.Run("empty result is a miss", func(t *testing.T) {
			srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"tracks":{"items":[]}}`)
			})
			match, err := srv.Search(context.Background(), "Nothing", []string{"Nobody"})
			if err != nil || match.Found() {
				t.Errorf("expected clean miss, got %+v, %v", match, err)
			}
		})

		t.Run("missing tracks object fails", func(t *testing.T) {
			srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{}`)
			})
			_, err := srv.Search(context.Background(), "Song", []string{"X"})
			if !errors.Is(err, shared.ErrSearchFailed) || !errors.Is(err, shared.ErrMalformedResponse) {
				t.Errorf("expected ErrSearchFailed wrapping ErrMalformedResponse, got %v", err)
			}
		})

		t.Run("status errors are search failures", func(t *testing.T) {
			tests := []struct {
				status int
				want   error
			}{
				{status: http.StatusUnauthorized, want: shared.ErrTokenExpired},
				{status: http.StatusTooManyRequests, want: shared.ErrRateLimited},
				{status: http.StatusInternalServerError, want: shared.ErrAPIRequest},
				{status: http.StatusServiceUnavailable, want: shared.ErrServiceUnavailable},
			}

			for _, tt := range tests {
				t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
					srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
						w.Header().Set("Retry-After", "3")
						w.WriteHeader(tt.status)
					})
					_, err := srv.Search(context.Background(), "Song", []string{"X"})
					if !errors.Is(err, shared.ErrSearchFailed) || !errors.Is(err, tt.want) {
						t.Errorf("expected ErrSearchFailed and %v, got %v", tt.want, err)
					}
				})
			}
		})
	})

	t.Run("AddTracks", func(t *testing.T) {
		t.Run("posts uris", func(t *testing.T) {
			var got []string
			srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/playlists/dest1/tracks" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				var body struct {
					URIs []string `json:"uris"`
				}
				json.NewDecoder(r.Body).Decode(&body)
				got = body.URIs
				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, `{"snapshot_id":"snap"}`)
			})

			if err := srv.AddTracks(context.Background(), "dest1", []string{"u1", "u2"}); err != nil {
				t.Fatalf("AddTracks() error = %v", err)
			}
			if strings.Join(got, ",") != "u1,u2" {
				t.Errorf("unexpected uris %v", got)
			}
		})

		t.Run("rejects oversize batch without a request", func(t *testing.T) {
			called := false
			srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) { called = true })

			uris := make([]string, MaxBatchSize+1)
			for i := range uris {
				uris[i] = fmt.Sprintf("spotify:track:%d", i)
			}
			if err := srv.AddTracks(context.Background(), "dest1", uris); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if called {
				t.Error("oversize batch should not reach the API")
			}
		})
	})

	t.Run("CreatePlaylist", func(t *testing.T) {
		srv := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/users/owner1/playlists" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["name"] != "Mix" || body["public"] != false {
				t.Errorf("unexpected body %v", body)
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"new1","name":"Mix"}`)
		})

		id, err := srv.CreatePlaylist(context.Background(), "owner1", "Mix", "desc")
		if err != nil || id != "new1" {
			t.Errorf("CreatePlaylist() = %q, %v", id, err)
		}
	})

	t.Run("refreshableTokenSource", func(t *testing.T) {
		t.Run("reports only changed tokens", func(t *testing.T) {
			first := &oauth2.Token{AccessToken: "token1"}
			second := &oauth2.Token{AccessToken: "token2"}

			var seen []string
			source := &refreshableTokenSource{
				source:   &mockTokenSource{tokens: []*oauth2.Token{first, first, second}},
				last:     first,
				callback: func(token *oauth2.Token) { seen = append(seen, token.AccessToken) },
			}

			for range 3 {
				if _, err := source.Token(); err != nil {
					t.Fatalf("Token() error = %v", err)
				}
			}

			if strings.Join(seen, ",") != "token2" {
				t.Errorf("expected a single callback for token2, got %v", seen)
			}
			if source.current().AccessToken != "token2" {
				t.Errorf("expected current token2, got %s", source.current().AccessToken)
			}
		})

		t.Run("catalog forwards refreshes to callback", func(t *testing.T) {
			srv, _ := NewSpotifyCatalog(testCredentials)
			var got *oauth2.Token
			srv.SetTokenRefreshCallback(func(token *oauth2.Token) { got = token })

			srv.notifyRefresh(&oauth2.Token{AccessToken: "fresh"})
			if got == nil || got.AccessToken != "fresh" {
				t.Errorf("expected callback with fresh token, got %+v", got)
			}

			srv.SetTokenRefreshCallback(nil)
			srv.notifyRefresh(&oauth2.Token{AccessToken: "ignored"})
			if got.AccessToken != "fresh" {
				t.Error("nil callback should not be invoked")
			}
		})
	})

	t.Run("Interface", func(t *testing.T) {
		var _ CatalogClient = (*SpotifyCatalog)(nil)
	})
}
