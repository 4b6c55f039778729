// Spotify Web API implementation of [CatalogClient]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// spotifyPageSize is the maximum page size of the playlist items endpoint.
	spotifyPageSize = 100
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
	IsLocal bool            `json:"is_local"`
}

func (t SpotifyTrack) artistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}

// SpotifyPlaylistItem is one entry of a playlist; Track is nil for removed or unavailable items.
type SpotifyPlaylistItem struct {
	AddedAt string        `json:"added_at"`
	IsLocal bool          `json:"is_local"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPlaylistItems represents a paginated response of playlist items.
type SpotifyPlaylistItems struct {
	Items  []SpotifyPlaylistItem `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
	Next   *string               `json:"next"`
}

// SpotifySearchResponse is the search endpoint payload for type=track.
type SpotifySearchResponse struct {
	Tracks *struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

// SpotifyPlaylist is the subset of the playlist object returned on creation.
type SpotifyPlaylist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyOption configures a [SpotifyCatalog].
type SpotifyOption func(*SpotifyCatalog)

// WithBaseURL points the catalog at a different API root, e.g. an httptest server.
func WithBaseURL(baseURL string) SpotifyOption {
	return func(s *SpotifyCatalog) { s.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithRateLimit paces requests to rps per second. Zero disables pacing.
func WithRateLimit(rps float64) SpotifyOption {
	return func(s *SpotifyCatalog) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			s.limiter = nil
		}
	}
}

// WithHTTPClient sets the transport used beneath the OAuth2 client.
func WithHTTPClient(c *http.Client) SpotifyOption {
	return func(s *SpotifyCatalog) { s.baseClient = c }
}

// WithSpotifyLogger sets the logger used for request tracing.
func WithSpotifyLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyCatalog) { s.logger = l }
}

// SpotifyCatalog implements [CatalogClient] against the Spotify Web API.
// Uses [oauth2] for authentication and refreshes expired tokens transparently.
type SpotifyCatalog struct {
	config      *oauth2.Config
	baseURL     string
	baseClient  *http.Client
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *log.Logger
	tokenSource *refreshableTokenSource

	mu             sync.Mutex
	onTokenRefresh func(*oauth2.Token)
}

// NewSpotifyCatalog creates a Spotify catalog client with the given OAuth2 credentials.
//
// The client must be authenticated with [SpotifyCatalog.Authenticate] or [SpotifyCatalog.Exchange]
// before any API call.
func NewSpotifyCatalog(credentials map[string]string, opts ...SpotifyOption) (*SpotifyCatalog, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	s := &SpotifyCatalog{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes: []string{
				"playlist-read-private",
				"playlist-modify-public",
				"playlist-modify-private",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyAuthURL,
				TokenURL: spotifyTokenURL,
			},
		},
		baseURL:    spotifyBaseURL,
		baseClient: http.DefaultClient,
		logger:     log.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Name returns the service name.
func (s *SpotifyCatalog) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyCatalog) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and authenticates the client with it.
func (s *SpotifyCatalog) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", shared.ErrAuthFailed)
	}

	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}

	if err := s.Authenticate(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Authenticate installs token and builds an HTTP client that refreshes it when it expires.
func (s *SpotifyCatalog) Authenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return fmt.Errorf("%w: no access or refresh token", shared.ErrNotAuthenticated)
	}

	// Refreshes may happen long after ctx is done, so detach from its cancellation.
	oauthCtx := context.WithoutCancel(s.oauthContext(ctx))
	source := oauth2.ReuseTokenSource(token, s.config.TokenSource(oauthCtx, token))

	s.tokenSource = &refreshableTokenSource{
		source:   source,
		last:     token,
		callback: s.notifyRefresh,
	}
	s.httpClient = oauth2.NewClient(oauthCtx, s.tokenSource)
	return nil
}

// Token returns the most recent token seen by the client, or nil before authentication.
func (s *SpotifyCatalog) Token() *oauth2.Token {
	if s.tokenSource == nil {
		return nil
	}
	return s.tokenSource.current()
}

// SetTokenRefreshCallback registers fn to receive every newly issued token.
func (s *SpotifyCatalog) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTokenRefresh = fn
}

func (s *SpotifyCatalog) notifyRefresh(token *oauth2.Token) {
	s.mu.Lock()
	fn := s.onTokenRefresh
	s.mu.Unlock()

	if fn != nil {
		fn(token)
	}
}

func (s *SpotifyCatalog) oauthContext(ctx context.Context) context.Context {
	if s.baseClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.baseClient)
}

// doRequest performs an authenticated, rate limited request against the API and decodes the JSON
// response into result when result is non-nil.
func (s *SpotifyCatalog) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	if s.httpClient == nil {
		return shared.ErrNotAuthenticated
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	s.logger.Debug("spotify request", "method", method, "endpoint", endpoint)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token refresh failed: %v", shared.ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrMalformedResponse, err)
		}
	}

	return nil
}

// statusError maps a non-2xx response to a shared error, keeping the API's message when present.
func statusError(resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	var body spotifyErrorBody
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
			msg = body.Error.Message
		}
	}

	var kind error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		kind = shared.ErrTokenExpired
	case http.StatusTooManyRequests:
		kind = shared.ErrRateLimited
		if after := resp.Header.Get("Retry-After"); after != "" {
			msg += " (retry after " + after + "s)"
		}
	case http.StatusNotFound:
		kind = shared.ErrPlaylistNotFound
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		kind = shared.ErrServiceUnavailable
	default:
		kind = shared.ErrAPIRequest
	}

	return fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, msg)
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyCatalog) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentOwnerID returns the authenticated user's id.
func (s *SpotifyCatalog) CurrentOwnerID(ctx context.Context) (string, error) {
	user, err := s.UserProfile(ctx)
	if err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: profile without id", shared.ErrMalformedResponse)
	}
	return user.ID, nil
}

// playlistItems fetches one page of a playlist's items.
func (s *SpotifyCatalog) playlistItems(ctx context.Context, playlistID string, offset, limit int) (*SpotifyPlaylistItems, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(limit))
	query.Set("offset", fmt.Sprint(offset))

	var page SpotifyPlaylistItems
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	if err := s.doRequest(ctx, http.MethodGet, endpoint, query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListTracks returns every catalog track in the playlist.
//
// Removed items (null track) and local files are skipped since they have no catalog id.
func (s *SpotifyCatalog) ListTracks(ctx context.Context, destinationID string) ([]models.TrackRecord, error) {
	if destinationID == "" {
		return nil, fmt.Errorf("%w: destination id is required", shared.ErrInvalidArgument)
	}

	return CollectPages(ctx, spotifyPageSize, func(ctx context.Context, offset, limit int) (Page[models.TrackRecord], error) {
		page, err := s.playlistItems(ctx, destinationID, offset, limit)
		if err != nil {
			return Page[models.TrackRecord]{}, err
		}

		records := make([]models.TrackRecord, 0, len(page.Items))
		for i, item := range page.Items {
			if item.Track == nil || item.IsLocal || item.Track.IsLocal {
				continue
			}
			if item.Track.ID == "" {
				return Page[models.TrackRecord]{}, fmt.Errorf("%w: playlist item %d has no track id", shared.ErrMalformedResponse, offset+i)
			}

			record := models.NewTrackRecord(item.Track.Name, item.Track.artistNames()...)
			record.CatalogID = item.Track.ID
			record.URI = item.Track.URI
			if record.URI == "" {
				record.URI = "spotify:track:" + item.Track.ID
			}
			records = append(records, record)
		}

		return Page[models.TrackRecord]{Items: records, Next: page.Next != nil}, nil
	})
}

// Search queries the catalog for title by artists and returns the top-ranked candidate.
func (s *SpotifyCatalog) Search(ctx context.Context, title string, artists []string) (models.MatchResult, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("track:%s artist:%s", title, strings.Join(artists, " ")))
	query.Set("type", "track")
	query.Set("limit", "1")

	var response SpotifySearchResponse
	if err := s.doRequest(ctx, http.MethodGet, "/search", query, nil, &response); err != nil {
		return models.MatchResult{}, fmt.Errorf("%w: %w", shared.ErrSearchFailed, err)
	}

	if response.Tracks == nil {
		return models.MatchResult{}, fmt.Errorf("%w: %w: response has no tracks object", shared.ErrSearchFailed, shared.ErrMalformedResponse)
	}
	if len(response.Tracks.Items) == 0 {
		return models.MatchResult{}, nil
	}

	top := response.Tracks.Items[0]
	return models.NewMatchResult(top.ID, top.URI, top.Name, top.artistNames()), nil
}

// AddTracks appends uris to the playlist in a single request.
func (s *SpotifyCatalog) AddTracks(ctx context.Context, destinationID string, uris []string) error {
	if len(uris) == 0 {
		return nil
	}
	if len(uris) > MaxBatchSize {
		return fmt.Errorf("%w: %d uris exceeds batch size %d", shared.ErrInvalidArgument, len(uris), MaxBatchSize)
	}

	body := map[string][]string{"uris": uris}
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(destinationID))
	var snapshot struct {
		SnapshotID string `json:"snapshot_id"`
	}
	return s.doRequest(ctx, http.MethodPost, endpoint, nil, body, &snapshot)
}

// CreatePlaylist creates a private playlist for ownerID.
func (s *SpotifyCatalog) CreatePlaylist(ctx context.Context, ownerID, name, description string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner id is required", shared.ErrInvalidArgument)
	}

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	}

	var playlist SpotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(ownerID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, nil, body, &playlist); err != nil {
		return "", err
	}
	if playlist.ID == "" {
		return "", fmt.Errorf("%w: created playlist has no id", shared.ErrMalformedResponse)
	}
	return playlist.ID, nil
}

// refreshableTokenSource reports each newly issued token to callback.
type refreshableTokenSource struct {
	mu       sync.Mutex
	source   oauth2.TokenSource
	last     *oauth2.Token
	callback func(*oauth2.Token)
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := r.last == nil || r.last.AccessToken != token.AccessToken
	r.last = token
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}

func (r *refreshableTokenSource) current() *oauth2.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
