// Apple Music web page implementation of [SourceProvider]
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"
)

const (
	songMetaProperty = "music:song"
	serverDataID     = "serialized-server-data"

	// maxPageBytes bounds how much of a page is parsed.
	maxPageBytes = 8 << 20
)

// appleServerData mirrors the part of the serialized-server-data payload that describes a song.
type appleServerData []struct {
	Data struct {
		Sections []struct {
			Items []struct {
				Title   string `json:"title"`
				Artists string `json:"artists"`
			} `json:"items"`
		} `json:"sections"`
	} `json:"data"`
}

// AppleMusicOption configures an [AppleMusicSource].
type AppleMusicOption func(*AppleMusicSource)

// WithSourceHTTPClient sets the client used to fetch pages.
func WithSourceHTTPClient(c *http.Client) AppleMusicOption {
	return func(a *AppleMusicSource) { a.httpClient = c }
}

// WithSourceRateLimit paces page fetches to rps per second. Zero disables pacing.
func WithSourceRateLimit(rps float64) AppleMusicOption {
	return func(a *AppleMusicSource) {
		if rps > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			a.limiter = nil
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every page request.
func WithUserAgent(ua string) AppleMusicOption {
	return func(a *AppleMusicSource) { a.userAgent = ua }
}

// WithSourceLogger sets the logger that receives skipped-item warnings.
func WithSourceLogger(l *log.Logger) AppleMusicOption {
	return func(a *AppleMusicSource) { a.logger = l }
}

// AppleMusicSource reads the ordered track list of a public Apple Music playlist page.
type AppleMusicSource struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	logger     *log.Logger
}

// NewAppleMusicSource creates a source with the given options.
func NewAppleMusicSource(opts ...AppleMusicOption) *AppleMusicSource {
	a := &AppleMusicSource{
		httpClient: http.DefaultClient,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchTracks returns the playlist's tracks in page order, duplicates included.
//
// Songs whose pages cannot be fetched or decoded are logged and skipped.
func (a *AppleMusicSource) FetchTracks(ctx context.Context, locator string) ([]models.TrackRecord, error) {
	base, err := url.Parse(locator)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid playlist url %q", shared.ErrSourceFetch, locator)
	}

	doc, err := a.fetchDocument(ctx, base.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrSourceFetch, err)
	}

	links := songLinks(doc)
	logger := a.logger.With("playlist", locator)
	logger.Debug("found song links", "count", len(links))

	tracks := make([]models.TrackRecord, 0, len(links))
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrSourceFetch, err)
		}

		songURL, err := base.Parse(link)
		if err != nil {
			logger.Warn("skipping song with invalid url", "url", link, "error", err)
			continue
		}

		track, err := a.fetchSong(ctx, songURL.String())
		if err != nil {
			logger.Warn("could not get song info", "url", songURL.String(), "error", err)
			continue
		}

		logger.Debug("fetched song", "title", track.Title, "artists", track.ArtistString())
		tracks = append(tracks, track)
	}

	return tracks, nil
}

func (a *AppleMusicSource) fetchSong(ctx context.Context, songURL string) (models.TrackRecord, error) {
	doc, err := a.fetchDocument(ctx, songURL)
	if err != nil {
		return models.TrackRecord{}, err
	}

	data, ok := serverData(doc)
	if !ok {
		return models.TrackRecord{}, fmt.Errorf("%w: no %s script", shared.ErrMalformedResponse, serverDataID)
	}

	return parseSongData(data)
}

// fetchDocument GETs pageURL and parses the body as HTML.
func (a *AppleMusicSource) fetchDocument(ctx context.Context, pageURL string) (*html.Node, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: status %d", shared.ErrAPIRequest, pageURL, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse html: %v", shared.ErrMalformedResponse, err)
	}
	return doc, nil
}

// songLinks returns the content of every <meta property="music:song"> in document order.
func songLinks(doc *html.Node) []string {
	var links []string
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Meta && attr(n, "property") == songMetaProperty {
			if content := strings.TrimSpace(attr(n, "content")); content != "" {
				links = append(links, content)
			}
		}
		return true
	})
	return links
}

// serverData returns the text of the serialized-server-data JSON script.
func serverData(doc *html.Node) ([]byte, bool) {
	var data []byte
	found := false
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Script || attr(n, "id") != serverDataID {
			return true
		}
		if t := attr(n, "type"); t != "" && t != "application/json" {
			return true
		}
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		data, found = []byte(sb.String()), true
		return false
	})
	return data, found
}

// parseSongData extracts the first section item's title and comma separated artists.
func parseSongData(data []byte) (models.TrackRecord, error) {
	var payload appleServerData
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.TrackRecord{}, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
	}

	if len(payload) == 0 || len(payload[0].Data.Sections) == 0 || len(payload[0].Data.Sections[0].Items) == 0 {
		return models.TrackRecord{}, fmt.Errorf("%w: song data has no items", shared.ErrMalformedResponse)
	}

	item := payload[0].Data.Sections[0].Items[0]
	track := models.NewTrackRecord(item.Title, strings.Split(item.Artists, ", ")...)
	if err := track.Validate(); err != nil {
		return models.TrackRecord{}, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
	}
	return track, nil
}

// walk visits n and its descendants depth first until visit returns false.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if n.Type == html.ElementNode && !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
