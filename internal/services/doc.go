// Package services defines the [CatalogClient] and [SourceProvider] interfaces and implements them
// for Spotify and Apple Music.
//
// # Spotify Catalog
//
// [SpotifyCatalog] talks to the Spotify Web API with an [oauth2.Config] token source that refreshes
// expired access tokens on its own. Refreshed tokens are reported through
// [SpotifyCatalog.SetTokenRefreshCallback] so the caller can persist them.
// Every request waits on a [rate.Limiter] first.
//
// Responses decode into explicit structs and are checked at the boundary: a playlist item that is
// neither local nor null must carry an id, and a search response must carry a tracks object.
//
// # Apple Music Source
//
// [AppleMusicSource] scrapes a public playlist page. It collects the song links from the
// music:song meta tags, then reads title and artists from each song page's embedded
// serialized-server-data script. Songs that cannot be read are logged and skipped.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrTokenExpired] : 401 from the API, reauthorization needed
//   - [shared.ErrRateLimited] : 429 from the API
//   - [shared.ErrAPIRequest] : any other non-2xx status or transport failure
//   - [shared.ErrMalformedResponse] : required fields missing from a response
//   - [shared.ErrSearchFailed] : wraps any of the above for a search call
//   - [shared.ErrInvalidArgument] : AddTracks called with more than [MaxBatchSize] URIs
package services
