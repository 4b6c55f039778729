// Package server provides the HTTP pieces behind `plsync spotify auth`.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [BasicRouter] implements it on top of [http.ServeMux]; [RequestLogger] is the only middleware.
//
// # OAuth Callback Handler
//
// [OAuthHandler] receives the authorization code redirect, checks the state parameter against the
// value generated for the login attempt, and trades the code for a token through an [Exchanger]
// (the Spotify catalog client). The outcome is delivered once on [OAuthHandler.Result].
//
// # Callback Server
//
// [Listen] binds the configured host and port before the browser is opened and serves until
// [CallbackServer.Shutdown] is called after the token arrives.
package server
