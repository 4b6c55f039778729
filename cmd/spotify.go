package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/desertthunder/plsync/internal/server"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// SpotifyAuth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	catalog, err := r.newSpotify(config)
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, config, catalog)
	if err != nil {
		return err
	}

	if err := config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if err := r.saveConfig(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: plsync sync run --dry-run\n")

	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, config *shared.Config, catalog *services.SpotifyCatalog) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewOAuthHandler(catalog, state)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(handler)

	addr := net.JoinHostPort(config.Server.Host, strconv.Itoa(config.Server.Port))
	srv, err := server.Listen(addr, router, r.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()
	r.logger.Infof("started OAuth callback server at %v", srv.Addr())

	authURL := catalog.AuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	waitCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	type outcome struct {
		token *oauth2.Token
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		token, err := handler.Wait(waitCtx)
		done <- outcome{token, err}
	}()

	select {
	case res := <-done:
		if errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, authTimeout)
		}
		if res.err != nil {
			return nil, fmt.Errorf("authorization failed: %w", res.err)
		}
		return res.token, nil
	case err, ok := <-srv.Errors():
		if !ok {
			err = errors.New("callback server stopped")
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}
}

// SpotifyWhoami prints the profile of the authenticated user.
func (r *Runner) SpotifyWhoami(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	catalog, err := r.spotifyClient(ctx, config)
	if err != nil {
		return err
	}
	defer r.persistToken()

	user, err := catalog.UserProfile(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrTokenExpired) {
			return fmt.Errorf("%w: run 'plsync spotify auth' to sign in again", err)
		}
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}

	r.writePlain("Signed in as %s (%s)\n", user.DisplayName, user.ID)
	if user.Country != "" || user.Product != "" {
		r.writePlain("Country: %s  Plan: %s\n", user.Country, user.Product)
	}
	return nil
}

// persistToken writes refreshed tokens back to the config file.
func (r *Runner) persistToken() {
	r.mu.Lock()
	changed := r.tokenChanged
	r.tokenChanged = false
	r.mu.Unlock()

	if !changed {
		return
	}
	if err := r.saveConfig(); err != nil {
		r.logger.Warn("failed to save refreshed token", "error", err)
	}
}
