package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/semmidev/warden/internal/domain"
)

// DriveAuth runs the browser consent flow that yields the refresh token the
// gdrive provider needs.
type DriveAuth struct {
	config *oauth2.Config
	logger domain.Logger
	state  string
	tokens chan *oauth2.Token
}

func NewDriveAuth(clientSecretFile string, logger domain.Logger) (*DriveAuth, error) {
	if clientSecretFile == "" {
		return nil, errors.New("provider.gdrive.client_secret_file is required for --gdrive-auth")
	}

	b, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return &DriveAuth{
		config: cfg,
		logger: logger,
		state:  uuid.NewString(),
		tokens: make(chan *oauth2.Token, 1),
	}, nil
}

func (d *DriveAuth) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		authURL := d.config.AuthCodeURL(d.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	})

	mux.HandleFunc("GET /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != d.state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := d.config.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusInternalServerError)
			return
		}
		if token.RefreshToken == "" {
			http.Error(w, "no refresh token returned, revoke app access and authorize again", http.StatusBadGateway)
			return
		}

		fmt.Fprintln(w, "Authorization complete. The refresh token is printed in the terminal.")
		select {
		case d.tokens <- token:
		default:
		}
	})

	return mux
}

// Serve listens on addr until a refresh token arrives or ctx is done, then
// writes the token to w.
func (d *DriveAuth) Serve(ctx context.Context, addr string, w io.Writer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           d.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	d.logger.Infof("Open http://%s/auth/google/drive in a browser to authorize Google Drive", addr)

	var result error
	select {
	case token := <-d.tokens:
		fmt.Fprintf(w, "refresh_token: %s\n", token.RefreshToken)
	case err := <-errCh:
		result = fmt.Errorf("oauth server: %w", err)
	case <-ctx.Done():
		result = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.logger.Warnf("Failed to shutdown OAuth server: %v", err)
	}
	return result
}
