package rmcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vkorhonen/remarkable-go/internal/tokenfile"
)

// Authentication endpoints, under a fixed host separate from storage.
const (
	defaultAuthHost = "https://my.remarkable.com"

	deviceTokenEndpoint = "/token/json/2/device/new"
	userTokenEndpoint   = "/token/json/2/user/new"
)

// defaultDeviceDesc identifies the client to the registration endpoint.
const defaultDeviceDesc = "desktop-linux"

// Refresh policy defaults. The service does not report the user token's
// lifetime, so expiry is tracked client-side from the time of refresh.
const (
	// DefaultTokenTTL is the assumed user-token lifetime.
	DefaultTokenTTL = 30 * time.Minute

	// DefaultRefreshSkew refreshes this margin before assumed expiry.
	DefaultRefreshSkew = 1 * time.Minute
)

// SessionOptions tunes a Session. Zero values select defaults.
type SessionOptions struct {
	// AuthHost overrides the authentication host (tests).
	AuthHost string

	// DeviceDesc overrides the device description sent during registration.
	DeviceDesc string

	// TokenTTL is the assumed user-token lifetime.
	TokenTTL time.Duration

	// RefreshSkew refreshes the user token this long before assumed expiry.
	RefreshSkew time.Duration

	// AlwaysRefresh restores the refresh-on-every-call policy: every
	// EnsureAuthenticated performs a refresh round trip regardless of
	// tracked expiry.
	AlwaysRefresh bool
}

// Session owns the credential pair while in memory and produces a valid user
// token on demand. It persists every successful refresh to the credential
// file. A Session is safe for concurrent use.
type Session struct {
	path       string
	authHost   string
	deviceDesc string
	httpClient *http.Client
	logger     *slog.Logger

	tokenTTL      time.Duration
	refreshSkew   time.Duration
	alwaysRefresh bool

	// now is the clock; tests override it to pin expiry decisions.
	now func() time.Time

	mu         sync.Mutex
	creds      *tokenfile.Credentials
	userExpiry time.Time
}

// NewSession creates a session persisting credentials at path.
func NewSession(path string, httpClient *http.Client, logger *slog.Logger, opts SessionOptions) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	s := &Session{
		path:          path,
		authHost:      defaultAuthHost,
		deviceDesc:    defaultDeviceDesc,
		httpClient:    httpClient,
		logger:        logger,
		tokenTTL:      DefaultTokenTTL,
		refreshSkew:   DefaultRefreshSkew,
		alwaysRefresh: opts.AlwaysRefresh,
		now:           time.Now,
	}

	if opts.AuthHost != "" {
		s.authHost = opts.AuthHost
	}

	if opts.DeviceDesc != "" {
		s.deviceDesc = opts.DeviceDesc
	}

	if opts.TokenTTL > 0 {
		s.tokenTTL = opts.TokenTTL
	}

	if opts.RefreshSkew > 0 {
		s.refreshSkew = opts.RefreshSkew
	}

	return s
}

// Register exchanges a one-time code plus a freshly generated device ID for a
// long-lived device token. The resulting pair has an empty user token; the
// caller obtains one via EnsureAuthenticated or RefreshUserToken. Register
// does not persist; the first refresh does.
func (s *Session) Register(ctx context.Context, code string) (*tokenfile.Credentials, error) {
	deviceID := uuid.NewString()

	s.logger.Info("registering device",
		slog.String("device_id", deviceID),
		slog.String("device_desc", s.deviceDesc),
	)

	body, err := json.Marshal(registrationRequest{
		Code:       code,
		DeviceDesc: s.deviceDesc,
		DeviceID:   deviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("rmcloud: encoding registration request: %w", err)
	}

	token, err := s.tokenExchange(ctx, deviceTokenEndpoint, bytes.NewReader(body), "", "register", ErrRegistration)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = &tokenfile.Credentials{DeviceToken: token, UserToken: ""}
	s.userExpiry = time.Time{}

	s.logger.Info("device registered")

	return &tokenfile.Credentials{DeviceToken: token}, nil
}

// RefreshUserToken exchanges the device token for a new user token and
// records its assumed expiry. It does not persist; EnsureAuthenticated does.
func (s *Session) RefreshUserToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refreshLocked(ctx)
}

// refreshLocked performs the user-token exchange. Callers hold s.mu.
func (s *Session) refreshLocked(ctx context.Context) (string, error) {
	if s.creds == nil || s.creds.DeviceToken == "" {
		return "", apiError("refresh", ErrNotRegistered, 0, "no device token; register first")
	}

	token, err := s.tokenExchange(ctx, userTokenEndpoint, http.NoBody, s.creds.DeviceToken, "refresh", ErrTokenRefresh)
	if err != nil {
		return "", err
	}

	s.creds.UserToken = token
	s.userExpiry = s.now().Add(s.tokenTTL)

	s.logger.Debug("user token refreshed",
		slog.Time("assumed_expiry", s.userExpiry),
	)

	return token, nil
}

// tokenExchange POSTs to an auth endpoint and returns the raw token body.
// Both exchanges return the token as plain text; an empty body is a failure.
func (s *Session) tokenExchange(
	ctx context.Context, endpoint string, body io.Reader, bearer, op string, sentinel error,
) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authHost+endpoint, body)
	if err != nil {
		return "", fmt.Errorf("rmcloud: creating %s request: %w", op, err)
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	if body != http.NoBody {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", apiError(op, sentinel, 0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apiError(op, sentinel, resp.StatusCode, "reading response: "+err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return "", apiError(op, sentinel, resp.StatusCode, trimBody(respBody))
	}

	token := strings.TrimSpace(string(respBody))
	if token == "" {
		return "", apiError(op, sentinel, resp.StatusCode, "empty token in response")
	}

	return token, nil
}

// EnsureAuthenticated returns a credential pair with a live user token,
// loading persisted credentials on first use and refreshing the user token
// when it is missing, past its assumed expiry, or within the skew margin of
// it. Every refresh is persisted to the credential file. With AlwaysRefresh
// the call performs a refresh round trip unconditionally.
func (s *Session) EnsureAuthenticated(ctx context.Context) (*tokenfile.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds == nil {
		creds, err := tokenfile.Load(s.path)
		if err != nil {
			return nil, apiError("load credentials", ErrConfig, 0, err.Error())
		}

		s.creds = creds
	}

	if s.creds == nil || s.creds.DeviceToken == "" {
		return nil, apiError("authenticate", ErrNotRegistered, 0,
			"no credentials found; register this device with a one-time code first")
	}

	if s.needsRefreshLocked() {
		if _, err := s.refreshLocked(ctx); err != nil {
			return nil, err
		}

		if err := tokenfile.Save(s.path, s.creds); err != nil {
			return nil, apiError("save credentials", ErrConfig, 0, err.Error())
		}
	}

	pair := *s.creds

	return &pair, nil
}

// needsRefreshLocked decides whether the user token must be refreshed.
// Callers hold s.mu.
func (s *Session) needsRefreshLocked() bool {
	if s.alwaysRefresh {
		return true
	}

	if s.creds.UserToken == "" {
		return true
	}

	return !s.now().Add(s.refreshSkew).Before(s.userExpiry)
}

// Token implements TokenSource: it returns a live user token for use as a
// bearer credential, refreshing and persisting as needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	creds, err := s.EnsureAuthenticated(ctx)
	if err != nil {
		return "", err
	}

	return creds.UserToken, nil
}
