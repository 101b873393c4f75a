package userservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dmehra2102/order-invoicing/internal/user/domain"
)

var (
	ErrNoSession    = errors.New("user service: no session token")
	ErrUnauthorized = errors.New("user service: unauthorized after session refresh")
	ErrUserNotFound = errors.New("user service: user not found")
)

type Credentials struct {
	Email    string
	Password string
}

type Client struct {
	log          *slog.Logger
	baseURL      string
	creds        Credentials
	httpClient   *http.Client
	loginTimeout time.Duration
	session      *Session
}

// NewClient returns a user-service client. Every call is bounded: logins by
// loginTimeout, profile fetches by timeout.
func NewClient(log *slog.Logger, baseURL string, creds Credentials, timeout, loginTimeout time.Duration) *Client {
	c := &Client{
		log:          log,
		baseURL:      strings.TrimRight(baseURL, "/"),
		creds:        creds,
		httpClient:   &http.Client{Timeout: timeout},
		loginTimeout: loginTimeout,
	}
	c.session = NewSession(log, c.login)
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

func (c *Client) login(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.loginTimeout)
	defer cancel()

	body, err := json.Marshal(loginRequest{Email: c.creds.Email, Password: c.creds.Password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned %d", resp.StatusCode)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("login response carried no access_token")
	}
	return out.AccessToken, nil
}

// FetchUser returns the profile of userID. An Unauthorized answer triggers one
// session refresh and exactly one retry.
func (c *Client) FetchUser(ctx context.Context, userID int64) (domain.Profile, error) {
	token := c.session.Current()
	if token == "" {
		if token = c.session.Refresh(ctx, ""); token == "" {
			return domain.Profile{}, ErrNoSession
		}
	}

	p, status, err := c.getUser(ctx, userID, token)
	if err != nil || status != http.StatusUnauthorized {
		return p, err
	}

	c.log.Info("user service session expired, refreshing", "user_id", userID)
	if token = c.session.Refresh(ctx, token); token == "" {
		return domain.Profile{}, ErrNoSession
	}
	p, status, err = c.getUser(ctx, userID, token)
	if err != nil {
		return p, err
	}
	if status == http.StatusUnauthorized {
		return domain.Profile{}, ErrUnauthorized
	}
	return p, nil
}

type userResponse struct {
	UserData domain.Profile `json:"user_data"`
}

// getUser reports 401 through status so the caller can refresh; every other
// non-200 answer is an error.
func (c *Client) getUser(ctx context.Context, userID int64, token string) (domain.Profile, int, error) {
	url := fmt.Sprintf("%s/users/%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Profile{}, 0, err
	}
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Profile{}, 0, fmt.Errorf("user service request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return domain.Profile{}, resp.StatusCode, nil
	case http.StatusNotFound:
		return domain.Profile{}, resp.StatusCode, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Profile{}, resp.StatusCode, fmt.Errorf("user service returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out userResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Profile{}, resp.StatusCode, fmt.Errorf("decode user %d: %w", userID, err)
	}
	if out.UserData.UserID == 0 {
		out.UserData.UserID = userID
	}
	return out.UserData, resp.StatusCode, nil
}
