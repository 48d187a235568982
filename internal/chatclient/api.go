package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"chatsync/internal/models"
)

// APIError is returned for any non-2xx response
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatsync error %d: %s", e.Status, e.Message)
}

// SendRequest is the body of a send call
type SendRequest struct {
	Text    string  `json:"text,omitempty"`
	Image   string  `json:"image,omitempty"`
	ReplyTo *string `json:"replyTo,omitempty"`
}

// API is the REST client. The session cookie is kept in a cookie jar.
type API struct {
	BaseURL    string
	HTTPClient *http.Client
	base       *url.URL
}

// NewAPI creates a client for the server at baseURL
func NewAPI(baseURL string) (*API, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &API{
		BaseURL:    base.String(),
		HTTPClient: &http.Client{Timeout: 30 * time.Second, Jar: jar},
		base:       base,
	}, nil
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (a *API) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		json.Unmarshal(respBody, &errResp)
		if errResp.Message == "" {
			errResp.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: errResp.Message}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Signup creates an account and starts a session
func (a *API) Signup(ctx context.Context, fullName, email, password string) (*models.User, error) {
	var user models.User
	err := a.doRequest(ctx, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": password,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login starts a session
func (a *API) Login(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := a.doRequest(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout ends the session
func (a *API) Logout(ctx context.Context) error {
	return a.doRequest(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// Check returns the user of the current session
func (a *API) Check(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := a.doRequest(ctx, http.MethodGet, "/api/auth/check", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile sets the profile picture from a URL or data URI
func (a *API) UpdateProfile(ctx context.Context, profilePic string) (*models.User, error) {
	var user models.User
	err := a.doRequest(ctx, http.MethodPut, "/api/auth/update-profile", map[string]string{
		"profilePic": profilePic,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Users returns the contact list, most recent conversation first
func (a *API) Users(ctx context.Context) ([]models.Peer, error) {
	var peers []models.Peer
	if err := a.doRequest(ctx, http.MethodGet, "/api/message/users", nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// Online returns the identities currently online
func (a *API) Online(ctx context.Context) ([]string, error) {
	var ids []string
	if err := a.doRequest(ctx, http.MethodGet, "/api/message/online", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Conversation returns the messages exchanged with peerID, oldest first
func (a *API) Conversation(ctx context.Context, peerID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := a.doRequest(ctx, http.MethodGet, "/api/message/"+url.PathEscape(peerID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Send sends a message to peerID
func (a *API) Send(ctx context.Context, peerID string, req SendRequest) (*models.Message, error) {
	var msg models.Message
	if err := a.doRequest(ctx, http.MethodPost, "/api/message/send/"+url.PathEscape(peerID), req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Edit replaces the text of one of the user's messages
func (a *API) Edit(ctx context.Context, messageID, text string) (*models.Message, error) {
	var msg models.Message
	err := a.doRequest(ctx, http.MethodPut, "/api/message/"+url.PathEscape(messageID), map[string]string{
		"text": text,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete removes one of the user's messages
func (a *API) Delete(ctx context.Context, messageID string) error {
	return a.doRequest(ctx, http.MethodDelete, "/api/message/"+url.PathEscape(messageID), nil, nil)
}

// SocketURL returns the websocket endpoint of the server
func (a *API) SocketURL() string {
	u := *a.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws"
	return u.String()
}

// SessionHeader returns a header carrying the session cookie, for the
// websocket handshake.
func (a *API) SessionHeader() http.Header {
	header := http.Header{}
	var parts []string
	for _, c := range a.HTTPClient.Jar.Cookies(a.base) {
		parts = append(parts, c.Name+"="+c.Value)
	}
	if len(parts) > 0 {
		header.Set("Cookie", strings.Join(parts, "; "))
	}
	return header
}

// NewSocket creates a push subscription authenticated with this session
func (a *API) NewSocket() *Socket {
	return NewSocket(a.SocketURL(), a.SessionHeader)
}
