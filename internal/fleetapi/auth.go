package fleetapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fleetdesk/fleetdesk-client/internal/session"
)

// Token is the /auth/login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Registration is the /auth/register request body.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Login exchanges credentials for a token. The session is not modified;
// the caller stores the token once the profile has been fetched.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var tok Token
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &tok)
	if errors.Is(err, ErrUnauthorized) {
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, err
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("fleetapi: login response carried no access_token")
	}
	return tok, nil
}

// Register creates an account and returns its profile.
func (c *Client) Register(ctx context.Context, reg Registration) (session.User, error) {
	body, err := jsonBody(reg)
	if err != nil {
		return session.User{}, err
	}

	var user session.User
	if err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        body,
		contentType: "application/json",
	}, &user); err != nil {
		return session.User{}, err
	}
	return user, nil
}

// Me fetches the profile for token. It is called right after Login, before
// the token is stored, so a 401 here does not clear the session.
func (c *Client) Me(ctx context.Context, token string) (session.User, error) {
	if token == "" {
		return session.User{}, ErrUnauthorized
	}

	var user session.User
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/me",
		token:  token,
	}, &user); err != nil {
		return session.User{}, err
	}
	return user, nil
}
