// Package client provides a Go client for the Murmur API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alphabot-ai/murmur/internal/model"
	"github.com/alphabot-ai/murmur/internal/service"
)

var ErrConflict = errors.New("conflict")

// Client is a Murmur API client. Token, when set, is sent as a bearer
// credential on every request.
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	Token        string
	RefreshToken string
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type authResponse struct {
	User   model.User      `json:"user"`
	Tokens model.TokenPair `json:"tokens"`
	Error  string          `json:"error"`
}

// Register creates an account and authenticates the client.
func (c *Client) Register(in service.RegisterInput) (model.User, error) {
	resp, err := c.doRequest(http.MethodPost, "/api/auth/register", in)
	if err != nil {
		return model.User{}, err
	}
	defer resp.Body.Close()

	var result authResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.User{}, err
	}
	if resp.StatusCode == http.StatusConflict {
		return model.User{}, fmt.Errorf("%w: %s", ErrConflict, result.Error)
	}
	if resp.StatusCode != http.StatusCreated {
		return model.User{}, fmt.Errorf("register: %s", result.Error)
	}
	c.Token = result.Tokens.AccessToken
	c.RefreshToken = result.Tokens.RefreshToken
	return result.User, nil
}

// Login authenticates with username and password.
func (c *Client) Login(username, password string) (model.User, error) {
	resp, err := c.doRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return model.User{}, err
	}
	defer resp.Body.Close()

	var result authResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.User{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return model.User{}, fmt.Errorf("login: %s", result.Error)
	}
	c.Token = result.Tokens.AccessToken
	c.RefreshToken = result.Tokens.RefreshToken
	return result.User, nil
}

// Refresh rotates the token pair.
func (c *Client) Refresh() error {
	resp, err := c.doRequest(http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": c.RefreshToken,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result authResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh: %s", result.Error)
	}
	c.Token = result.Tokens.AccessToken
	c.RefreshToken = result.Tokens.RefreshToken
	return nil
}

// Me returns the authenticated user.
func (c *Client) Me() (model.User, error) {
	var user model.User
	err := c.doJSON(http.MethodGet, "/api/auth/me", nil, http.StatusOK, &user)
	return user, err
}

// CreatePost submits a post. With no token set the post is anonymous.
func (c *Client) CreatePost(content, category string) (model.Post, error) {
	var post model.Post
	err := c.doJSON(http.MethodPost, "/api/posts", map[string]string{
		"content":  content,
		"category": category,
	}, http.StatusCreated, &post)
	return post, err
}

func (c *Client) GetPost(id int64) (model.Post, error) {
	var post model.Post
	err := c.doJSON(http.MethodGet, fmt.Sprintf("/api/posts/%d", id), nil, http.StatusOK, &post)
	return post, err
}

func (c *Client) ListPosts(category string) ([]model.Post, error) {
	path := "/api/posts"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var result struct {
		Posts []model.Post `json:"posts"`
	}
	err := c.doJSON(http.MethodGet, path, nil, http.StatusOK, &result)
	return result.Posts, err
}

func (c *Client) SearchPosts(query string) ([]model.Post, error) {
	var result struct {
		Posts []model.Post `json:"posts"`
	}
	err := c.doJSON(http.MethodGet, "/api/posts/search?q="+url.QueryEscape(query), nil, http.StatusOK, &result)
	return result.Posts, err
}

func (c *Client) UpdatePost(id int64, content string) (model.Post, error) {
	var post model.Post
	err := c.doJSON(http.MethodPut, fmt.Sprintf("/api/posts/%d", id), map[string]string{
		"content": content,
	}, http.StatusOK, &post)
	return post, err
}

func (c *Client) DeletePost(id int64) error {
	return c.doJSON(http.MethodDelete, fmt.Sprintf("/api/posts/%d", id), nil, http.StatusNoContent, nil)
}

// Upvote casts an up vote and returns the post's new score.
func (c *Client) Upvote(postID int64) (int, error) {
	return c.vote(postID, "upvote")
}

// Downvote casts a down vote and returns the post's new score.
func (c *Client) Downvote(postID int64) (int, error) {
	return c.vote(postID, "downvote")
}

func (c *Client) vote(postID int64, direction string) (int, error) {
	resp, err := c.doRequest(http.MethodPost, fmt.Sprintf("/api/posts/%d/%s", postID, direction), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result struct {
		Score int    `json:"score"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	if resp.StatusCode == http.StatusConflict {
		return 0, fmt.Errorf("%w: %s", ErrConflict, result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%s: %s", direction, result.Error)
	}
	return result.Score, nil
}

func (c *Client) GetProfile(userID int64) (model.Profile, error) {
	var profile model.Profile
	err := c.doJSON(http.MethodGet, fmt.Sprintf("/api/users/%d/profile", userID), nil, http.StatusOK, &profile)
	return profile, err
}

func (c *Client) doRequest(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTPClient.Do(req)
}

// doJSON runs a request, expects wantStatus, and decodes the body into
// dest when dest is non-nil.
func (c *Client) doJSON(method, path string, body any, wantStatus int, dest any) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
