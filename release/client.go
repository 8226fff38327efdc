// Package release publishes tagged releases through the GitHub REST API.
package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURI = "https://api.github.com"
	DefaultRepo    = "CMSgov/bcda-app"
)

// ErrUnexpectedStatus is returned when the API answers anything but 201 Created.
var ErrUnexpectedStatus = errors.New("could not create release")

// Request is the body of a create-release call.
type Request struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// Release is the part of the created release we report back.
type Release struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

type Client struct {
	BaseURI    string
	Repo       string
	HTTPClient *http.Client
	token      string
	log        zerolog.Logger
}

// NewClient returns a client that retries transport failures and 5xx
// answers up to three times.
func NewClient(log zerolog.Logger, baseURI, token string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = leveledLogger{log}
	retryClient.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	if baseURI == "" {
		baseURI = DefaultBaseURI
	}
	return &Client{
		BaseURI:    baseURI,
		Repo:       DefaultRepo,
		HTTPClient: retryClient.StandardClient(),
		token:      token,
		log:        log,
	}
}

// Create publishes tag as a non-draft, non-prerelease release with notes as
// its body.
func (c *Client) Create(ctx context.Context, tag, notes string) (*Release, error) {
	if tag == "" {
		return nil, errors.New("release tag is required")
	}

	owner, repo, ok := strings.Cut(c.Repo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid repository %q, expected owner/name", c.Repo)
	}

	req, err := c.prepareRequest(ctx, http.MethodPost, "/repos/"+owner+"/"+repo+"/releases", Request{
		TagName: tag,
		Name:    tag,
		Body:    notes,
	})
	if err != nil {
		return nil, err
	}
	c.signRequest(req)

	created := new(Release)
	if err := c.sendRequest(req, http.StatusCreated, created); err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}
	c.log.Info().Str("tag", tag).Str("url", created.HTMLURL).Msg("Successfully created release")
	return created, nil
}

func (c *Client) prepareRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	uri, err := url.JoinPath(c.BaseURI, endpoint)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/vnd.github+json")
	return req, nil
}

func (c *Client) signRequest(req *http.Request) {
	req.Header.Set("Authorization", "token "+c.token)
}

func (c *Client) sendRequest(req *http.Request, want int, response any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug().Str("url", req.URL.String()).Str("status", resp.Status).Msg("Response received")

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != want {
		return fmt.Errorf("%w: server returned %s: %s", ErrUnexpectedStatus, resp.Status, strings.TrimSpace(string(bodyBytes)))
	}

	if response != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, response); err != nil {
			return fmt.Errorf("failed to parse response JSON: %w", err)
		}
	}
	return nil
}

// leveledLogger routes retryablehttp's logging to zerolog.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.event(l.log.Error(), msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.event(l.log.Warn(), msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.event(l.log.Debug(), msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.event(l.log.Trace(), msg, kv) }

func (leveledLogger) event(e *zerolog.Event, msg string, kv []interface{}) {
	e.Fields(kv).Msg(msg)
}
