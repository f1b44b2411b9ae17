// Package metadata provides title lookups against public, unauthenticated
// music platform endpoints.
package metadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
)

const defaultTimeout = 10 * time.Second

var deezerTrackPattern = regexp.MustCompile(`^https?://(?:www\.)?deezer\.com/(?:[a-z]{2}/)?track/(\d+)`)

// DeezerClient reads track titles from the Deezer public API.
type DeezerClient struct {
	baseURL    string
	httpClient *http.Client
}

// deezerTrackResponse represents the response from the /track/{id} endpoint.
type deezerTrackResponse struct {
	Title  string `json:"title"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// NewDeezer creates a Deezer client.
func NewDeezer() *DeezerClient {
	return &DeezerClient{
		baseURL:    "https://api.deezer.com/",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Name returns the extractor name.
func (c *DeezerClient) Name() string {
	return "deezer"
}

// CanExtract reports whether the URL is a Deezer track link.
func (c *DeezerClient) CanExtract(url string) bool {
	return deezerTrackPattern.MatchString(url)
}

// ExtractTitle returns "Artist - Title" for a Deezer track link.
// Reference: https://developers.deezer.com/api/track
func (c *DeezerClient) ExtractTitle(ctx context.Context, url string) (string, error) {
	m := deezerTrackPattern.FindStringSubmatch(url)
	if m == nil {
		return "", errors.Newf("not a deezer track url: %s", url)
	}

	body, err := getBody(ctx, c.httpClient, c.baseURL+"track/"+m[1])
	if err != nil {
		return "", err
	}

	var response deezerTrackResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, "failed to parse response")
	}
	if response.Error != nil {
		return "", errors.Errorf("deezer API error %d: %s", response.Error.Code, response.Error.Message)
	}

	return joinArtistTitle(response.Artist.Name, response.Title), nil
}

// getBody performs a GET request and returns the body of a 2xx response.
func getBody(ctx context.Context, client *http.Client, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; encore/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("unexpected status %d from %s", resp.StatusCode, reqURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	return body, nil
}

func joinArtistTitle(artist, title string) string {
	if title == "" {
		return ""
	}
	if artist == "" {
		return title
	}
	return artist + " - " + title
}
