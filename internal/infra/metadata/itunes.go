package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var appleMusicPattern = regexp.MustCompile(`^https?://(?:music|itunes)\.apple\.com/`)

// ITunesClient reads Apple Music titles through the iTunes lookup API.
type ITunesClient struct {
	baseURL    string
	httpClient *http.Client
}

// itunesLookupResponse represents the response from the lookup endpoint.
type itunesLookupResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		WrapperType    string `json:"wrapperType"`
		TrackName      string `json:"trackName"`
		CollectionName string `json:"collectionName"`
		ArtistName     string `json:"artistName"`
	} `json:"results"`
}

// NewITunes creates an iTunes lookup client.
func NewITunes() *ITunesClient {
	return &ITunesClient{
		baseURL:    "https://itunes.apple.com/",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Name returns the extractor name.
func (c *ITunesClient) Name() string {
	return "applemusic"
}

// CanExtract reports whether the URL is an Apple Music link.
func (c *ITunesClient) CanExtract(rawURL string) bool {
	return appleMusicPattern.MatchString(rawURL)
}

// ExtractTitle returns "Artist - Title" for an Apple Music song or album link.
// Reference: https://performance-partners.apple.com/search-api
func (c *ITunesClient) ExtractTitle(ctx context.Context, rawURL string) (string, error) {
	id, err := appleMusicID(rawURL)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("id", id)
	body, err := getBody(ctx, c.httpClient, c.baseURL+"lookup?"+params.Encode())
	if err != nil {
		return "", err
	}

	var response itunesLookupResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, "failed to parse response")
	}
	if response.ResultCount == 0 || len(response.Results) == 0 {
		return "", errors.Newf("no itunes result for id %s", id)
	}

	r := response.Results[0]
	name := r.TrackName
	if name == "" {
		name = r.CollectionName
	}
	return joinArtistTitle(r.ArtistName, name), nil
}

// appleMusicID extracts the song id (?i=) or, failing that, the trailing
// numeric path segment of an album or song link.
func appleMusicID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse url")
	}
	if i := u.Query().Get("i"); i != "" {
		return i, nil
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	last = strings.TrimPrefix(last, "id")
	if last == "" || strings.Trim(last, "0123456789") != "" {
		return "", errors.Newf("no apple music id in url: %s", rawURL)
	}
	return last, nil
}
