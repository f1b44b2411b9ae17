package metadata

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"
)

var httpPattern = regexp.MustCompile(`^https?://`)

// OpenGraphClient reads the og:title (or <title>) of an arbitrary page.
// It is the fallback for platforms without a public metadata API, such as
// Tidal or Amazon Music.
type OpenGraphClient struct {
	httpClient *http.Client
	hosts      []string
}

// NewOpenGraph creates a page title client. With no hosts it accepts any
// http(s) URL.
func NewOpenGraph(hosts ...string) *OpenGraphClient {
	return &OpenGraphClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		hosts:      hosts,
	}
}

// Name returns the extractor name.
func (c *OpenGraphClient) Name() string {
	return "opengraph"
}

// CanExtract reports whether the URL is http(s) and, if hosts are set, on one of them.
func (c *OpenGraphClient) CanExtract(url string) bool {
	if !httpPattern.MatchString(url) {
		return false
	}
	if len(c.hosts) == 0 {
		return true
	}
	for _, h := range c.hosts {
		if strings.Contains(url, h) {
			return true
		}
	}
	return false
}

// ExtractTitle fetches the page and returns its title.
func (c *OpenGraphClient) ExtractTitle(ctx context.Context, url string) (string, error) {
	body, err := getBody(ctx, c.httpClient, url)
	if err != nil {
		return "", err
	}

	title, err := ParsePageTitle(body)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read title of %s", url)
	}
	return title, nil
}

// ParsePageTitle returns og:title, then twitter:title, then <title>.
func ParsePageTitle(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse html")
	}

	meta := map[string]string{}
	var docTitle string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var key, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "property", "name":
						key = strings.ToLower(a.Val)
					case "content":
						content = a.Val
					}
				}
				if key != "" && content != "" {
					if _, ok := meta[key]; !ok {
						meta[key] = content
					}
				}
			case "title":
				if docTitle == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					docTitle = n.FirstChild.Data
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	for _, key := range []string{"og:title", "twitter:title"} {
		if v := strings.TrimSpace(meta[key]); v != "" {
			return v, nil
		}
	}
	if t := strings.TrimSpace(docTitle); t != "" {
		return t, nil
	}
	return "", errors.New("page has no title")
}
