package bugshot

import (
	"net/http"
	"runtime/debug"

	"golang.org/x/oauth2"
)

const modulePath = "github.com/bugshot/bugshot-go"

// roundTripper authenticates requests to the ingestion service.
type roundTripper struct {
	apiKey    string
	userAgent string
	next      http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-Api-Key", rt.apiKey)
	req.Header.Set("User-Agent", rt.userAgent)
	return rt.next.RoundTrip(req)
}

// wrap returns a new http client that calls the original with the
// client's credentials attached.
func (c *Client) wrap(client *http.Client) *http.Client {
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	if c.options.TokenSource != nil {
		next = &oauth2.Transport{Source: c.options.TokenSource, Base: next}
	}
	return &http.Client{
		Transport: &roundTripper{
			apiKey:    c.options.APIKey,
			userAgent: getVersion().String(),
			next:      next,
		},
		CheckRedirect: client.CheckRedirect,
		Jar:           client.Jar,
		Timeout:       client.Timeout,
	}
}

func getVersion() packageVersion {
	info, ok := debug.ReadBuildInfo()
	if ok {
		if info.Main.Path == modulePath && info.Main.Version != "" {
			return packageVersion{Name: "bugshot-go", Version: info.Main.Version}
		}
		for _, dep := range info.Deps {
			if dep.Path == modulePath {
				return packageVersion{Name: "bugshot-go", Version: dep.Version}
			}
		}
	}
	return packageVersion{Name: "bugshot-go", Version: "unknown"}
}
