// Package musicbrainz resolves ISRCs to scored MusicBrainz identifiers.
// The public API enforces one request per 1.1 seconds as required for
// anonymous use.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gyarbij/plexist/internal/constants"
	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
)

type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
	log        *logger.Logger
}

func NewClient(baseURL, userAgent string, log *logger.Logger) *Client {
	if userAgent == "" {
		userAgent = constants.DefaultUserAgent
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: constants.MusicBrainzTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(constants.MusicBrainzMinInterval), 1),
		log:     log.WithComponent("musicbrainz"),
	}
}

type isrcResponse struct {
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Releases []release `json:"releases"`
}

type release struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Media []medium `json:"media"`
}

type medium struct {
	Tracks []mediumTrack `json:"tracks"`
}

type mediumTrack struct {
	ID string `json:"id"`
}

// LookupISRC queries the ISRC endpoint and scores every identifier found.
// The second return value reports whether the outcome is definitive and may
// be cached: a clean response or a 404 is, a timeout or server error is not.
func (c *Client) LookupISRC(ctx context.Context, isrc string) ([]domain.ScoredMBID, bool, error) {
	u := fmt.Sprintf("%s/isrc/%s?fmt=json&inc=releases+media", c.baseURL, url.PathEscape(isrc))

	resp, err := c.get(ctx, u)
	if err != nil {
		// Network and timeout failures are transient. The caller retries
		// on a later pass instead of caching an empty answer.
		c.log.Warn("isrc lookup failed", "isrc", isrc, "error", err)
		return nil, false, nil
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		_ = resp.Body.Close()
		c.log.Warn("musicbrainz unavailable, retrying once", "isrc", isrc)
		select {
		case <-time.After(constants.MusicBrainzRetryPause):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		resp, err = c.get(ctx, u)
		if err != nil {
			c.log.Warn("isrc lookup retry failed", "isrc", isrc, "error", err)
			return nil, false, nil
		}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, true, nil
	case resp.StatusCode != http.StatusOK:
		c.log.Warn("unexpected musicbrainz status", "isrc", isrc, "status", resp.StatusCode)
		return nil, false, nil
	}

	var result isrcResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("failed to decode isrc response: %w", err)
	}
	return scoreResponse(result), true, nil
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

func scoreResponse(result isrcResponse) []domain.ScoredMBID {
	set := domain.MBIDSet{}
	for _, rec := range result.Recordings {
		if m := domain.NormalizeMBID(rec.ID); m != "" {
			set.Add(domain.NewScoredMBID(m, domain.MBIDTypeRecording))
		}
		for _, rel := range rec.Releases {
			if m := domain.NormalizeMBID(rel.ID); m != "" {
				set.Add(domain.NewScoredMBID(m, domain.MBIDTypeRelease))
			}
			for _, med := range rel.Media {
				for _, tr := range med.Tracks {
					if m := domain.NormalizeMBID(tr.ID); m != "" {
						set.Add(domain.NewScoredMBID(m, domain.MBIDTypeReleaseTrack))
					}
				}
			}
		}
	}
	return set.Sorted()
}
