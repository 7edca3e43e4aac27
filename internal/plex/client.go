// Package plex is a thin client for the Plex Media Server HTTP API. Every
// request passes through the shared rate governor so library scans, searches
// and rating writes stay inside the server budget together.
package plex

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gyarbij/plexist/internal/constants"
	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/ratelimit"
)

// ErrNotFound marks a 404 from the server, e.g. rating an item that was
// deleted from the library.
var ErrNotFound = errors.New("plex: not found")

type Client struct {
	baseURL    string
	token      string
	sectionID  int
	serverID   string
	httpClient *http.Client
	gov        *ratelimit.Governor
	log        *logger.Logger
}

func NewClient(baseURL, token string, sectionID int, gov *ratelimit.Governor, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		sectionID:  sectionID,
		httpClient: &http.Client{Timeout: constants.DefaultHTTPTimeout},
		gov:        gov,
		log:        log.WithComponent("plex"),
	}
}

type guidXML struct {
	ID string `xml:"id,attr"`
}

type tagXML struct {
	Tag string `xml:"tag,attr"`
}

type trackXML struct {
	RatingKey string    `xml:"ratingKey,attr"`
	ParentKey string    `xml:"parentRatingKey,attr"`
	ArtistKey string    `xml:"grandparentRatingKey,attr"`
	Title     string    `xml:"title,attr"`
	Artist    string    `xml:"grandparentTitle,attr"`
	Album     string    `xml:"parentTitle,attr"`
	Year      int       `xml:"parentYear,attr"`
	Duration  int64     `xml:"duration,attr"`
	Guids     []guidXML `xml:"Guid"`
	Genres    []tagXML  `xml:"Genre"`
}

type playlistXML struct {
	RatingKey string `xml:"ratingKey,attr"`
	Title     string `xml:"title,attr"`
	Summary   string `xml:"summary,attr"`
	LeafCount int    `xml:"leafCount,attr"`
}

type mediaContainer struct {
	XMLName           xml.Name      `xml:"MediaContainer"`
	Size              int           `xml:"size,attr"`
	TotalSize         int           `xml:"totalSize,attr"`
	MachineIdentifier string        `xml:"machineIdentifier,attr"`
	Tracks            []trackXML    `xml:"Track"`
	Playlists         []playlistXML `xml:"Playlist"`
}

// Playlist is a playlist on the Plex server.
type Playlist struct {
	ID         int64
	Name       string
	Summary    string
	TrackCount int
}

func (t trackXML) toDomain() *domain.PlexTrack {
	ratingKey, _ := strconv.ParseInt(t.RatingKey, 10, 64)
	albumKey, _ := strconv.ParseInt(t.ParentKey, 10, 64)
	artistKey, _ := strconv.ParseInt(t.ArtistKey, 10, 64)

	track := &domain.PlexTrack{
		RatingKey:  ratingKey,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		Year:       t.Year,
		DurationMS: t.Duration,
		ArtistKey:  artistKey,
		AlbumKey:   albumKey,
	}
	for _, g := range t.Guids {
		track.GUIDs = append(track.GUIDs, g.ID)
	}
	for _, g := range t.Genres {
		track.Genres = append(track.Genres, strings.ToLower(g.Tag))
	}
	return track
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, header http.Header) (*http.Response, error) {
	if err := c.gov.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate wait cancelled: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("X-Plex-Token", c.token)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("plex returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

func (c *Client) getContainer(ctx context.Context, path string, params url.Values, header http.Header) (*mediaContainer, error) {
	resp, err := c.do(ctx, http.MethodGet, path, params, header)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var container mediaContainer
	if err := xml.NewDecoder(resp.Body).Decode(&container); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &container, nil
}

// ServerID returns the machine identifier, fetching it on first use.
// Playlist item URIs embed it.
func (c *Client) ServerID(ctx context.Context) (string, error) {
	if c.serverID != "" {
		return c.serverID, nil
	}
	container, err := c.getContainer(ctx, "/", nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch server info: %w", err)
	}
	if container.MachineIdentifier == "" {
		return "", fmt.Errorf("server info has no machine identifier")
	}
	c.serverID = container.MachineIdentifier
	return c.serverID, nil
}

// LibraryTracks fetches one page of the music section. The second return
// value is the total item count reported by the server.
func (c *Client) LibraryTracks(ctx context.Context, offset, limit int) ([]*domain.PlexTrack, int, error) {
	params := url.Values{}
	params.Set("type", strconv.Itoa(constants.PlexTrackType))
	params.Set("includeGuids", "1")

	header := http.Header{}
	header.Set("X-Plex-Container-Start", strconv.Itoa(offset))
	header.Set("X-Plex-Container-Size", strconv.Itoa(limit))

	container, err := c.getContainer(ctx, fmt.Sprintf("/library/sections/%d/all", c.sectionID), params, header)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch library page at %d: %w", offset, err)
	}

	tracks := make([]*domain.PlexTrack, 0, len(container.Tracks))
	for _, t := range container.Tracks {
		tracks = append(tracks, t.toDomain())
	}
	total := container.TotalSize
	if total == 0 {
		total = container.Size
	}
	return tracks, total, nil
}

// SearchTracks runs a text search over the music section.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]*domain.PlexTrack, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("type", strconv.Itoa(constants.PlexTrackType))
	params.Set("includeGuids", "1")
	params.Set("limit", strconv.Itoa(limit))

	container, err := c.getContainer(ctx, fmt.Sprintf("/library/sections/%d/search", c.sectionID), params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}

	tracks := make([]*domain.PlexTrack, 0, len(container.Tracks))
	for _, t := range container.Tracks {
		tracks = append(tracks, t.toDomain())
	}
	return tracks, nil
}

// SearchByGUID looks up tracks carrying the given external GUID.
func (c *Client) SearchByGUID(ctx context.Context, guid string) ([]*domain.PlexTrack, error) {
	params := url.Values{}
	params.Set("guid", guid)
	params.Set("type", strconv.Itoa(constants.PlexTrackType))
	params.Set("includeGuids", "1")

	container, err := c.getContainer(ctx, fmt.Sprintf("/library/sections/%d/all", c.sectionID), params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search by guid: %w", err)
	}

	tracks := make([]*domain.PlexTrack, 0, len(container.Tracks))
	for _, t := range container.Tracks {
		tracks = append(tracks, t.toDomain())
	}
	return tracks, nil
}

// FetchTrack loads one item with its GUIDs by rating key.
func (c *Client) FetchTrack(ctx context.Context, ratingKey int64) (*domain.PlexTrack, error) {
	params := url.Values{}
	params.Set("includeGuids", "1")

	container, err := c.getContainer(ctx, fmt.Sprintf("/library/metadata/%d", ratingKey), params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch track %d: %w", ratingKey, err)
	}
	if len(container.Tracks) == 0 {
		return nil, ErrNotFound
	}
	return container.Tracks[0].toDomain(), nil
}

// RateTrack sets the user rating on an item. 10.0 is five stars, 0.0 clears.
func (c *Client) RateTrack(ctx context.Context, ratingKey int64, rating float64) error {
	params := url.Values{}
	params.Set("key", strconv.FormatInt(ratingKey, 10))
	params.Set("identifier", "com.plexapp.plugins.library")
	params.Set("rating", strconv.FormatFloat(rating, 'f', 1, 64))

	resp, err := c.do(ctx, http.MethodPut, "/:/rate", params, nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// Playlists lists every playlist on the server.
func (c *Client) Playlists(ctx context.Context) ([]Playlist, error) {
	container, err := c.getContainer(ctx, "/playlists", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}

	playlists := make([]Playlist, 0, len(container.Playlists))
	for _, p := range container.Playlists {
		id, _ := strconv.ParseInt(p.RatingKey, 10, 64)
		playlists = append(playlists, Playlist{
			ID:         id,
			Name:       p.Title,
			Summary:    p.Summary,
			TrackCount: p.LeafCount,
		})
	}
	return playlists, nil
}

// PlaylistByName returns the playlist with the given name, or nil.
func (c *Client) PlaylistByName(ctx context.Context, name string) (*Playlist, error) {
	playlists, err := c.Playlists(ctx)
	if err != nil {
		return nil, err
	}
	for i := range playlists {
		if playlists[i].Name == name {
			return &playlists[i], nil
		}
	}
	return nil, nil
}

func (c *Client) itemURI(serverID string, ratingKeys []int64) string {
	ids := make([]string, len(ratingKeys))
	for i, k := range ratingKeys {
		ids[i] = strconv.FormatInt(k, 10)
	}
	return fmt.Sprintf("server://%s/com.plexapp.plugins.library/library/metadata/%s",
		serverID, strings.Join(ids, ","))
}

// CreatePlaylist creates an audio playlist seeded with the given items.
func (c *Client) CreatePlaylist(ctx context.Context, name string, ratingKeys []int64) (*Playlist, error) {
	serverID, err := c.ServerID(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("type", "audio")
	params.Set("title", name)
	params.Set("smart", "0")
	params.Set("uri", c.itemURI(serverID, ratingKeys))

	resp, err := c.do(ctx, http.MethodPost, "/playlists", params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist %q: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var container mediaContainer
	if err := xml.NewDecoder(resp.Body).Decode(&container); err != nil {
		return nil, fmt.Errorf("failed to decode playlist creation response: %w", err)
	}
	if len(container.Playlists) == 0 {
		return nil, fmt.Errorf("no playlist returned for %q", name)
	}
	id, _ := strconv.ParseInt(container.Playlists[0].RatingKey, 10, 64)
	return &Playlist{ID: id, Name: container.Playlists[0].Title}, nil
}

// AddToPlaylist appends items to an existing playlist.
func (c *Client) AddToPlaylist(ctx context.Context, playlistID int64, ratingKeys []int64) error {
	if len(ratingKeys) == 0 {
		return nil
	}
	serverID, err := c.ServerID(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("uri", c.itemURI(serverID, ratingKeys))

	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/playlists/%d/items", playlistID), params, nil)
	if err != nil {
		return fmt.Errorf("failed to add items to playlist %d: %w", playlistID, err)
	}
	_ = resp.Body.Close()
	return nil
}

// ClearPlaylist removes every item from a playlist.
func (c *Client) ClearPlaylist(ctx context.Context, playlistID int64) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/playlists/%d/items", playlistID), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to clear playlist %d: %w", playlistID, err)
	}
	_ = resp.Body.Close()
	return nil
}

// EditPlaylist updates the playlist summary.
func (c *Client) EditPlaylist(ctx context.Context, playlistID int64, summary string) error {
	params := url.Values{}
	params.Set("type", "audio")
	params.Set("summary", summary)

	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/playlists/%d", playlistID), params, nil)
	if err != nil {
		return fmt.Errorf("failed to edit playlist %d: %w", playlistID, err)
	}
	_ = resp.Body.Close()
	return nil
}

// UploadPoster points the playlist poster at an external image URL.
func (c *Client) UploadPoster(ctx context.Context, playlistID int64, posterURL string) error {
	if posterURL == "" {
		return nil
	}
	params := url.Values{}
	params.Set("url", posterURL)

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/library/metadata/%d/posters", playlistID), params, nil)
	if err != nil {
		return fmt.Errorf("failed to upload poster for playlist %d: %w", playlistID, err)
	}
	_ = resp.Body.Close()
	return nil
}
