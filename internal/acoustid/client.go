package acoustid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"tonearm/internal/services"
)

const (
	// DefaultBaseURL is the public AcoustID web service.
	DefaultBaseURL = "https://api.acoustid.org/v2"

	lookupMeta = "recordings releases releasegroups"

	// AcoustID error code returned for an unknown client key.
	errorCodeInvalidKey = 4
	// AcoustID error code returned when the request rate is exceeded.
	errorCodeRateLimit = 14
)

// Response models the AcoustID lookup payload.
type Response struct {
	Status  string     `json:"status"`
	Results []Result   `json:"results"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the error object AcoustID returns with status "error".
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Result is one AcoustID track cluster.
type Result struct {
	ID         string      `json:"id"`
	Score      float64     `json:"score"`
	Recordings []Recording `json:"recordings"`
}

// Recording is a MusicBrainz recording linked to an AcoustID track.
type Recording struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Duration      float64        `json:"duration"`
	Artists       []Artist       `json:"artists"`
	Releases      []Release      `json:"releases"`
	ReleaseGroups []ReleaseGroup `json:"releasegroups"`
}

// Artist is a credited MusicBrainz artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Release is a MusicBrainz release containing the recording.
type Release struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ReleaseGroup is a MusicBrainz release group containing the recording.
type ReleaseGroup struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Type     string    `json:"type"`
	Releases []Release `json:"releases"`
}

// Match is a flattened recording candidate.
type Match struct {
	RecordingID     string   `json:"recording_id"`
	Score           float64  `json:"score"`
	Title           string   `json:"title,omitempty"`
	Artists         []string `json:"artists,omitempty"`
	ArtistID        string   `json:"artist_id,omitempty"`
	ReleaseID       string   `json:"release_id,omitempty"`
	ReleaseTitle    string   `json:"release_title,omitempty"`
	ReleaseGroupID  string   `json:"release_group_id,omitempty"`
	DurationSeconds float64  `json:"duration_seconds,omitempty"`
	Source          string   `json:"source,omitempty"`
}

// Artist returns the joined credit line.
func (m Match) Artist() string {
	return strings.Join(m.Artists, ", ")
}

// Looker performs raw lookups.
type Looker interface {
	Lookup(ctx context.Context, signature string, durationSeconds int) (*Response, error)
}

// Client provides access to the AcoustID lookup API.
type Client struct {
	apiKey     string
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

var _ Looker = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		if agent = strings.TrimSpace(agent); agent != "" {
			c.userAgent = agent
		}
	}
}

// New creates an AcoustID client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "acoustid", "init", "api key required", nil)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "tonearm/dev",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Lookup queries AcoustID for a compressed chromaprint signature. Empty result
// sets are returned as a response with no results, not as an error.
func (c *Client) Lookup(ctx context.Context, signature string, durationSeconds int) (*Response, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, services.Wrap(services.ErrValidation, "acoustid", "lookup", "fingerprint must not be empty", nil)
	}
	if durationSeconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "acoustid", "lookup", "duration must be positive", nil)
	}
	endpoint, err := url.Parse(c.baseURL + "/lookup")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "acoustid", "lookup", "parse base url", err)
	}
	params := url.Values{}
	params.Set("client", c.apiKey)
	params.Set("meta", lookupMeta)
	params.Set("duration", strconv.Itoa(durationSeconds))
	params.Set("fingerprint", signature)
	params.Set("format", "json")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, classifyTransportError(ctx, err, latency)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrUnreachable, "acoustid", "lookup", "read response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &services.RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Detail:     fmt.Sprintf("acoustid returned %d (latency=%v)", resp.StatusCode, latency),
		}
	case resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrUnreachable, "acoustid", "lookup", fmt.Sprintf("acoustid returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	var payload Response
	if err := json.Unmarshal(body, &payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, services.Wrap(services.ErrPermanent, "acoustid", "lookup", fmt.Sprintf("acoustid returned %d", resp.StatusCode), nil)
		}
		return nil, services.Wrap(services.ErrTransient, "acoustid", "lookup", "decode response", err)
	}
	if !strings.EqualFold(payload.Status, "ok") {
		return nil, apiError(payload.Error, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrPermanent, "acoustid", "lookup", fmt.Sprintf("acoustid returned %d", resp.StatusCode), nil)
	}
	return &payload, nil
}

func apiError(info *ErrorInfo, status int) error {
	if info == nil {
		return services.Wrap(services.ErrPermanent, "acoustid", "lookup", fmt.Sprintf("acoustid error status (http %d)", status), nil)
	}
	msg := fmt.Sprintf("acoustid error %d: %s", info.Code, strings.TrimSpace(info.Message))
	switch {
	case info.Code == errorCodeInvalidKey || strings.Contains(strings.ToLower(info.Message), "invalid api key"):
		return services.Wrap(services.ErrConfiguration, "acoustid", "lookup", msg, nil)
	case info.Code == errorCodeRateLimit:
		return &services.RateLimitError{Detail: msg}
	default:
		return services.Wrap(services.ErrPermanent, "acoustid", "lookup", msg, nil)
	}
}

func classifyTransportError(ctx context.Context, err error, latency time.Duration) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return services.Wrap(services.ErrTimeout, "acoustid", "lookup", fmt.Sprintf("request timed out after %v", latency), err)
	}
	return services.Wrap(services.ErrUnreachable, "acoustid", "lookup", fmt.Sprintf("execute request (latency=%v)", latency), err)
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// Matches flattens a response into recording candidates ordered by score
// descending, then recording id. A recording listed under several results
// keeps its best score.
func Matches(resp *Response) []Match {
	if resp == nil {
		return nil
	}
	byID := make(map[string]Match)
	for _, result := range resp.Results {
		score := clamp01(result.Score)
		for _, rec := range result.Recordings {
			id := strings.ToLower(strings.TrimSpace(rec.ID))
			if id == "" {
				continue
			}
			if existing, ok := byID[id]; ok && existing.Score >= score {
				continue
			}
			m := Match{
				RecordingID:     id,
				Score:           score,
				Title:           strings.TrimSpace(rec.Title),
				DurationSeconds: rec.Duration,
				Source:          "acoustid",
			}
			for _, artist := range rec.Artists {
				if name := strings.TrimSpace(artist.Name); name != "" {
					m.Artists = append(m.Artists, name)
				}
				if m.ArtistID == "" {
					m.ArtistID = strings.ToLower(strings.TrimSpace(artist.ID))
				}
			}
			if len(rec.Releases) > 0 {
				m.ReleaseID = strings.ToLower(rec.Releases[0].ID)
				m.ReleaseTitle = rec.Releases[0].Title
			}
			if len(rec.ReleaseGroups) > 0 {
				group := rec.ReleaseGroups[0]
				m.ReleaseGroupID = strings.ToLower(group.ID)
				if m.ReleaseTitle == "" {
					m.ReleaseTitle = group.Title
				}
				if m.ReleaseID == "" && len(group.Releases) > 0 {
					m.ReleaseID = strings.ToLower(group.Releases[0].ID)
				}
			}
			byID[id] = m
		}
	}
	out := make([]Match, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	SortMatches(out)
	return out
}

// SortMatches orders matches by score descending, then recording id.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].RecordingID < matches[j].RecordingID
	})
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
