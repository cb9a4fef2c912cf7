package gsc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Credentials for the Search Console API. All four fields are required; a
// partially filled set means the integration is simply not configured.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	SiteURL      string
}

func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != "" && c.SiteURL != ""
}

type Summary struct {
	Clicks      int     `json:"clicks"`
	Impressions int     `json:"impressions"`
	CTR         float64 `json:"ctr"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
}

type QueryRow struct {
	Query       string  `json:"query"`
	Clicks      int     `json:"clicks"`
	Impressions int     `json:"impressions"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
}

type PageRow struct {
	Page        string  `json:"page"`
	Clicks      int     `json:"clicks"`
	Impressions int     `json:"impressions"`
	CTR         float64 `json:"ctr"`
}

type Report struct {
	Summary    Summary    `json:"summary"`
	TopQueries []QueryRow `json:"topQueries"`
	TopPages   []PageRow  `json:"topPages"`
}

const (
	defaultBaseURL = "https://www.googleapis.com/webmasters/v3"
	scopeReadonly  = "https://www.googleapis.com/auth/webmasters.readonly"
	rowLimit       = 25000
	topN           = 50

	primaryWindowDays  = 30
	fallbackWindowDays = 90
)

type Client struct {
	creds   Credentials
	timeout time.Duration

	// Overridable for tests.
	baseURL string
	httpc   *http.Client
}

func NewClient(creds Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{creds: creds, timeout: timeout, baseURL: defaultBaseURL}
}

func (c *Client) Configured() bool { return c.creds.Configured() }

// apiRow mirrors a searchAnalytics/query response row.
type apiRow struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

// Fetch pulls query- and page-dimensioned analytics over a 30-day window
// ending yesterday (UTC), falling back to 90 days when both come back empty,
// and derives the report. Any API failure is returned to the caller, which
// degrades to the unavailable placeholder.
func (c *Client) Fetch(ctx context.Context, brandTerms []string) (*Report, error) {
	if !c.Configured() {
		return nil, nil
	}

	end := time.Now().UTC().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -primaryWindowDays)

	queries, err := c.query(ctx, "query", start, end)
	if err != nil {
		return nil, err
	}
	pages, err := c.query(ctx, "page", start, end)
	if err != nil {
		return nil, err
	}

	// Young or low-traffic properties often have nothing in the last
	// month; widen the window once.
	if len(queries) == 0 && len(pages) == 0 {
		start = end.AddDate(0, 0, -fallbackWindowDays)
		queries, err = c.query(ctx, "query", start, end)
		if err != nil {
			return nil, err
		}
		pages, err = c.query(ctx, "page", start, end)
		if err != nil {
			return nil, err
		}
	}

	return buildReport(queries, pages, brandTerms, start, end), nil
}

func (c *Client) query(ctx context.Context, dimension string, start, end time.Time) ([]apiRow, error) {
	qCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := sonic.Marshal(map[string]any{
		"startDate":  start.Format("2006-01-02"),
		"endDate":    end.Format("2006-01-02"),
		"dimensions": []string{dimension},
		"rowLimit":   rowLimit,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/sites/%s/searchAnalytics/query",
		c.baseURL, url.PathEscape(c.creds.SiteURL))
	req, err := http.NewRequestWithContext(qCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dimension, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dimension, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: status %d: %s", dimension, resp.StatusCode, firstLine(raw))
	}

	var out struct {
		Rows []apiRow `json:"rows"`
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("query %s: decode: %w", dimension, err)
	}
	return out.Rows, nil
}

// client returns the OAuth2 token-refreshing HTTP client.
func (c *Client) client(ctx context.Context) *http.Client {
	if c.httpc != nil {
		return c.httpc
	}
	conf := &oauth2.Config{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		Scopes:       []string{scopeReadonly},
		Endpoint:     google.Endpoint,
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.creds.RefreshToken})
	c.httpc = oauth2.NewClient(ctx, ts)
	return c.httpc
}

// buildReport filters query rows by brand terms, sorts both dimensions and
// derives the summary. Overall CTR is total clicks over total impressions,
// not the mean of per-row CTRs; averaging would overweight low-traffic rows.
func buildReport(queries, pages []apiRow, brandTerms []string, start, end time.Time) *Report {
	terms := make([]string, 0, len(brandTerms))
	for _, t := range brandTerms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}

	qRows := make([]QueryRow, 0, len(queries))
	for _, r := range queries {
		if len(r.Keys) == 0 {
			continue
		}
		q := r.Keys[0]
		if len(terms) > 0 && !containsAny(strings.ToLower(q), terms) {
			continue
		}
		qRows = append(qRows, QueryRow{
			Query:       q,
			Clicks:      int(r.Clicks),
			Impressions: int(r.Impressions),
			CTR:         r.CTR,
			Position:    r.Position,
		})
	}
	sort.SliceStable(qRows, func(i, j int) bool { return qRows[i].Impressions > qRows[j].Impressions })

	pRows := make([]PageRow, 0, len(pages))
	totalClicks, totalImpressions := 0, 0
	for _, r := range pages {
		if len(r.Keys) == 0 {
			continue
		}
		row := PageRow{
			Page:        r.Keys[0],
			Clicks:      int(r.Clicks),
			Impressions: int(r.Impressions),
			CTR:         r.CTR,
		}
		totalClicks += row.Clicks
		totalImpressions += row.Impressions
		pRows = append(pRows, row)
	}
	sort.SliceStable(pRows, func(i, j int) bool { return pRows[i].Clicks > pRows[j].Clicks })

	ctr := 0.0
	if totalImpressions > 0 {
		ctr = float64(totalClicks) / float64(totalImpressions)
	}

	if len(qRows) > topN {
		qRows = qRows[:topN]
	}
	if len(pRows) > topN {
		pRows = pRows[:topN]
	}

	return &Report{
		Summary: Summary{
			Clicks:      totalClicks,
			Impressions: totalImpressions,
			CTR:         ctr,
			StartDate:   start.Format("2006-01-02"),
			EndDate:     end.Format("2006-01-02"),
		},
		TopQueries: qRows,
		TopPages:   pRows,
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
