package alerts

import (
	"context"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

// Item is one normalized alert-feed entry.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Source    string    `json:"source"`
	Published time.Time `json:"published"`
}

// Identity is the dedup key: the link when present, else the feed-supplied
// ID. Google Alerts repeats the same article under distinct GUIDs across
// feeds, so the link wins.
func (it Item) Identity() string {
	if it.Link != "" {
		return it.Link
	}
	return it.ID
}

// sourcePrefix is stripped from feed display titles.
const sourcePrefix = "Google Alerts - "

type Fetcher struct {
	parser  *gofeed.Parser
	timeout time.Duration
	sem     chan struct{}
}

// NewFetcher builds a Fetcher whose per-feed requests carry the given
// timeout. At most four feeds are fetched at once.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	p := gofeed.NewParser()
	p.UserAgent = "brandwatch/1.0"
	p.Client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
		},
	}
	return &Fetcher{parser: p, timeout: timeout, sem: make(chan struct{}, 4)}
}

// Fetch pulls every feed, normalizes the items and returns the merged list,
// newest first, one item per identity key. A failing feed is logged and
// skipped; it never aborts the rest.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) []Item {
	if len(urls) == 0 {
		return nil
	}

	results := make(chan []Item, len(urls))
	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		f.sem <- struct{}{}
		go func(u string) {
			defer wg.Done()
			defer func() { <-f.sem }()
			items, err := f.fetchOne(ctx, u)
			if err != nil {
				log.Printf("alerts: skip feed %s: %v", u, err)
				return
			}
			results <- items
		}(u)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var all []Item
	for items := range results {
		all = append(all, items...)
	}
	return Merge(all)
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) ([]Item, error) {
	fCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(url, fCtx)
	if err != nil {
		return nil, err
	}

	source := strings.TrimSpace(strings.TrimPrefix(feed.Title, sourcePrefix))
	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		pub := it.PublishedParsed
		if pub == nil {
			pub = it.UpdatedParsed
		}
		if pub == nil {
			now := time.Now()
			pub = &now
		}

		id := it.GUID
		if id == "" {
			id = it.Link
		}
		if id == "" {
			id = it.Title + "|" + pub.Format(time.RFC3339)
		}

		items = append(items, Item{
			ID:        id,
			Title:     it.Title,
			Link:      it.Link,
			Source:    source,
			Published: *pub,
		})
	}
	return items, nil
}

// Merge sorts by publish date descending and drops later occurrences of the
// same identity key, so the survivor is always the most recent one.
func Merge(items []Item) []Item {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		key := it.Identity()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}
