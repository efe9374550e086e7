package catalog

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
)

// Discoverer enumerates the catalog's item identifiers from a two-level
// site index: a top-level index listing sub-index URLs, each sub-index
// listing product page URLs.
type Discoverer struct {
	HTTP      *http.Client
	IndexURL  string
	UserAgent string
	Log       *log.Logger
}

type sitemapIndex struct {
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	URLs []urlRef `xml:"url"`
}

type urlRef struct {
	Loc string `xml:"loc"`
}

var productLoc = regexp.MustCompile(`/products/(\d+)`)

// Discover returns every product identifier reachable from the index,
// deduplicated with the first occurrence kept. A sub-index that cannot be
// fetched or parsed contributes zero identifiers; only an unreachable or
// unparseable top-level index fails the call. No retries happen here.
func (d Discoverer) Discover(ctx context.Context) ([]string, error) {
	if d.IndexURL == "" {
		return nil, errors.New("index URL is empty")
	}

	body, err := d.get(ctx, d.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap index: %w", err)
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("parse sitemap index: %w", err)
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0, 1024)

	for _, sm := range idx.Sitemaps {
		sub, err := d.get(ctx, sm.Loc)
		if err != nil {
			d.logf("sub-index skipped: %s: %v", sm.Loc, err)
			continue
		}

		var set urlSet
		if err := xml.Unmarshal(sub, &set); err != nil {
			d.logf("sub-index unparseable: %s: %v", sm.Loc, err)
			continue
		}

		for _, u := range set.URLs {
			m := productLoc.FindStringSubmatch(u.Loc)
			if m == nil {
				continue
			}
			id := m[1]
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (d Discoverer) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	client := d.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (d Discoverer) logf(format string, args ...any) {
	if d.Log != nil {
		d.Log.Printf(format, args...)
	}
}
