package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

func TestDiscoverer_TwoLevelIndex_DedupesAndKeepsOrder(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns=%q>
  <sitemap><loc>%s/sub1.xml</loc></sitemap>
  <sitemap><loc>%s/sub2.xml</loc></sitemap>
</sitemapindex>`, sitemapNS, srv.URL, srv.URL)
		case "/sub1.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns=%q>
  <url><loc>https://shop.example/products/1001</loc></url>
  <url><loc>https://shop.example/products/1002</loc></url>
  <url><loc>https://shop.example/categories/snacks</loc></url>
</urlset>`, sitemapNS)
		case "/sub2.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns=%q>
  <url><loc>https://shop.example/products/1002</loc></url>
  <url><loc>https://shop.example/products/1003</loc></url>
</urlset>`, sitemapNS)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := Discoverer{IndexURL: srv.URL + "/sitemap.xml"}

	ids, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []string{"1001", "1002", "1003"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d (%v)", len(want), len(ids), ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected ids[%d]=%q, got %q", i, want[i], ids[i])
		}
	}
}

func TestDiscoverer_FailedSubIndexContributesNothing(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<sitemapindex xmlns=%q>
  <sitemap><loc>%s/broken.xml</loc></sitemap>
  <sitemap><loc>%s/ok.xml</loc></sitemap>
</sitemapindex>`, sitemapNS, srv.URL, srv.URL)
		case "/broken.xml":
			w.WriteHeader(http.StatusInternalServerError)
		case "/ok.xml":
			fmt.Fprintf(w, `<urlset xmlns=%q>
  <url><loc>https://shop.example/products/2001</loc></url>
</urlset>`, sitemapNS)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := Discoverer{IndexURL: srv.URL + "/sitemap.xml"}

	ids, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover should tolerate a failed sub-index, got: %v", err)
	}
	if len(ids) != 1 || ids[0] != "2001" {
		t.Fatalf("expected [2001], got %v", ids)
	}
}

func TestDiscoverer_IndexFetchFailureIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := Discoverer{IndexURL: srv.URL + "/sitemap.xml"}

	if _, err := d.Discover(context.Background()); err == nil {
		t.Fatalf("expected an error when the top-level index is unreachable")
	}
}
