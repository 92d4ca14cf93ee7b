package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestFetchSendsAgeGateCookies(t *testing.T) {
	var gotCookies []*http.Cookie
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookies = r.Cookies()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer srv.Close()

	s := New(0)
	out, err := s.Fetch(context.Background(), srv.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("unexpected body: %q", out)
	}

	names := make(map[string]string)
	for _, c := range gotCookies {
		names[c.Name] = c.Value
	}
	if names["ageVerified"] != "true" {
		t.Fatal("expected ageVerified cookie")
	}
}

func TestFetchRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not": "html"}`))
	}))
	defer srv.Close()

	s := New(0)
	if _, err := s.Fetch(context.Background(), srv.URL, FetchOptions{}); err == nil {
		t.Fatal("expected content-type error")
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(0)
	if _, err := s.Fetch(context.Background(), srv.URL, FetchOptions{}); err == nil {
		t.Fatal("expected status error")
	}
}

func TestCleanStripsChrome(t *testing.T) {
	html := `<html><body>
		<nav>menu</nav>
		<main>
			<h1 onclick="track()" style="color:red" data-id="7" aria-label="title" role="heading">Aria</h1>
			<p>The story begins.</p>
			<script>evil()</script>
			<form><input></form>
		</main>
		<footer>copyright</footer>
	</body></html>`

	out, err := Clean(html)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	for _, gone := range []string{"menu", "copyright", "evil", "<form", "onclick", "style=", "data-id", "aria-label", "role="} {
		if strings.Contains(out, gone) {
			t.Fatalf("expected %q to be stripped, got:\n%s", gone, out)
		}
	}
	if !strings.Contains(out, "Aria") || !strings.Contains(out, "The story begins.") {
		t.Fatalf("content lost:\n%s", out)
	}
}

func TestCleanPrefersMainContentRoot(t *testing.T) {
	html := `<html><body>
		<div class="sidebar">related posts</div>
		<article><p>actual content</p></article>
	</body></html>`

	out, err := Clean(html)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if strings.Contains(out, "related posts") {
		t.Fatal("expected sidebar outside the content root to be dropped")
	}
	if !strings.Contains(out, "actual content") {
		t.Fatal("content root lost")
	}
}

func TestFetchMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><main><h1>Title</h1><p>Body text.</p></main></body></html>"))
	}))
	defer srv.Close()

	s := New(0)
	out, err := s.Fetch(context.Background(), srv.URL, FetchOptions{Clean: true, Markdown: true})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(out, "# Title") {
		t.Fatalf("expected markdown heading, got: %q", out)
	}
	if !strings.Contains(out, "Body text.") {
		t.Fatalf("expected body text, got: %q", out)
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestExtractLinks(t *testing.T) {
	html := `<html><body>
		<div class="list">
			<a class="story" href="/stories/1">One</a>
			<a class="story" href="/stories/2">Two</a>
			<a class="story" href="/stories/1">One again</a>
			<a class="story" href="#top">Anchor</a>
			<a class="story" href="javascript:void(0)">JS</a>
		</div>
		<a class="other" href="https://elsewhere.example/page">Other</a>
	</body></html>`
	base := mustURL(t, "https://site.example/index")

	links, err := ExtractLinks(html, base, []string{"a.story", "a.other"})
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	want := []string{
		"https://site.example/stories/1",
		"https://site.example/stories/2",
		"https://elsewhere.example/page",
	}
	if len(links) != len(want) {
		t.Fatalf("got %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Fatalf("link %d: got %q want %q", i, links[i], want[i])
		}
	}
}

func TestFirstLinkPagination(t *testing.T) {
	html := `<html><body>
		<a class="next" href="/list?page=2">Next</a>
		<a class="next" href="/list?page=3">Later</a>
	</body></html>`
	base := mustURL(t, "https://site.example/list")

	next, ok := FirstLink(html, base, "a.next")
	if !ok {
		t.Fatal("expected pagination link")
	}
	if next != "https://site.example/list?page=2" {
		t.Fatalf("unexpected next link: %q", next)
	}

	if _, ok := FirstLink(html, base, ""); ok {
		t.Fatal("empty selector must not match")
	}
	if _, ok := FirstLink(html, base, "a.missing"); ok {
		t.Fatal("missing selector must not match")
	}
}
