package fetch

import (
	"context"
	"fmt"
	"time"
)

// Page is a rendered web page as seen by the browser after its scripts ran.
type Page struct {
	// URL is the address that was requested.
	URL string
	// FinalURL is where the browser ended up after redirects.
	FinalURL string
	Title    string
	// StatusCode is the HTTP status of the main document, 0 when unknown.
	StatusCode int
	// Content is the page markup, cleaned when the fetcher is configured to.
	Content   string
	FetchedAt time.Time
}

// Fetcher retrieves the rendered content of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Page, error)

// Fetch calls f(ctx, url).
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Page, error) {
	return f(ctx, url)
}

// Cleaning wraps a Fetcher and passes page content through CleanHTML,
// truncating at maxLength bytes when maxLength is positive.
func Cleaning(next Fetcher, maxLength int) Fetcher {
	return FetcherFunc(func(ctx context.Context, url string) (*Page, error) {
		page, err := next.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}

		cleaned, err := CleanHTML(page.Content, maxLength)
		if err != nil {
			return nil, fmt.Errorf("failed to clean page content: %w", err)
		}

		out := *page
		out.Content = cleaned.HTML
		if out.Title == "" {
			out.Title = cleaned.Title
		}
		return &out, nil
	})
}
