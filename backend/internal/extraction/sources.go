package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "silent-partners/backend/pkg/errors"
	"silent-partners/backend/pkg/logger"
)

const (
	// maxPageBytes bounds how much of a page is read
	maxPageBytes = 2 << 20
	// MaxSourceURLs bounds the URLs accepted in one request
	MaxSourceURLs = 10
)

// Document is the readable text of a fetched page
type Document struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"-"`
}

// errBlockedAddress marks a connection refused because the peer is not a
// public address.
var errBlockedAddress = errors.New("address is not publicly routable")

// Fetcher downloads source pages and reduces them to plain text
type Fetcher struct {
	httpClient   *http.Client
	concurrency  int
	allowPrivate bool
	logger       *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithPrivateNetworks lets the fetcher reach loopback, private and
// link-local addresses. Servers should leave this off.
func WithPrivateNetworks() FetcherOption {
	return func(f *Fetcher) { f.allowPrivate = true }
}

// NewFetcher creates a fetcher with a per-request timeout and a bound on
// concurrent downloads. Unless WithPrivateNetworks is given, connections to
// non-public addresses are refused when dialing, which also covers redirects
// and hostnames that resolve to internal hosts.
func NewFetcher(timeout time.Duration, concurrency int, opts ...FetcherOption) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	f := &Fetcher{
		concurrency: concurrency,
		logger:      logger.Named("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if !f.allowPrivate {
		dialer.Control = guardDial
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// A proxy would dial on our behalf and bypass the address check
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	f.httpClient = &http.Client{Timeout: timeout, Transport: transport}
	return f
}

// guardDial runs after name resolution with the literal peer address.
func guardDial(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", errBlockedAddress, host)
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified())
}

// FetchAll downloads every URL concurrently. Results keep the input order.
// The first failure cancels the remaining downloads.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]Document, error) {
	if len(urls) > MaxSourceURLs {
		return nil, apperrors.NewValidation("urls", fmt.Sprintf("at most %d urls are allowed", MaxSourceURLs))
	}
	for _, u := range urls {
		if err := f.validateURL(u); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	docs := make([]Document, len(urls))
	for i, u := range urls {
		idx := i
		target := u
		g.Go(func() error {
			doc, err := f.fetch(gctx, target)
			if err != nil {
				return err
			}
			docs[idx] = *doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (f *Fetcher) validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return apperrors.NewValidation("urls", fmt.Sprintf("invalid url: %q", raw))
	}
	// IP literals can be refused before any request is made
	if ip := net.ParseIP(u.Hostname()); ip != nil && !f.allowPrivate && !isPublicIP(ip) {
		return blockedURL(raw)
	}
	return nil
}

func blockedURL(raw string) error {
	return apperrors.NewValidation("urls", fmt.Sprintf("url does not point to a public address: %q", raw))
}

func (f *Fetcher) fetch(ctx context.Context, target string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperrors.NewSourceFetchFailed(target, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SilentPartners/1.0)")
	req.Header.Set("Accept", "text/html,text/plain")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedAddress) {
			return nil, blockedURL(target)
		}
		if ctx.Err() != nil {
			return nil, apperrors.NewContextCancelled("fetch "+target, err)
		}
		return nil, apperrors.NewSourceFetchFailed(target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apperrors.NewSourceFetchFailed(target, fmt.Errorf("status %d", resp.StatusCode))
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, apperrors.NewSourceFetchFailed(target, err)
		}
		return &Document{URL: target, Text: collapseWhitespace(string(raw))}, nil
	}

	doc, err := htmlToDocument(body)
	if err != nil {
		return nil, apperrors.NewSourceFetchFailed(target, err)
	}
	doc.URL = target

	f.logger.Debug("Fetched source",
		zap.String("url", target),
		zap.String("title", doc.Title),
		zap.Int("text_length", len(doc.Text)),
	)
	return doc, nil
}

// htmlToDocument keeps the readable part of a page: boilerplate elements are
// dropped and <article> or <main> is preferred over the whole body.
func htmlToDocument(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, nav, footer, header, aside, form, iframe").Remove()
	// Block elements would otherwise run together once flattened to text
	doc.Find("p, div, li, td, br, h1, h2, h3, h4, h5, h6").AppendHtml(" ")

	content := doc.Find("article")
	if content.Length() == 0 {
		content = doc.Find("main")
	}
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	var parts []string
	content.Each(func(_ int, s *goquery.Selection) {
		if text := collapseWhitespace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	return &Document{Title: title, Text: strings.Join(parts, "\n\n")}, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
