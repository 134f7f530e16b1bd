package retailers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

const (
	// CBABrochureURL is the CBA brochure listing ("/брошура").
	CBABrochureURL = "https://cbabg.com/%D0%B1%D1%80%D0%BE%D1%88%D1%83%D1%80%D0%B0"
	// CBAImageBaseURL is where full-size page images live.
	CBAImageBaseURL = "https://cbabg.com/assets/brochures/large/"
)

var cbaImagePattern = regexp.MustCompile(`r_[a-f0-9_]+\.jpg`)

// CBA resolves the first brochure on the CBA listing into an explicit list
// of page images.
type CBA struct {
	client    *Client
	storeID   string
	listing   string
	imageBase string
}

// NewCBA builds the resolver. Empty URLs fall back to the production ones.
func NewCBA(client *Client, storeID, listing, imageBase string) *CBA {
	if listing == "" {
		listing = CBABrochureURL
	}
	if imageBase == "" {
		imageBase = CBAImageBaseURL
	}
	return &CBA{client: client, storeID: storeID, listing: listing, imageBase: strings.TrimRight(imageBase, "/") + "/"}
}

// Resolve implements crawler.Resolver. The scope is ignored.
func (c *CBA) Resolve(ctx context.Context, scope string) ([]crawler.BrochureReference, error) {
	doc, base, err := c.client.document(ctx, c.listing)
	if err != nil {
		return nil, fmt.Errorf("cba listing: %w", err)
	}
	title := doc.Find("h3.brochures_title").First()
	if title.Length() == 0 {
		return nil, fmt.Errorf("%w: cba: no brochure title", crawler.ErrResolution)
	}
	href, ok := title.Find("a[href]").First().Attr("href")
	if !ok || href == "" {
		return nil, fmt.Errorf("%w: cba: no brochure link", crawler.ErrResolution)
	}
	from, to, ok := crawler.ParseValidity(strings.TrimSpace(title.Text()))
	if !ok {
		return nil, fmt.Errorf("%w: cba: no validity dates in %q", crawler.ErrResolution, strings.TrimSpace(title.Text()))
	}
	link, err := absolute(base, href)
	if err != nil {
		return nil, fmt.Errorf("%w: cba: %v", crawler.ErrResolution, err)
	}

	resp, err := c.client.get(ctx, link, nil)
	if err != nil {
		return nil, fmt.Errorf("cba brochure page: %w", err)
	}
	var urls []string
	seen := make(map[string]bool)
	for _, name := range cbaImagePattern.FindAllString(string(resp.Body), -1) {
		if seen[name] {
			continue
		}
		seen[name] = true
		urls = append(urls, c.imageBase+name)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: cba: no page images on %s", crawler.ErrResolution, link)
	}

	return []crawler.BrochureReference{{
		BrochureID: composedID(c.storeID, from),
		ValidFrom:  from,
		ValidTo:    to,
		Scope:      scope,
		Locator: crawler.AssetLocator{
			Kind:    crawler.LocatorImageList,
			URLs:    urls,
			Referer: link,
			Accept:  imageAccept,
		},
	}}, nil
}
