package retailers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// BroshuraBaseURL is the aggregator the broshura resolver reads from.
const BroshuraBaseURL = "https://www.broshura.bg"

var (
	broshuraIDPattern    = regexp.MustCompile(`/b/(\d+)`)
	broshuraImagePattern = regexp.MustCompile(`/(\d+)_[^/]*$`)
	broshuraFromPattern  = regexp.MustCompile(`(?i)от\s+(\d{1,2})\.(\d{1,2})`)
)

// BroshuraConfig parameterizes one store on broshura.bg.
type BroshuraConfig struct {
	// Slug is the store path under /h/, e.g. "fantastico".
	Slug string
	// ImageSuffix follows the page id in image names, e.g. "_824x1186.jpg".
	ImageSuffix string
	// BaseURL overrides BroshuraBaseURL.
	BaseURL string
}

// Broshura resolves the newest brochure listed for a store on broshura.bg.
// The listing gives the end date and the brochure page; the brochure page's
// og:image is the first page image, whose numeric id seeds the sequence.
type Broshura struct {
	client *Client
	cfg    BroshuraConfig
}

// NewBroshura builds the resolver.
func NewBroshura(client *Client, cfg BroshuraConfig) *Broshura {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BroshuraBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Broshura{client: client, cfg: cfg}
}

// Resolve implements crawler.Resolver. The scope is ignored.
func (b *Broshura) Resolve(ctx context.Context, scope string) ([]crawler.BrochureReference, error) {
	listing := b.cfg.BaseURL + "/h/" + url.PathEscape(b.cfg.Slug)
	doc, base, err := b.client.document(ctx, listing)
	if err != nil {
		return nil, fmt.Errorf("broshura listing %s: %w", b.cfg.Slug, err)
	}

	datetime, ok := doc.Find("ul.list-offer li time[datetime]").First().Attr("datetime")
	if !ok || strings.TrimSpace(datetime) == "" {
		return nil, fmt.Errorf("%w: broshura %s: no offer end date", crawler.ErrResolution, b.cfg.Slug)
	}
	validTo, err := parseListingDate(datetime)
	if err != nil {
		return nil, fmt.Errorf("%w: broshura %s: %v", crawler.ErrResolution, b.cfg.Slug, err)
	}

	href, ok := doc.Find("ul.list-offer > li > a").First().Attr("href")
	if !ok || href == "" {
		return nil, fmt.Errorf("%w: broshura %s: no brochure link", crawler.ErrResolution, b.cfg.Slug)
	}
	pageURL, err := absolute(base, href)
	if err != nil {
		return nil, fmt.Errorf("%w: broshura %s: %v", crawler.ErrResolution, b.cfg.Slug, err)
	}
	m := broshuraIDPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return nil, fmt.Errorf("%w: broshura %s: no brochure id in %s", crawler.ErrResolution, b.cfg.Slug, pageURL)
	}
	brochureID := m[1]

	page, pageBase, err := b.client.document(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("broshura brochure page %s: %w", pageURL, err)
	}
	image, _ := page.Find(`meta[property="og:image"]`).Attr("content")
	im := broshuraImagePattern.FindStringSubmatch(image)
	if im == nil {
		return nil, fmt.Errorf("%w: broshura %s: no page image id in og:image %q", crawler.ErrResolution, b.cfg.Slug, image)
	}
	startID, err := strconv.Atoi(im[1])
	if err != nil {
		return nil, fmt.Errorf("%w: broshura %s: image id %q: %v", crawler.ErrResolution, b.cfg.Slug, im[1], err)
	}
	if image, err = absolute(pageBase, image); err != nil {
		return nil, fmt.Errorf("%w: broshura %s: %v", crawler.ErrResolution, b.cfg.Slug, err)
	}
	title, _ := page.Find(`meta[property="og:title"]`).Attr("content")

	return []crawler.BrochureReference{{
		BrochureID: "broshura-" + brochureID,
		ValidFrom:  broshuraValidFrom(title, validTo),
		ValidTo:    validTo,
		Scope:      scope,
		Locator: crawler.AssetLocator{
			Kind:    crawler.LocatorImageSequence,
			BaseURL: image[:strings.LastIndex(image, "/")+1],
			StartID: startID,
			Suffix:  b.cfg.ImageSuffix,
			Referer: BroshuraBaseURL + "/",
			Accept:  imageAccept,
		},
	}}, nil
}

// parseListingDate reads a <time datetime> value as an inclusive end date.
func parseListingDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			y, m, d := t.Date()
			return crawler.EndOfDay(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", raw)
}

// broshuraValidFrom reads "от DD.MM" from the page title, in the year of
// validTo. Without it the brochure is assumed to run for a week.
func broshuraValidFrom(title string, validTo time.Time) time.Time {
	fallback := crawler.StartOfDay(validTo.AddDate(0, 0, -6))
	m := broshuraFromPattern.FindStringSubmatch(title)
	if m == nil {
		return fallback
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := validTo.Year()
	if time.Month(month) > validTo.Month() {
		year--
	}
	from := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if from.Day() != day || from.After(validTo) {
		return fallback
	}
	return from
}
