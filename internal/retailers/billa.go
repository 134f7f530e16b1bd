package retailers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// BillaWeeklyURL is the page that embeds the current weekly leaflet.
const BillaWeeklyURL = "https://www.billa.bg/promocii/sedmichna-broshura"

const publitasPrefix = "view.publitas.com/billa-bulgaria/"

var (
	publitasDataPattern = regexp.MustCompile(`(?s)var data\s*=\s*(\{.*?\});`)
	filenameStarPattern = regexp.MustCompile(`filename\*=[^']*''([^&]+)`)
)

type publitasData struct {
	Slug   string `json:"slug"`
	Config struct {
		DownloadPdfURL string `json:"downloadPdfUrl"`
	} `json:"config"`
}

// Billa resolves the weekly leaflet embedded from Publitas. The viewer page
// carries a JSON blob with the leaflet slug (which encodes the dates) and a
// direct PDF download link.
type Billa struct {
	client  *Client
	storeID string
	pageURL string
}

// NewBilla builds the resolver. pageURL defaults to BillaWeeklyURL.
func NewBilla(client *Client, storeID, pageURL string) *Billa {
	if pageURL == "" {
		pageURL = BillaWeeklyURL
	}
	return &Billa{client: client, storeID: storeID, pageURL: pageURL}
}

// Resolve implements crawler.Resolver. The scope is ignored.
func (b *Billa) Resolve(ctx context.Context, scope string) ([]crawler.BrochureReference, error) {
	doc, base, err := b.client.document(ctx, b.pageURL)
	if err != nil {
		return nil, fmt.Errorf("billa weekly page: %w", err)
	}
	var viewer string
	doc.Find("iframe[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if strings.Contains(src, publitasPrefix) {
			viewer = src
			return false
		}
		return true
	})
	if viewer == "" {
		return nil, fmt.Errorf("%w: billa: no publitas viewer iframe", crawler.ErrResolution)
	}
	if viewer, err = absolute(base, viewer); err != nil {
		return nil, fmt.Errorf("%w: billa: %v", crawler.ErrResolution, err)
	}

	resp, err := b.client.get(ctx, viewer, nil)
	if err != nil {
		return nil, fmt.Errorf("billa viewer: %w", err)
	}
	data, err := parsePublitasData(resp.Body)
	if err != nil {
		return nil, err
	}

	from, to, ok := crawler.ParseValidity(data.Slug)
	if !ok {
		from, to, ok = crawler.ParseValidity(downloadFilename(data.Config.DownloadPdfURL))
	}
	if !ok {
		return nil, fmt.Errorf("%w: billa: no validity dates in slug %q", crawler.ErrResolution, data.Slug)
	}

	return []crawler.BrochureReference{{
		BrochureID: composedID(b.storeID, from),
		ValidFrom:  from,
		ValidTo:    to,
		Scope:      scope,
		Locator: crawler.AssetLocator{
			Kind: crawler.LocatorDirectDocument,
			URL:  data.Config.DownloadPdfURL,
		},
	}}, nil
}

func parsePublitasData(body []byte) (publitasData, error) {
	var data publitasData
	m := publitasDataPattern.FindSubmatch(body)
	if m == nil {
		return data, fmt.Errorf("%w: billa: viewer has no data blob", crawler.ErrResolution)
	}
	if err := json.Unmarshal(m[1], &data); err != nil {
		return data, fmt.Errorf("%w: billa: decode data blob: %v", crawler.ErrResolution, err)
	}
	if data.Config.DownloadPdfURL == "" {
		return data, fmt.Errorf("%w: billa: data blob has no downloadPdfUrl", crawler.ErrResolution)
	}
	return data, nil
}

// downloadFilename extracts the RFC 5987 filename* parameter embedded in a
// download link. It is escaped twice.
func downloadFilename(link string) string {
	m := filenameStarPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	name := m[1]
	for range 2 {
		if unescaped, err := url.QueryUnescape(name); err == nil {
			name = unescaped
		}
	}
	return name
}

// composedID namespaces a date-keyed brochure id with the store id.
func composedID(storeID string, from time.Time) string {
	return storeID + "-" + from.UTC().Format("2006-01-02")
}
