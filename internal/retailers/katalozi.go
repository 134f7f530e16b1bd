package retailers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// KataloziBaseURL is the katalozi-bg.info root. A page request redirected
// here means the page does not exist.
const KataloziBaseURL = "https://katalozi-bg.info/"

// KataloziCities are the city pages swept by default.
var KataloziCities = []string{"София", "Пловдив", "Варна", "Бургас", "Русе", "Стара Загора", "Разград"}

// KataloziConfig parameterizes one store on katalozi-bg.info.
type KataloziConfig struct {
	// CatalogPrefix is the href prefix of this store's catalogs, followed by the numeric id.
	CatalogPrefix string
	// BaseURL overrides KataloziBaseURL.
	BaseURL string
}

// Katalozi resolves every catalog of one store listed on a city page.
// The site gives no validity dates, so references cover the ISO week of the crawl.
type Katalozi struct {
	client  *Client
	clock   crawler.Clock
	base    string
	pattern *regexp.Regexp
}

// NewKatalozi builds the resolver.
func NewKatalozi(client *Client, clock crawler.Clock, cfg KataloziConfig) *Katalozi {
	base := cfg.BaseURL
	if base == "" {
		base = KataloziBaseURL
	}
	base = strings.TrimRight(base, "/") + "/"
	prefix := strings.TrimRight(cfg.CatalogPrefix, "/")
	return &Katalozi{
		client:  client,
		clock:   clock,
		base:    base,
		pattern: regexp.MustCompile(`(?i)href="` + regexp.QuoteMeta(prefix) + `/?(\d+)"`),
	}
}

// Resolve implements crawler.Resolver for one city.
func (k *Katalozi) Resolve(ctx context.Context, city string) ([]crawler.BrochureReference, error) {
	if strings.TrimSpace(city) == "" {
		return nil, fmt.Errorf("%w: katalozi: city is required", crawler.ErrResolution)
	}
	cityURL := k.base + "city/" + url.PathEscape(city)
	resp, err := k.client.get(ctx, cityURL, nil)
	if err != nil {
		return nil, fmt.Errorf("katalozi city %s: %w", city, err)
	}

	from, to := crawler.WeekWindow(k.clock.Now())
	seen := make(map[string]bool)
	var refs []crawler.BrochureReference
	for _, m := range k.pattern.FindAllStringSubmatch(string(resp.Body), -1) {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		refs = append(refs, crawler.BrochureReference{
			BrochureID: "katalozi-" + id,
			ValidFrom:  from,
			ValidTo:    to,
			Scope:      city,
			Locator: crawler.AssetLocator{
				Kind:         crawler.LocatorImageSequence,
				BaseURL:      k.base + "catalogs/" + id + "/landscape/",
				StartID:      1,
				Suffix:       ".jpg",
				NotFoundURLs: []string{k.base},
				Referer:      k.base,
				Accept:       imageAccept,
			},
		})
	}
	return refs, nil
}
