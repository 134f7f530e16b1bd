package retailers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// LidlFlyerAPI is the Schwarz leaflet endpoint.
const LidlFlyerAPI = "https://endpoints.leaflets.schwarz/v4/flyer"

type lidlFlyerResponse struct {
	Flyer *struct {
		PDFURL string `json:"pdfUrl"`
	} `json:"flyer"`
}

// Lidl asks the leaflet API for the flyer covering today through today+7.
// A missing flyer is not an error; there is simply nothing to crawl yet.
type Lidl struct {
	client   *Client
	clock    crawler.Clock
	storeID  string
	endpoint string
}

// NewLidl builds the resolver. endpoint defaults to LidlFlyerAPI.
func NewLidl(client *Client, clock crawler.Clock, storeID, endpoint string) *Lidl {
	if endpoint == "" {
		endpoint = LidlFlyerAPI
	}
	return &Lidl{client: client, clock: clock, storeID: storeID, endpoint: endpoint}
}

// Resolve implements crawler.Resolver. The scope is ignored.
func (l *Lidl) Resolve(ctx context.Context, scope string) ([]crawler.BrochureReference, error) {
	from := crawler.StartOfDay(l.clock.Now())
	until := from.AddDate(0, 0, 7)
	identifier := from.Format("02-01") + "-" + until.Format("02-01")

	q := url.Values{}
	q.Set("flyer_identifier", identifier)
	q.Set("region_id", "0")
	q.Set("region_code", "0")

	var body lidlFlyerResponse
	err := l.client.json(ctx, l.endpoint+"?"+q.Encode(), &body)
	var statusErr *crawler.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lidl flyer %s: %w", identifier, err)
	}
	if body.Flyer == nil || body.Flyer.PDFURL == "" {
		return nil, nil
	}

	return []crawler.BrochureReference{{
		BrochureID: composedID(l.storeID, from),
		ValidFrom:  from,
		ValidTo:    crawler.EndOfDay(until),
		Scope:      scope,
		Locator: crawler.AssetLocator{
			Kind: crawler.LocatorDirectDocument,
			URL:  body.Flyer.PDFURL,
		},
	}}, nil
}
