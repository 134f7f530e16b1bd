package retailers

import (
	"fmt"
	"sort"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// Country is the country code every built-in store reports.
const Country = "bg"

// Definition is one built-in crawl target: a store on one source site.
type Definition struct {
	// Name is unique, e.g. "broshura-lidl".
	Name string
	// StoreID may repeat across definitions that read the same retailer from different sites.
	StoreID  string
	Country  string
	Source   string
	Strategy crawler.LocatorKind
	Scopes   []string

	build func(client *Client, clock crawler.Clock) crawler.Resolver
}

// Store returns the pipeline view of the definition.
func (d Definition) Store() crawler.Store {
	return crawler.Store{
		Name:    d.Name,
		StoreID: d.StoreID,
		Country: d.Country,
		Scopes:  append([]string(nil), d.Scopes...),
	}
}

// Resolver builds the definition's resolver.
func (d Definition) Resolver(client *Client, clock crawler.Clock) crawler.Resolver {
	return d.build(client, clock)
}

func broshura(name, storeID, slug, suffix string) Definition {
	return Definition{
		Name:     name,
		StoreID:  storeID,
		Country:  Country,
		Source:   "broshura.bg",
		Strategy: crawler.LocatorImageSequence,
		build: func(c *Client, _ crawler.Clock) crawler.Resolver {
			return NewBroshura(c, BroshuraConfig{Slug: slug, ImageSuffix: suffix})
		},
	}
}

func katalozi(name, storeID, prefix string) Definition {
	return Definition{
		Name:     name,
		StoreID:  storeID,
		Country:  Country,
		Source:   "katalozi-bg.info",
		Strategy: crawler.LocatorImageSequence,
		Scopes:   KataloziCities,
		build: func(c *Client, clk crawler.Clock) crawler.Resolver {
			return NewKatalozi(c, clk, KataloziConfig{CatalogPrefix: prefix})
		},
	}
}

var builtin = []Definition{
	broshura("broshura-fantastico", "fantastico-bg", "fantastico", "_824x1186.jpg"),
	broshura("broshura-lidl", "lidl-bg", "lidl", "_755x1298.jpg"),
	broshura("broshura-tmarket", "tmarket-bg", "t-market", "_768x1334.jpg"),
	katalozi("katalozi-kaufland", "kaufland-bg", "https://katalozi-bg.info/catalogs/promo-katalog-Kaufland/"),
	katalozi("katalozi-lidl", "lidl-bg", "https://katalozi-bg.info/catalogs/promo-katalog-Lidl/"),
	katalozi("katalozi-cba", "cba-bg", "https://katalozi-bg.info/catalogs/promo-katalog-CBAKome/"),
	katalozi("katalozi-burleks", "burleks-bg", "https://katalozi-bg.info/catalogs/promo-katalog-Supermarkets-cba"),
	{
		Name:     "billa",
		StoreID:  "billa-bg",
		Country:  Country,
		Source:   "billa.bg",
		Strategy: crawler.LocatorDirectDocument,
		build: func(c *Client, _ crawler.Clock) crawler.Resolver {
			return NewBilla(c, "billa-bg", "")
		},
	},
	{
		Name:     "cba",
		StoreID:  "cba-bg",
		Country:  Country,
		Source:   "cbabg.com",
		Strategy: crawler.LocatorImageList,
		build: func(c *Client, _ crawler.Clock) crawler.Resolver {
			return NewCBA(c, "cba-bg", "", "")
		},
	},
	{
		Name:     "lidl-api",
		StoreID:  "lidl-bg",
		Country:  Country,
		Source:   "leaflets.schwarz",
		Strategy: crawler.LocatorDirectDocument,
		build: func(c *Client, clk crawler.Clock) crawler.Resolver {
			return NewLidl(c, clk, "lidl-bg", "")
		},
	},
}

// Definitions returns every built-in definition sorted by name.
func Definitions() []Definition {
	out := append([]Definition(nil), builtin...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup selects definitions by name or store id, in argument order and
// without duplicates. A store id selects every definition for that store.
func Lookup(keys ...string) ([]Definition, error) {
	all := Definitions()
	var out []Definition
	picked := make(map[string]bool)
	for _, key := range keys {
		matched := false
		for _, d := range all {
			if d.Name != key && d.StoreID != key {
				continue
			}
			matched = true
			if !picked[d.Name] {
				picked[d.Name] = true
				out = append(out, d)
			}
		}
		if !matched {
			return nil, fmt.Errorf("unknown store %q", key)
		}
	}
	return out, nil
}
