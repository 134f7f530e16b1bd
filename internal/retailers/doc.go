// Package retailers holds the per-retailer brochure resolvers and the
// registry of built-in stores.
//
// Every resolver turns a listing page, city page or JSON endpoint into
// crawler.BrochureReference values. Resolvers never download page assets;
// that is the collector's job.
package retailers
