// Package main hosts the brochure crawler entrypoint.
//
// Architecture overview:
//   - Retailers: internal/retailers holds one resolver per source site (broshura.bg, katalozi-bg.info,
//     billa.bg via Publitas, cbabg.com and the Schwarz leaflet API). A resolver turns a scope (a city, or the
//     store's listing page) into BrochureReferences: id, validity window and an asset locator.
//   - Pipeline: internal/pipeline deduplicates references across scopes, skips brochures that already have a
//     record, then collects pages through a bounded errgroup worker pool. Images are assembled into one PDF with
//     pdfcpu; direct documents are validated. The blob is written first, the record second.
//   - Persistence & fanout: blobs go to memory, local disk or GCS (optionally mirrored to disk). Records go to
//     memory, Firestore or Postgres. A BrochureStored event is published to Pub/Sub when notify is configured.
//   - Egress: fetches go through colly; proxies come from a static list or the Webshare API, with the API token
//     read from the environment or Secret Manager.
//   - Configuration & plumbing: Viper populates config from file and BROCHURES_* env vars; zap provides
//     structured logging; Prometheus metrics are served by chi on metrics.addr while a crawl runs.
//
// Quick checklist:
//   - List stores: brochures stores
//   - Crawl: brochures crawl katalozi-kaufland billa, or brochures crawl --all
//   - Maintenance: brochures records check|list|delete
//   - Production: set BROCHURES_RECORDS_PROVIDER=firestore, BROCHURES_BLOBS_PROVIDER=gcs,
//     BROCHURES_BLOBS_BUCKET and the project ids; the process exits non-zero only on fatal errors.
package main
