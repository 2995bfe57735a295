// Package crawler defines the core types shared across the paperscout
// subsystems: search requests, raw and enriched paper records, page
// diagnostics, fetch requests/responses and the collaborator interfaces
// (fetcher, blob store, publisher, clock, id generator) the pipeline is
// assembled from.
package crawler
