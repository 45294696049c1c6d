// Package crawler implements the news ingestion pipeline: the per-section
// orchestrator, the candidate builder that resolves listing items into
// article details, and the ingestion gate that persists only unseen URLs.
package crawler
