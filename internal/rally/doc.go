// Package rally defines the canonical rally data model, the storage contract
// used by the ingestion pipeline, and the error taxonomy shared by every
// source adapter. Source packages map their loose payloads into these types
// and nothing past the resolver ever sees a raw source shape.
package rally
