// Package vectorstore provides the embedding index abstraction used by the
// search engine's semantic sub-search. The default implementation embeds
// chromem-go directly in the process; an optional Qdrant-backed alternate is
// available for deployments that already run a Qdrant cluster.
package vectorstore
