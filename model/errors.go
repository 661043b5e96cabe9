package model

import "github.com/kanephamphu/connex-agi/agierr"

// ErrEmbedUnsupported is returned by Client.Embed when the provider does
// not offer an embedding endpoint (e.g. Anthropic).
var ErrEmbedUnsupported = agierr.New(agierr.KindConfiguration, "model: provider does not support embeddings")

// ErrNoProviderConfigured is returned by Router.Select when no provider
// for the requested task class has credentials configured.
var ErrNoProviderConfigured = agierr.New(agierr.KindConfiguration, "model: no provider configured for task class")

// ErrProtocolMismatch marks a response the provider SDK returned that
// this adapter could not parse into the generic Client shape — distinct
// from provider unavailability per the Model Router's failure contract.
var ErrProtocolMismatch = agierr.New(agierr.KindExecution, "model: provider protocol mismatch")
