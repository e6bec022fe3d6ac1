// Package technology hosts one address space of functional endpoints.
//
// A Technology is the registry behind the protocol server: every locally
// served endpoint, group, and automation primitive is hosted here, keyed
// by its path identifier. It is also the resolver that groups and
// automations use to reach their targets, so anything hosted can be a
// pairing source, a rule condition, or a group member.
//
// Hosting is explicit both ways. Host registers an endpoint and returns a
// generation number; Unhost removes it only if the generation still
// matches, so a deferred unhost can never tear down an endpoint that was
// re-hosted under the same identifier in the meantime.
package technology
