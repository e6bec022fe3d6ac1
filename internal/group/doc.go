// Package group implements composite functional endpoints.
//
// A group fans state-section writes out to a member set and aggregates the
// outcome: every member operation runs concurrently, the fan-out waits for
// all of them, and failures come back as a MemberError naming exactly
// which members failed while successful members keep their new state.
// Reads answer from the first member in insertion order. The config
// section never fans out; members keep their individual configuration.
//
// Membership is flat. A group cannot contain another group, and every
// member must resolve through the group's own registry. Listener
// registration installs relays on each member, so a change on any member
// surfaces as a notification from the group itself.
package group
