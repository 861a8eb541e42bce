// Package campaign re-runs a tenant's ongoing campaigns after new contacts
// arrive.
//
// The service lists ACTIVE ongoing campaigns through Repository and hands
// each one to a Runner. HTTPRunner delivers that hand-off to the campaign
// sender over HTTP.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
