// Package contacts defines the Contact Store contract shared by the audience,
// dedup and lifecycle services: the repository interfaces over a tenant's
// contacts and company settings, the store's sentinel errors, and tenant id
// validation.
//
// Every repository method takes the tenant id and must scope its query by
// it. Contacts of different tenants share one table.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package contacts
