// Package domain holds the audience value types shared by the services,
// repositories, workers and the API: contacts and their attribute maps,
// companies, segments, filter trees, customer requests, campaigns and job
// progress.
//
// Nothing here imports another internal package or holds a connection.
// Small pure helpers on the types (status checks, scalar coercion) are
// fine.
package domain
