// Package httputil holds the JSON response and request helpers shared by the
// audience API handlers. Errors use one envelope: {error, code, details}.
package httputil
