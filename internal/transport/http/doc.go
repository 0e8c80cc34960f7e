// Package http provides the HTTP transport layer for the data mart.
//
// The API is read-mostly: dimension and fact relations and the variance pivot
// are exposed as JSON, and a single POST endpoint triggers a pipeline run.
// Runs are serialized; a run request while one is in flight answers 409.
package http
