// Package jsonapi provides JSON:API specification compliant response
// types and writers for the admin API.
// See https://jsonapi.org for the full specification.
package jsonapi

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ContentType is the JSON:API media type.
const ContentType = "application/vnd.api+json"

// Meta represents arbitrary metadata.
type Meta map[string]any

// Document represents a JSON:API top-level document.
// A document MUST contain at least one of: data, errors, or meta.
type Document struct {
	Data   any     `json:"data,omitempty"`
	Errors []Error `json:"errors,omitempty"`
	Meta   Meta    `json:"meta,omitempty"`
}

// Resource represents a JSON:API resource object.
type Resource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Error represents a JSON:API error object.
type Error struct {
	Status string       `json:"status"`
	Code   string       `json:"code"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorSource indicates the source of an error.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`   // JSON pointer to offending field
	Parameter string `json:"parameter,omitempty"` // Query parameter that caused error
}

// StatusCode returns the HTTP status code as an int.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// NewResource creates a resource object with the given type, id and
// attributes.
func NewResource(resourceType, id string, attrs map[string]any) Resource {
	return Resource{Type: resourceType, ID: id, Attributes: attrs}
}

// WriteDocument writes a JSON:API document to the response.
func WriteDocument(w http.ResponseWriter, status int, doc Document) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(doc)
}

// WriteResource writes a single resource response.
func WriteResource(w http.ResponseWriter, status int, r Resource) {
	WriteDocument(w, status, Document{Data: r})
}

// WriteCollection writes a collection response.
func WriteCollection(w http.ResponseWriter, status int, resources []Resource) {
	if resources == nil {
		resources = []Resource{}
	}
	WriteDocument(w, status, Document{Data: resources})
}

// WriteMeta writes a response with only metadata (no data).
func WriteMeta(w http.ResponseWriter, status int, meta Meta) {
	WriteDocument(w, status, Document{Meta: meta})
}

// WriteError writes an error response with one or more errors.
// The HTTP status is derived from the first error's status field.
func WriteError(w http.ResponseWriter, errs ...Error) {
	if len(errs) == 0 {
		errs = []Error{newError(http.StatusInternalServerError, "internal_error", "Internal Server Error", "")}
	}
	status := errs[0].StatusCode()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteDocument(w, status, Document{Errors: errs})
}

func newError(status int, code, title, detail string) Error {
	return Error{
		Status: strconv.Itoa(status),
		Code:   code,
		Title:  title,
		Detail: detail,
	}
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, newError(http.StatusBadRequest, "bad_request", "Bad Request", detail))
}

// WriteValidationError writes a 400 error pointing at the offending field.
func WriteValidationError(w http.ResponseWriter, field, message string) {
	e := newError(http.StatusBadRequest, "validation_error", "Validation Error", message)
	e.Source = &ErrorSource{Pointer: "/data/attributes/" + field}
	WriteError(w, e)
}

// WriteUnauthorized writes a 401 Unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, newError(http.StatusUnauthorized, "unauthorized", "Unauthorized", detail))
}

// WriteForbidden writes a 403 Forbidden error.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Access denied"
	}
	WriteError(w, newError(http.StatusForbidden, "forbidden", "Forbidden", detail))
}

// WriteNotFound writes a 404 Not Found error for a resource type.
func WriteNotFound(w http.ResponseWriter, resourceType string) {
	WriteError(w, newError(http.StatusNotFound, "not_found", "Not Found", resourceType+" not found"))
}

// WriteInternalError writes a 500 Internal Server Error.
func WriteInternalError(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "An unexpected error occurred"
	}
	WriteError(w, newError(http.StatusInternalServerError, "internal_error", "Internal Server Error", detail))
}
