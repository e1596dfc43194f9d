// Package entity defines the core types shared by every layer of the framework.
//
// # Overview
//
// An entity is a typed wrapper over a full row of fields (Fields) plus the viewer
// on whose behalf it was loaded. Entities are only handed to callers after the
// read policy of their kind allowed them; the loader and mutator packages enforce
// that, this package only declares the shapes:
//
//   - Fields: an immutable full-row record keyed by field name
//   - Entity: the runtime-checked interface every entity kind implements
//   - Base: an embeddable Entity implementation
//   - ViewerContext: the identity and privacy evaluation mode used for a request
//   - CascadingDeletionCause: the chain of parent deletions behind a change
//
// # Error Taxonomy
//
// Errors returned by the framework fall into a small, closed set of types, all
// of which wrap a github.com/goliatone/go-errors category so they can be
// inspected either with errors.As or with the go-errors helpers:
//
//   - *NotFoundError (CategoryNotFound)
//   - *NotAuthorizedError (CategoryAuthz), carrying the denying rule index and action
//   - *InvalidFieldValueError (CategoryValidation)
//   - *StoreError, classified as transient, a constraint violation, or unknown
//
// Raw-flavored APIs report not-found and not-authorized outcomes as per-item
// results; enforcing APIs return them as errors.
package entity
