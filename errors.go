package sieve

import "errors"

var (
	// ErrUnknownAttribute is returned by metadata adapters when an attribute
	// path names an attribute that does not exist on the parent.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrUnsupportedPredicate is returned at registration when a comparison
	// predicate is attached to an attribute that is not comparable, or to an
	// attribute with nested attributes.
	ErrUnsupportedPredicate = errors.New("unsupported predicate")

	// ErrInvalidCondition is returned when a condition is malformed.
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrInvalidFilter is returned when a filter cannot be registered as given.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrDuplicateSubscription is returned when an ID is registered twice.
	ErrDuplicateSubscription = errors.New("subscription already registered")

	// ErrSubscriptionNotFound is returned when unregistering an unknown or
	// stale subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrDuplicatePredicate is returned when the same predicate subscription
	// is attached to a node twice.
	ErrDuplicatePredicate = errors.New("predicate subscription already attached")

	// ErrNoSuchChild and ErrInconsistent report contract violations: the
	// caller asked to remove something it never added. They indicate a
	// defect in the bookkeeping of the caller, not a runtime condition.
	ErrNoSuchChild  = errors.New("no child found")
	ErrInconsistent = errors.New("attribute tree is inconsistent")
)
