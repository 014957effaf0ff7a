// Package store defines interfaces for persisting the run ledger. Concrete
// implementations live in other packages; this package must not import
// database drivers.
package store
