// Package store defines the document catalog model and the repository
// interfaces that persist it. Implementations live in other packages; this
// package must not import database drivers or concrete clients.
package store
