// Package models defines the persisted record types of the directory store
// and the per-user personal stores.
package models

// DirectoryRecord is one row of the shared directory store: the mapping from
// a username to its public authenticator code and personal-store location.
// Created once at signup. The authenticator is directory-wide unique and
// immutable; StoreLocation may be migrated to a canonical public URI after
// the first link.
type DirectoryRecord struct {
	Authenticator string
	Username      string
	PasswordHash  string
	StoreLocation string
}
