// Package users keeps the actor profile registry: per-actor lifetime
// and rolling message counts, derived level and badge tags, and a
// bounded in-memory conversation context.
//
// Profiles persist to a JSON flat file and are never deleted.
package users
