// Package identity holds the signed-in user of this core.
//
// Sign-in itself happens elsewhere; the core only receives the HS256 access
// token the app already holds and validates it against the shared secret.
// Alerts and contact lookups read the current user from here and become
// admin-only when nobody is signed in.
package identity
