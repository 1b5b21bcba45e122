// Package session derives the console's authentication state from the bearer
// token held in a Store.
//
// A Manager owns the state for one origin. Init restores it from the store
// once per process, Login and Logout move it between the unauthenticated
// and authenticated states. The state is always recomputed from the stored
// token and never persisted on its own.
package session
