// Package iam resolves who the current principal is and what they may do.
//
// A Resolver turns an authenticated principal (auth UID plus optional email)
// into an Identity: the user's roles, permissions, department placement and
// derived admin flags. Resolution reads the denormalized user_profile_view
// first, falls back to the raw users table, and only joins the role and
// permission tables when the view has no codes for the user.
//
// Every store lookup is fail-soft: a failed or timed-out query is logged at
// debug level and treated as "no data" so the fallback chain can continue.
// Only a failed session lookup surfaces as an error, and even then the
// identity is nil so authorization fails closed.
//
// Resolved identities are cached per auth UID for a TTL (10 minutes by
// default). SingleSlotCache keeps one principal at a time; LRUCache and
// RedisCache are keyed caches for servers handling many principals.
// ClearIdentityCache must be called after any role or permission mutation.
package iam
