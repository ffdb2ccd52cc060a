// Package types holds the wire and domain structs shared across the node:
// signed operations, peer announcements, and the store-type tag.
package types
