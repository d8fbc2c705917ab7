// Package deps resolves the external binaries the encoder shells out to and
// reports whether they can be executed.
package deps
