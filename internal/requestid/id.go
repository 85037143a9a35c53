// Package requestid generates the per-request identifiers tagged onto
// every log line. The reference proxy calls libuuid directly; this
// rendering uses google/uuid for the same 36-character hyphenated hex
// form.
package requestid

import "github.com/google/uuid"

// New returns a new random request id in canonical
// 8-4-4-4-12 hyphenated hex form.
func New() string {
	return uuid.NewString()
}
