// Package sanitizer normalizes free-form input before validation and storage.
//
// All functions are idempotent: applying them twice gives the same result as
// applying them once. Invalid input is normalized to an empty string rather
// than rejected; rejecting is the validator's job.
//
// Normalization includes:
//   - Identifiers: trim surrounding whitespace
//   - Categories: lowercase, runs of anything but letters and digits become one "_"
//   - Reasons: collapse whitespace, cap the length in runes
//   - Slices: drop duplicates and empty values after normalization
package sanitizer
