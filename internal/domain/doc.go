// Package domain contains the core value types and errors shared by the
// map lifecycle packages.
//
// This package is the innermost layer. It has no dependencies on logging,
// HTTP, storage or the widget runtime and contains only the vocabulary the
// other packages agree on.
//
// # Contents
//
//   - [ResourceKind]: token, module or dom, with acquisition and release order
//   - Sentinel errors checked with errors.Is across package boundaries
package domain
