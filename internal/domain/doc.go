// Package domain defines the core business types for the outreach platform.
//
// Types in this package are pure value objects with no behavior beyond small
// pure functions. They are the shared language between handlers, services,
// repositories, and the campaign engine.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation and classification methods are allowed (pure functions)
//   - Constants and enums belong here
package domain
