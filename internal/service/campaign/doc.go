// Package campaign implements campaign lifecycle management.
//
// The service layer contains all business logic for creating, starting,
// pausing, resuming, and stopping outreach campaigns. It depends on the
// repository interface defined in this package and should never import
// from api/ or worker/.
//
// The repository implementation lives in storage/postgres.
package campaign
