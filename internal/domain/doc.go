// Package domain contains the core domain entities and value objects for hubship.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (HTTP, file system, logging) and
// contains only pure business logic.
//
// # Entities
//
//   - [ChangeEvent]: A single change-data-capture event read from the source
//   - [BatchOptions]: Per-slot batch creation options (partition target, max size)
//   - [State]: Persistent state for crash recovery (committed source offset)
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
