// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// application needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [PartitionProducer]: Creates and transmits partitioned event batches
//   - [EventBatch]: A transport-provided batch buffer with capacity checks
//   - [RecordCommitter]: Marks dispatched events as durably processed
//   - [ChangeReader]: Reads change events from the source change log
//   - [StateRepository]: Persists and loads connector state
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app, internal/dispatch) depends only on
// these interfaces. Infrastructure adapters (internal/adapters) implement
// them with concrete implementations (file system, HTTP, zerolog, etc.).
//
// This separation enables:
//   - Testing dispatch logic with mock implementations
//   - Swapping infrastructure without changing business logic
//   - Clear boundaries and dependency direction
package ports
