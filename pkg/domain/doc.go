/*
Package domain contains the core domain models for the Parley orchestration
engine.

It defines the workflow phase machine, the copy-on-write WorkflowState
snapshot, the append-only audit trail, the node contract, and the error
taxonomy. This package is kept pure and free of external dependencies like
I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Phase: a named stage in the workflow FSM, advancing monotonically from
    INITIALIZATION to COMPLETION.
  - WorkflowState: the immutable snapshot of one conversation's progress;
    every mutation produces a new instance via Clone.
  - NodeSpec / Node: a unit of business logic gated by the phases it
    declares.
  - AuditEntry: one append-only transition record; replaying a trail
    deterministically reconstructs phase completion.
  - Requirements: the per-phase table of data fields that gate phase
    advancement.
*/
package domain
