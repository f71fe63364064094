package domain

import "time"

// State represents persistent state for crash recovery.
// This state is saved to disk after each committed event so a restarted
// connector resumes after the last durably dispatched offset.
type State struct {
	// CommittedOffset is the offset of the last event confirmed dispatched.
	CommittedOffset int64 `json:"committed_offset"`

	// LastCommitAt is the timestamp of the last successful commit.
	LastCommitAt time.Time `json:"last_commit_at"`
}

// IsEmpty returns true if the state has not been initialized.
func (s State) IsEmpty() bool {
	return s.CommittedOffset == 0 && s.LastCommitAt.IsZero()
}

// UpdateAfterCommit advances the committed offset after a successful commit.
func (s *State) UpdateAfterCommit(offset int64) {
	if offset > s.CommittedOffset {
		s.CommittedOffset = offset
	}
	s.LastCommitAt = time.Now()
}
