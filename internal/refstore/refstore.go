package refstore

// Store defines the persistence operations for recordings and audio
// references. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with mocks.
type Store interface {
	PutRecording(rec Recording) error
	FinishRecording(id string, durationMs int64) error
	GetRecording(id string) (*Recording, error)
	ListRecordings(noteID string) ([]Recording, error)
	RenameNote(oldID, newID string) error
	DeleteRecording(id string) error
	PutAutoReference(recordingID, blockID string, offsetMs int64) error
	PutManualReference(recordingID, blockID string, offsetMs int64, endOffsetMs *int64) (*Reference, error)
	GetReference(id string) (*Reference, error)
	ListReferences(recordingID string) ([]Reference, error)
	NoteReferences(noteID string) ([]Reference, error)
	ReferencesForBlock(blockID string) ([]Reference, error)
	DeleteReference(id string) error
	DeleteReferencesForBlock(blockID string) error
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
