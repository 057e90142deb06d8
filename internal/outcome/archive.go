package outcome

import (
	"context"

	"oraculum/internal/domain"
)

// Archiver is satisfied by *persistence.Archive.
type Archiver interface {
	Upsert(ctx context.Context, p domain.Prediction) error
}

type ArchiveSink struct {
	archive Archiver
}

func NewArchiveSink(a Archiver) *ArchiveSink { return &ArchiveSink{archive: a} }

func (s *ArchiveSink) Name() string { return "archive" }

func (s *ArchiveSink) Publish(ctx context.Context, p domain.Prediction) error {
	return s.archive.Upsert(ctx, p)
}
