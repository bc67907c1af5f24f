package files

import (
	"context"
	"log/slog"
)

// Store abstracts the external file service that holds auction images.
// References are opaque ids; the core only ever deletes orphaned files.
type Store interface {
	Delete(ctx context.Context, ref string) error
}

// LogStore logs deletions instead of calling the real file service.
type LogStore struct {
	log *slog.Logger
}

func NewLogStore(log *slog.Logger) *LogStore {
	return &LogStore{log: log}
}

func (s *LogStore) Delete(ctx context.Context, ref string) error {
	s.log.Info("file.delete", "ref", ref)
	return nil
}

// CleanupImage deletes a stored auction image best-effort: failures are
// logged, never surfaced, so a file-service outage cannot block an auction
// update or delete.
func CleanupImage(ctx context.Context, store Store, log *slog.Logger, ref *string) {
	if store == nil || ref == nil || *ref == "" {
		return
	}

	if log == nil {
		log = slog.Default()
	}

	if err := store.Delete(ctx, *ref); err != nil {
		log.Warn("auction image cleanup failed", "ref", *ref, "err", err)
	}
}
