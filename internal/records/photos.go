package records

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"facewatch/internal/fileutil"
	"facewatch/internal/logging"
)

// MaterializePhotos writes photos to dir as suspect_<id>_<i>.jpg and returns
// the paths that were written. Photos that cannot be written are skipped.
func MaterializePhotos(dir string, recordID int64, photos []Photo, logger *slog.Logger) []string {
	if len(photos) == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("photo cache unavailable",
			logging.String(logging.FieldEventType, "photo_cache_unavailable"),
			logging.String(logging.FieldImpact, "record photos are not shown"),
			logging.String("dir", dir),
			logging.Error(err),
		)
		return nil
	}
	paths := make([]string, 0, len(photos))
	for i, photo := range photos {
		path := filepath.Join(dir, fmt.Sprintf("suspect_%d_%d.jpg", recordID, i))
		if err := fileutil.WriteAtomic(path, photo.Data, 0o644); err != nil {
			logger.Warn("skipping record photo",
				logging.String(logging.FieldEventType, "photo_write_failed"),
				logging.String("path", path),
				logging.Error(err),
			)
			continue
		}
		paths = append(paths, path)
	}
	return paths
}
