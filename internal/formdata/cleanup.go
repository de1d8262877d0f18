package formdata

import (
	"context"

	"github.com/JonMunkholm/ingest/internal/logging"
)

// CleanupRequestFiles removes saved files. With no files given it removes
// req.Files. Failures are logged and never returned.
func (m *Ingestor) CleanupRequestFiles(ctx context.Context, req *Request, files ...EggFile) {
	if len(files) == 0 && req != nil {
		files = req.Files
	}
	logger := logging.FromContext(ctx)
	for _, f := range files {
		if f.Filepath == "" {
			continue
		}
		if err := m.store.Remove(f.Filepath); err != nil {
			logger.Warn("remove temp file failed",
				"filepath", f.Filepath,
				"error", err,
			)
		}
	}
}
