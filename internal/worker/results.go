package worker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpcbench/fleet/internal/wire"
)

// collectArtifacts reads every regular file directly inside dir and returns
// them as an artifact envelope, in directory-listing order. Filenames are
// base names only — no directory components leak into the wire response.
func collectArtifacts(taskID, dir string) (wire.ArtifactEnvelope, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return wire.ArtifactEnvelope{TaskID: taskID}, nil
		}
		return wire.ArtifactEnvelope{}, fmt.Errorf("worker: list results %s: %w", dir, err)
	}

	envelope := wire.ArtifactEnvelope{TaskID: taskID}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return wire.ArtifactEnvelope{}, fmt.Errorf("worker: read artifact %s: %w", e.Name(), err)
		}
		envelope.Results = append(envelope.Results, wire.Artifact{
			Filename: filepath.Base(e.Name()),
			Content:  string(content),
		})
	}
	return envelope, nil
}
