// Package artifacts implements the Artifact Store: immutable, namespaced
// per-stage output files that live inside a job's current directory and
// move with it across state transitions, since the mover renames the whole
// folder rather than copying files individually.
package artifacts

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"jobforge/internal/joberrors"
	"jobforge/internal/storage"
	"jobforge/internal/textutil"
)

// DisplayLabel renders a stage name as a human-friendly title for CLI
// output, e.g. "separation" -> "Separation".
func DisplayLabel(stageName string) string {
	return cases.Title(language.Und).String(stageName)
}

// Write places data under jobDir's stageName/fileName, creating the stage
// subdirectory if needed. It refuses to overwrite an existing artifact:
// artifacts are immutable once written, matching the "collision-checked"
// contract — a stage that wants to redo work must write a new file name.
func Write(jobDir, stageName, fileName string, data io.Reader) (string, error) {
	stageDir := storage.StageDir(jobDir, stageName)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return "", joberrors.Wrap(joberrors.ErrIO, "artifacts", "write", stageDir, err)
	}
	safeName := textutil.SanitizeFileName(fileName)
	if safeName == "" {
		return "", fmt.Errorf("%w: empty artifact file name", joberrors.ErrStagePreconditionNotMet)
	}
	target := filepath.Join(stageDir, safeName)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%w: %s/%s already exists", joberrors.ErrAlreadyExistsInTarget, stageName, safeName)
	} else if !os.IsNotExist(err) {
		return "", joberrors.Wrap(joberrors.ErrIO, "artifacts", "write", target, err)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", joberrors.Wrap(joberrors.ErrIO, "artifacts", "write", target, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		_ = os.Remove(target)
		return "", joberrors.Wrap(joberrors.ErrIO, "artifacts", "write", target, err)
	}
	return target, nil
}

// List returns, for a job's current directory, a map of stage name to the
// artifact file names produced under it, sorted for deterministic output.
func List(jobDir string) (map[string][]string, error) {
	entries, err := os.ReadDir(jobDir)
	if err != nil {
		return nil, joberrors.Wrap(joberrors.ErrIO, "artifacts", "list", jobDir, err)
	}
	out := make(map[string][]string)
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "log" {
			continue
		}
		files, err := listFiles(filepath.Join(jobDir, e.Name()))
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			out[e.Name()] = files
		}
	}
	return out, nil
}

func listFiles(stageDir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(stageDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(stageDir, path)
		if relErr != nil {
			return relErr
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, joberrors.Wrap(joberrors.ErrIO, "artifacts", "listFiles", stageDir, err)
	}
	sort.Strings(names)
	return names, nil
}
