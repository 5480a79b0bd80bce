// Package file provides file-based persistence: one JSON document per entity under
// <root>/<entity>/<id>.json. It is meant for a single process.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/fanflow/pkg/persistence"
)

const (
	dirWorkflows = "workflows"
	dirRuns      = "runs"
	dirSchedules = "schedules"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
	scheduleRepo *ScheduleRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	files := &store{root: cleanRoot}

	return &Persistence{
		root:         cleanRoot,
		workflowRepo: &WorkflowRepository{store: files},
		runRepo:      &RunRepository{store: files},
		scheduleRepo: &ScheduleRepository{store: files},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}

// store reads and writes JSON documents. The mutex makes read-modify-write sequences
// such as ClaimRun and ClaimDue atomic within the process.
type store struct {
	root string
	mu   sync.Mutex
}

func (s *store) path(dir, id string) string {
	return filepath.Clean(path.Join(s.root, dir, id+".json"))
}

// read decodes <dir>/<id>.json into target and reports whether the file exists.
func (s *store) read(dir, id string, target any) (bool, error) {
	body, err := os.ReadFile(s.path(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return true, nil
}

func (s *store) write(dir, id string, value any) error {
	if err := os.MkdirAll(path.Join(s.root, dir), 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	// Written to a temporary file first so readers never observe a partial document.
	tmp, err := os.CreateTemp(path.Join(s.root, dir), "."+id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s/%s: %w", dir, id, err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return os.Rename(tmp.Name(), s.path(dir, id))
}

func (s *store) remove(dir, id string) error {
	err := os.Remove(s.path(dir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s/%s: %w", dir, id, err)
	}

	return nil
}

// ids lists the document ids stored in dir.
func (s *store) ids(dir string) ([]string, error) {
	jsonFiles, err := fs.Glob(os.DirFS(path.Join(s.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

// all decodes every document of dir, keeping those accepted by keep.
func all[T any](s *store, dir string, keep func(*T) bool) ([]*T, error) {
	ids, err := s.ids(dir)
	if err != nil {
		return nil, err
	}

	items := make([]*T, 0, len(ids))

	for _, id := range ids {
		var item T

		found, err := s.read(dir, id, &item)
		if err != nil {
			return nil, err
		}

		if found && (keep == nil || keep(&item)) {
			items = append(items, &item)
		}
	}

	return items, nil
}
