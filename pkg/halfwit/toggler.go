package halfwit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
)

// A Toggler makes the outside world reflect a mask: after Toggle returns,
// exactly the mask's candidates are enabled. It is invoked synchronously
// before every trial and once more with the baseline on session end, and is
// the only component with toggle side effects; the engine itself never
// touches candidate state.
type Toggler interface {
	Toggle(mask Mask) error

	// Restore brings every candidate back to its baseline state.
	Restore() error
}

// FileToggler toggles candidates that are files on disk. Every candidate is
// stashed away once at creation; disabling a file removes it, enabling it
// copies it back from the stash. The stash outlives crashes, so an
// interrupted session can always be restored.
type FileToggler struct {
	universe Universe
	stashDir string
	log      *logrus.Entry
}

// NewFileToggler creates a toggler for the passed universe of file paths,
// stashing pristine copies under stashDir. Candidates already stashed by an
// earlier run are left untouched, so resuming reuses the original baseline.
func NewFileToggler(universe Universe, stashDir string, log *logrus.Entry) (*FileToggler, error) {
	if err := os.MkdirAll(stashDir, 0755); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create stash directory %s", stashDir), err)
	}
	t := &FileToggler{
		universe: universe,
		stashDir: stashDir,
		log:      log,
	}
	for _, c := range universe.Candidates() {
		stash := t.stashPath(c)
		if _, err := os.Stat(stash); err == nil {
			continue
		}
		if _, err := os.Stat(string(c)); err != nil {
			return nil, errors.Join(fmt.Errorf("candidate %q is not an accessible file", c), err)
		}
		if err := copy.Copy(string(c), stash); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to stash candidate %q", c), err)
		}
		t.log.Debugf("Stashed %s at %s", c, stash)
	}
	return t, nil
}

// Toggle enables exactly the mask's files: missing enabled files are restored
// from the stash, present disabled files are removed.
func (t *FileToggler) Toggle(mask Mask) error {
	for _, c := range t.universe.Candidates() {
		if mask.Contains(c) {
			if _, err := os.Stat(string(c)); err == nil {
				continue
			}
			if err := copy.Copy(t.stashPath(c), string(c)); err != nil {
				return errors.Join(fmt.Errorf("failed to restore candidate %q from stash", c), err)
			}
		} else {
			if err := os.Remove(string(c)); err != nil && !os.IsNotExist(err) {
				return errors.Join(fmt.Errorf("failed to disable candidate %q", c), err)
			}
		}
	}
	return nil
}

// Restore re-enables every candidate from the stash.
func (t *FileToggler) Restore() error {
	return t.Toggle(t.universe.All())
}

// stashPath flattens a candidate path into a stable stash file name.
func (t *FileToggler) stashPath(c Candidate) string {
	return filepath.Join(t.stashDir, digest.FromString(string(c)).Encoded())
}
