package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	skerrors "github.com/gzhole/skillgate/internal/errors"
)

const (
	filePrefix = "skills-used-"
	fileSuffix = ".json"
)

// FileStore keeps one JSON file per session under Dir. Writes go through a
// temp file and rename, so readers never see a partial file.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the state file for a session id.
func (f *FileStore) Path(sessionID string) string {
	return filepath.Join(f.Dir, filePrefix+SanitizeID(sessionID)+fileSuffix)
}

func (f *FileStore) Get(ctx context.Context, sessionID string) (*State, error) {
	data, err := os.ReadFile(f.Path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			st := &State{}
			st.normalize()
			return st, nil
		}
		return nil, skerrors.Mark(skerrors.Wrapf(err, "reading session %s", sessionID), skerrors.ErrStateIO)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, skerrors.Mark(skerrors.Wrapf(err, "decoding session %s", sessionID), skerrors.ErrStateIO)
	}
	st.normalize()
	return &st, nil
}

func (f *FileStore) Save(ctx context.Context, sessionID string, state *State) error {
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return skerrors.Mark(skerrors.Wrap(err, "creating state dir"), skerrors.ErrStateIO)
	}

	st := cloneState(*state)
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return skerrors.Mark(skerrors.Wrap(err, "marshaling session state"), skerrors.ErrStateIO)
	}
	data = append(data, '\n')

	if err := atomicWriteFile(f.Path(sessionID), data, 0o600); err != nil {
		return skerrors.Mark(err, skerrors.ErrStateIO)
	}
	return nil
}

// Clear removes a session's state. A missing file is not an error.
func (f *FileStore) Clear(sessionID string) error {
	err := os.Remove(f.Path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return skerrors.Mark(skerrors.Wrapf(err, "clearing session %s", sessionID), skerrors.ErrStateIO)
	}
	return nil
}

// List returns the sanitized ids of every session with a state file.
func (f *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, skerrors.Mark(skerrors.Wrap(err, "listing sessions"), skerrors.ErrStateIO)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// SanitizeID maps a session id onto a safe file name component. Path
// separators never survive, and the file prefix keeps "." and ".." harmless.
// An id that had to be rewritten gets a short hash of the original, so
// distinct sessions never share a file.
func SanitizeID(id string) string {
	if id == "" {
		return "default"
	}
	var b strings.Builder
	changed := false
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
			changed = true
		}
	}
	if changed {
		sum := sha256.Sum256([]byte(id))
		b.WriteString("-")
		b.WriteString(hex.EncodeToString(sum[:4]))
	}
	return b.String()
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".skillgate-*.tmp")
	if err != nil {
		return skerrors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return skerrors.Wrap(err, "writing temp file")
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return skerrors.Wrap(err, "setting file permissions")
	}
	if err := tmp.Close(); err != nil {
		return skerrors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return skerrors.Wrap(err, "renaming temp file")
	}
	return nil
}
