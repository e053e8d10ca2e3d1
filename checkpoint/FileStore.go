package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	artifactExt   = ".ckpt"
	sidecarSuffix = "_metadata.json"

	// versionLen is the number of hex digits of the checksum that
	// version an artifact file
	versionLen = 16
)

// FileStore stores each snapshot in a directory as two files:
//
//	<dir>/<name>.<version>.ckpt   compressed snapshot
//	<dir>/<name>_metadata.json    Record, naming the artifact
//
// The version is a prefix of the artifact's checksum. A save writes
// the new artifact next to the old one and then renames the record
// into place, so the record always names a complete artifact: if the
// save fails before the record is replaced, the previous snapshot is
// still loadable.
type FileStore struct {
	dir string

	// write stores data at path atomically
	write func(path string, data []byte) error
}

// NewFileStore returns a FileStore over dir, creating it if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("newfilestore: could not create %v: %v", dir,
			err)
	}
	return &FileStore{dir: dir, write: writeAtomic}, nil
}

// Dir returns the directory of the store
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) artifactPath(name, version string) string {
	return filepath.Join(f.dir, name+"."+version+artifactExt)
}

func (f *FileStore) sidecarPath(name string) string {
	return filepath.Join(f.dir, name+sidecarSuffix)
}

// artifactOf returns the path of the artifact named by a record. Only
// the file name of the recorded location is used, so a store keeps
// working after its directory is moved.
func (f *FileStore) artifactOf(rec Record) string {
	return filepath.Join(f.dir, filepath.Base(rec.Location))
}

// parseArtifact returns the checkpoint name of an artifact file name
func parseArtifact(base string) (string, bool) {
	if !strings.HasSuffix(base, artifactExt) {
		return "", false
	}
	base = strings.TrimSuffix(base, artifactExt)
	i := strings.LastIndex(base, ".")
	if i < 1 || len(base)-i-1 != versionLen {
		return "", false
	}
	if _, err := hex.DecodeString(base[i+1:]); err != nil {
		return "", false
	}
	name := base[:i]
	return name, ValidateName(name) == nil
}

// Put implements the Store interface
func (f *FileStore) Put(rec Record, artifact []byte) (string, error) {
	// An unreadable previous record is replaced
	prev, hadPrev, err := f.readRecord(f.sidecarPath(rec.Name))
	if err != nil {
		hadPrev = false
	}

	version := rec.Checksum
	if len(version) < versionLen {
		version = checksum(artifact)
	}
	rec.Location = f.artifactPath(rec.Name, version[:versionLen])
	sidecar, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("put: could not encode record: %v", err)
	}
	replaced := hadPrev && f.artifactOf(prev) != rec.Location

	if err := f.write(rec.Location, artifact); err != nil {
		return "", fmt.Errorf("put: %v", err)
	}
	if err := f.write(f.sidecarPath(rec.Name), sidecar); err != nil {
		if !hadPrev || replaced {
			os.Remove(rec.Location)
		}
		return "", fmt.Errorf("put: %v", err)
	}

	if replaced {
		err := os.Remove(f.artifactOf(prev))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("put: could not remove previous "+
				"artifact: %v", err)
		}
	}
	return rec.Location, nil
}

// writeAtomic writes data to a temporary file next to path and renames
// it to path
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+
		".tmp*")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write %v: %v", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("could not sync %v: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close %v: %v", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not rename into %v: %v", path, err)
	}
	return nil
}

// Get implements the Store interface. An artifact without a record,
// or a record without its artifact, is reported as corrupt.
func (f *FileStore) Get(name string) ([]byte, Record, bool, error) {
	rec, ok, err := f.readRecord(f.sidecarPath(name))
	if err != nil {
		return nil, Record{}, false, fmt.Errorf("get: %v", err)
	}
	if !ok {
		orphans, err := f.artifacts(name)
		if err != nil {
			return nil, Record{}, false, fmt.Errorf("get: %v", err)
		}
		if len(orphans) > 0 {
			return nil, Record{}, false, fmt.Errorf("get: %w: no metadata "+
				"record", ErrCorrupt)
		}
		return nil, Record{}, false, nil
	}

	data, err := os.ReadFile(f.artifactOf(rec))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Record{}, false, fmt.Errorf("get: %w: artifact %v is "+
			"missing", ErrCorrupt, filepath.Base(rec.Location))
	} else if err != nil {
		return nil, Record{}, false, fmt.Errorf("get: %v", err)
	}
	return data, rec, true, nil
}

// artifacts returns the paths of all artifact files of a name
func (f *FileStore) artifacts(name string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if n, ok := parseArtifact(entry.Name()); ok && n == name {
			paths = append(paths, filepath.Join(f.dir, entry.Name()))
		}
	}
	return paths, nil
}

func (f *FileStore) readRecord(path string) (Record, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	} else if err != nil {
		return Record{}, false, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("%w: could not decode %v: %v",
			ErrCorrupt, path, err)
	}
	return rec, true, nil
}

// Resolve implements the Store interface. Locations are paths to
// artifacts inside the store's directory; anything that does not end
// in the artifact extension is a name. A location that does not exist
// yields an error wrapping fs.ErrNotExist.
func (f *FileStore) Resolve(nameOrLocation string) (string, error) {
	if !strings.HasSuffix(nameOrLocation, artifactExt) {
		return nameOrLocation, ValidateName(nameOrLocation)
	}

	_, err := os.Stat(nameOrLocation)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("resolve: %v: %w", nameOrLocation,
			fs.ErrNotExist)
	} else if err != nil {
		return "", fmt.Errorf("resolve: %v", err)
	}

	dir, err := filepath.Abs(filepath.Dir(nameOrLocation))
	if err != nil {
		return "", fmt.Errorf("resolve: %v", err)
	}
	storeDir, err := filepath.Abs(f.dir)
	if err != nil {
		return "", fmt.Errorf("resolve: %v", err)
	}
	if dir != storeDir {
		return "", fmt.Errorf("resolve: %w: %v is outside of %v",
			ErrInvalidName, nameOrLocation, f.dir)
	}

	name, ok := parseArtifact(filepath.Base(nameOrLocation))
	if !ok {
		return "", fmt.Errorf("resolve: %w: %v is not a checkpoint artifact",
			ErrInvalidName, nameOrLocation)
	}
	return name, nil
}

// Records implements the Store interface. Unreadable records are
// skipped.
func (f *FileStore) Records() ([]Record, error) {
	paths, err := filepath.Glob(filepath.Join(f.dir, "*"+sidecarSuffix))
	if err != nil {
		return nil, fmt.Errorf("records: %v", err)
	}

	records := make([]Record, 0, len(paths))
	for _, path := range paths {
		rec, ok, err := f.readRecord(path)
		if err != nil || !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Delete implements the Store interface. Every artifact of the name is
// removed, including any left behind by an interrupted save.
func (f *FileStore) Delete(name string) (bool, error) {
	paths, err := f.artifacts(name)
	if err != nil {
		return false, fmt.Errorf("delete: %v", err)
	}
	paths = append(paths, f.sidecarPath(name))

	deleted := false
	for _, path := range paths {
		err := os.Remove(path)
		if err == nil {
			deleted = true
		} else if !errors.Is(err, fs.ErrNotExist) {
			return deleted, fmt.Errorf("delete: %v", err)
		}
	}
	return deleted, nil
}

// Close implements the Store interface
func (f *FileStore) Close() error {
	return nil
}
