// Package volume is the single entry point for reading and writing labeled
// 3D arrays. It dispatches on the filename suffix between the dense NRRD
// encoding (which carries a metadata header) and raw .npy array dumps
// (which do not), and folds decoder failures into a small error taxonomy
// shared by the whole pipeline.
package volume

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voxelstats/internal/models"
	"voxelstats/pkg/npy"
	"voxelstats/pkg/nrrd"
)

var (
	// ErrNotFound marks a missing folder or file.
	ErrNotFound = errors.New("not found")

	// ErrNoMatchingFiles marks a folder/suffix filter that selected nothing.
	ErrNoMatchingFiles = errors.New("no matching files")

	// ErrCorruptData marks a file the decoder rejected.
	ErrCorruptData = errors.New("corrupt volume data")

	// ErrWrite marks an I/O failure while persisting an output volume.
	ErrWrite = errors.New("write failed")
)

// Read loads the volume at path. NRRD volumes carry their header through;
// raw .npy dumps come back with a nil header.
func Read(path string) (*models.Volume, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	if strings.HasSuffix(strings.ToLower(path), ".npy") {
		data, shape, err := npy.Read(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptData, path, err)
		}
		if len(shape) != 3 {
			return nil, fmt.Errorf("%w: %s: expected a 3D array, got %d axes", ErrCorruptData, path, len(shape))
		}
		return &models.Volume{
			Data:  data,
			Shape: [3]int{shape[0], shape[1], shape[2]},
		}, nil
	}

	vol, err := nrrd.Read(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptData, path, err)
	}
	return vol, nil
}

// Write persists the volume at path with the given on-disk sample type.
// A .npy destination gets a raw dump; anything else gets the dense NRRD
// encoding, substituting a minimal synthetic header when the volume has
// none.
func Write(path string, vol *models.Volume, sampleType string) error {
	if strings.HasSuffix(strings.ToLower(path), ".npy") {
		descr, err := npyDescr(sampleType)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
		}
		shape := []int{vol.Shape[0], vol.Shape[1], vol.Shape[2]}
		if err := npy.Write(path, vol.Data, shape, descr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
		}
		return nil
	}

	if err := nrrd.Write(path, vol, sampleType); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	return nil
}

func npyDescr(sampleType string) (string, error) {
	switch sampleType {
	case "uint8", "uchar":
		return "|u1", nil
	case "int16", "short":
		return "<i2", nil
	case "int32", "int":
		return "<i4", nil
	case "float", "float32":
		return "<f4", nil
	case "double", "float64":
		return "<f8", nil
	default:
		return "", fmt.Errorf("unsupported sample type %q", sampleType)
	}
}

// ListGroup returns the sorted paths of every file in folder whose name
// ends with suffix. A missing folder fails with ErrNotFound, an empty
// selection with ErrNoMatchingFiles.
func ListGroup(folder, suffix string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: folder %s", ErrNotFound, folder)
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			paths = append(paths, filepath.Join(folder, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no files with suffix %q in %s", ErrNoMatchingFiles, suffix, folder)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadHeader loads only the header of the first file of a group, used to
// stamp output volumes with the input grid metadata. Raw array dumps have
// no header, so nil is a valid result.
func ReadHeader(path string) (*models.Header, error) {
	vol, err := Read(path)
	if err != nil {
		return nil, err
	}
	return vol.Header, nil
}
