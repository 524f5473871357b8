package inference

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
)

// LFSPointerPrefix starts every Git LFS pointer file
const LFSPointerPrefix = "version https://git-lfs.github.com/spec/v1"

var (
	ErrWeightsMissing     = errors.New("weight file not found")
	ErrLFSPointer         = errors.New("weight file is a Git LFS pointer")
	ErrClassCountMismatch = errors.New("model output width does not match class list")
)

// IsLFSPointer reports whether the file at path is a Git LFS pointer rather than real data
func IsLFSPointer(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	firstLine, err := bufio.NewReader(file).ReadSlice('\n')
	if err != nil && len(firstLine) == 0 {
		// Empty file
		return false, nil
	}
	return HasLFSPointerPrefix(firstLine), nil
}

// HasLFSPointerPrefix checks the leading bytes of a payload
func HasLFSPointerPrefix(data []byte) bool {
	return bytes.HasPrefix(data, []byte(LFSPointerPrefix))
}

// checkWeightFile rejects absent files and LFS placeholders
func checkWeightFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no path configured", ErrWeightsMissing)
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrWeightsMissing, path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrWeightsMissing, path)
	}

	pointer, err := IsLFSPointer(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if pointer {
		return fmt.Errorf("%w: %s", ErrLFSPointer, path)
	}
	return nil
}
