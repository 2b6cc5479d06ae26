package journal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
)

// File appends serialized entries to a file for durability and replays them
// on recovery. Entries are newline-delimited.
type File struct {
	mu sync.Mutex
	f  *os.File
}

// Open constructs a File targeting the given path, creating it if needed.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

// Append writes one entry and syncs it to disk.
func (j *File) Append(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := fmt.Fprintf(j.f, "%s\n", data); err != nil {
		return err
	}
	return j.f.Sync()
}

// Replay invokes fn for each entry in write order.
func (j *File) Replay(fn func(data []byte) error) (err error) {
	file, err := os.Open(j.f.Name())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Close releases the underlying file.
func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
