//go:build !unix

package storage

// Without flock only the in-process mutex serializes writers.
type fileLock struct{}

func lockFile(string) (*fileLock, error) { return &fileLock{}, nil }

func (l *fileLock) Unlock() error { return nil }
