package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"carevox/internal/health"
)

// ProfileFile keeps the profile as an indented JSON document. A default
// profile is written on first use.
type ProfileFile struct {
	path   string
	mu     sync.Mutex
	cur    *health.Profile
	dirty  bool
	logger *slog.Logger
}

func NewProfileFile(path string, logger *slog.Logger) (*ProfileFile, error) {
	if path == "" {
		return nil, errors.New("empty profile path")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &ProfileFile{path: path, logger: logger}

	lock, err := lockFile(path + ".lock")
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	p, err := s.read()
	if errors.Is(err, os.ErrNotExist) {
		p = health.DefaultProfile()
		if err := s.write(p); err != nil {
			return nil, fmt.Errorf("create default profile: %w", err)
		}
		logger.Info("Created default user profile", "path", path)
	} else if err != nil {
		return nil, err
	}

	s.cur = p
	return s, nil
}

func (s *ProfileFile) Profile(_ context.Context) (*health.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Clone(), nil
}

func (s *ProfileFile) UpdateProfile(ctx context.Context, fn func(p *health.Profile) error) (*health.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := lockFile(s.path + ".lock")
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	// Another front end may have rewritten the file since we loaded it.
	// Pending local changes win over the disk copy.
	if !s.dirty {
		if p, err := s.read(); err == nil {
			s.cur = p
		} else {
			s.logger.Warn("Profile reload failed, using cached copy", "err", err)
		}
	}

	next := s.cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	s.cur = next
	if err := s.write(next); err != nil {
		s.dirty = true
		s.logger.Error("Failed to save profile", "path", s.path, "err", err)
		return next.Clone(), fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}
	s.dirty = false

	return next.Clone(), nil
}

func (s *ProfileFile) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A clean store has nothing the file does not already hold.
	if !s.dirty {
		return nil
	}

	lock, err := lockFile(s.path + ".lock")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := s.write(s.cur); err != nil {
		s.dirty = true
		return fmt.Errorf("save profile: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *ProfileFile) read() (*health.Profile, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var p health.Profile
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty profile file %s", s.path)
		}
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

func (s *ProfileFile) write(p *health.Profile) error {
	return atomicWrite(s.path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "    ")
		return enc.Encode(p)
	})
}

var _ ProfileStore = (*ProfileFile)(nil)
