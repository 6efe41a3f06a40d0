// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"crawshaw.dev/jsonfile"
)

// JSONFile is a file-backed implementation of the [Store] interface. Every
// change rewrites the file atomically.
type JSONFile struct {
	f   *jsonfile.JSONFile[jsonStore]
	ttl time.Duration
}

type jsonStore struct {
	Data map[string]entry `json:"data"`
}

type entry struct {
	Value        []byte    `json:"value"`
	LastAccessed time.Time `json:"last_accessed"`
}

// NewJSONFile creates a new [JSONFile] backed by the file at path with the
// given TTL. The file is created if it does not exist.
func NewJSONFile(ctx context.Context, path string, ttl time.Duration) (*JSONFile, error) {
	f, err := jsonfile.Load[jsonStore](path)
	if errors.Is(err, fs.ErrNotExist) {
		f, err = jsonfile.New[jsonStore](path)
	}
	if err != nil {
		return nil, err
	}

	s := &JSONFile{f: f, ttl: ttl}
	s.cleanup()
	go runCleanup(ctx, ttl, s.cleanup)

	return s, nil
}

func (s *JSONFile) cleanup() {
	if s.ttl <= 0 {
		return
	}
	s.f.Write(func(js *jsonStore) error {
		for key, e := range js.Data {
			if expired(e.LastAccessed, s.ttl) {
				delete(js.Data, key)
			}
		}
		return nil
	})
}

// Get retrieves a value for a given key.
func (s *JSONFile) Get(_ context.Context, key string) ([]byte, error) {
	var (
		val   []byte
		stale bool
	)
	s.f.Read(func(js *jsonStore) {
		e, ok := js.Data[key]
		if !ok {
			return
		}
		if expired(e.LastAccessed, s.ttl) {
			stale = true
			return
		}
		val = append([]byte(nil), e.Value...)
	})
	if stale {
		return nil, s.Delete(context.Background(), key)
	}
	if val == nil || s.ttl <= 0 {
		return val, nil
	}

	// Entries that can expire need their access time written out.
	err := s.f.Write(func(js *jsonStore) error {
		if e, ok := js.Data[key]; ok {
			e.LastAccessed = time.Now()
			js.Data[key] = e
		}
		return nil
	})
	return val, err
}

// Set stores a value for a given key.
func (s *JSONFile) Set(_ context.Context, key string, value []byte) error {
	return s.f.Write(func(js *jsonStore) error {
		if js.Data == nil {
			js.Data = make(map[string]entry)
		}
		js.Data[key] = entry{
			Value:        append([]byte(nil), value...),
			LastAccessed: time.Now(),
		}
		return nil
	})
}

// Delete removes a key.
func (s *JSONFile) Delete(_ context.Context, key string) error {
	var found bool
	s.f.Read(func(js *jsonStore) { _, found = js.Data[key] })
	if !found {
		return nil
	}
	return s.f.Write(func(js *jsonStore) error {
		delete(js.Data, key)
		return nil
	})
}

// Close is a no-op: every change is already on disk.
func (s *JSONFile) Close() error { return nil }
