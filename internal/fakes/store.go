// Package fakes holds in-memory implementations of the storage, warehouse and
// transfer capabilities for tests.
package fakes

import (
	"context"
	"strconv"
	"time"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/storage"
	"github.com/pkg/errors"
)

type objectVersion struct {
	version domain.ObjectVersion
	data    []byte
}

// Store is a versioned object store. Writes append a version stamped by Now.
type Store struct {
	Now func() time.Time

	ListErr  map[string]error
	ReadErr  map[string]error
	WriteErr map[string]error

	Calls  int
	Writes []storage.URI

	objects map[string][]objectVersion
	nextID  int
}

func NewStore() *Store {
	return &Store{
		Now:      time.Now,
		ListErr:  map[string]error{},
		ReadErr:  map[string]error{},
		WriteErr: map[string]error{},
		objects:  map[string][]objectVersion{},
	}
}

// Put adds a version created at the given time.
func (s *Store) Put(uri string, created time.Time, data []byte) string {
	s.nextID++
	id := strconv.Itoa(s.nextID)
	s.objects[uri] = append(s.objects[uri], objectVersion{
		version: domain.ObjectVersion{ID: id, Created: created, Updated: created},
		data:    append([]byte(nil), data...),
	})
	return id
}

// Latest returns the data of the newest version.
func (s *Store) Latest(uri string) []byte {
	versions := s.objects[uri]
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1].data
}

func (s *Store) ListVersions(_ context.Context, uri storage.URI) ([]domain.ObjectVersion, error) {
	s.Calls++
	if err := s.ListErr[uri.String()]; err != nil {
		return nil, err
	}
	var out []domain.ObjectVersion
	for _, v := range s.objects[uri.String()] {
		out = append(out, v.version)
	}
	return out, nil
}

func (s *Store) ReadVersion(_ context.Context, uri storage.URI, id string) ([]byte, error) {
	s.Calls++
	if err := s.ReadErr[uri.String()]; err != nil {
		return nil, err
	}
	versions := s.objects[uri.String()]
	if len(versions) == 0 {
		return nil, errors.Errorf("object %s not found", uri)
	}
	if id == "" {
		return append([]byte(nil), versions[len(versions)-1].data...), nil
	}
	for _, v := range versions {
		if v.version.ID == id {
			return append([]byte(nil), v.data...), nil
		}
	}
	return nil, errors.Errorf("version %s of %s not found", id, uri)
}

func (s *Store) Write(_ context.Context, uri storage.URI, data []byte, _ string) error {
	s.Calls++
	if err := s.WriteErr[uri.String()]; err != nil {
		return err
	}
	s.Writes = append(s.Writes, uri)
	s.Put(uri.String(), s.Now(), data)
	return nil
}
