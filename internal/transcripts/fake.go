package transcripts

import (
	"context"
	"sort"
)

// FakeStore serves canned documents for tests and local runs.
type FakeStore struct {
	Docs map[string][]Document
}

// NewFakeStore builds a fake store from a collection → documents map.
func NewFakeStore(docs map[string][]Document) *FakeStore {
	return &FakeStore{Docs: docs}
}

func (f *FakeStore) Collections(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(f.Docs))
	for name := range f.Docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeStore) Documents(_ context.Context, collection string) ([]Document, error) {
	return f.Docs[collection], nil
}

var _ Store = (*FakeStore)(nil)
