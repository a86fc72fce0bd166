// Copyright 2026 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package firestore

import (
	"context"
	"fmt"

	cloudfirestore "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// DocumentStore is the set of Firestore operations needed to delete documents.
//
// Paths are relative to the database root, such as "users" or "users/alice/posts/p1". An
// empty document path denotes the database root.
type DocumentStore interface {
	// ListDocuments returns the paths of all documents in a collection, including missing
	// documents that only hold subcollections.
	ListDocuments(ctx context.Context, collection string) ([]string, error)

	// ListCollections returns the paths of the subcollections of a document.
	ListCollections(ctx context.Context, doc string) ([]string, error)

	// DeleteDocument deletes a single document. Its subcollections are left untouched.
	DeleteDocument(ctx context.Context, doc string) error
}

// Store implements DocumentStore using a Cloud Firestore client.
type Store struct {
	client *cloudfirestore.Client
}

// NewStore creates a DocumentStore backed by client.
func NewStore(client *cloudfirestore.Client) *Store {
	return &Store{client: client}
}

// ListDocuments lists the documents of a collection.
func (s *Store) ListDocuments(ctx context.Context, collection string) ([]string, error) {
	col := s.client.Collection(collection)
	if col == nil {
		return nil, fmt.Errorf("invalid collection path: %q", collection)
	}

	var docs []string
	it := col.DocumentRefs(ctx)
	for {
		ref, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, joinPath(collection, ref.ID))
	}
	return docs, nil
}

// ListCollections lists the subcollections of a document, or the root collections when doc
// is empty.
func (s *Store) ListCollections(ctx context.Context, doc string) ([]string, error) {
	var it *cloudfirestore.CollectionIterator
	if doc == "" {
		it = s.client.Collections(ctx)
	} else {
		ref := s.client.Doc(doc)
		if ref == nil {
			return nil, fmt.Errorf("invalid document path: %q", doc)
		}
		it = ref.Collections(ctx)
	}

	var cols []string
	for {
		col, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		cols = append(cols, joinPath(doc, col.ID))
	}
	return cols, nil
}

// DeleteDocument deletes the document at doc.
func (s *Store) DeleteDocument(ctx context.Context, doc string) error {
	ref := s.client.Doc(doc)
	if ref == nil {
		return fmt.Errorf("invalid document path: %q", doc)
	}
	_, err := ref.Delete(ctx)
	return err
}

func joinPath(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + "/" + id
}
