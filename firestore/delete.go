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

// Package firestore deletes Cloud Firestore documents and collections, optionally including
// all of their nested subcollections.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"firebase.google.com/tools/errorutils"
	"firebase.google.com/tools/internal/logging"
	"firebase.google.com/tools/queue"
)

// DeleteConfig controls how a Deleter traverses and deletes documents.
type DeleteConfig struct {
	// Recursive also deletes the subcollections of every deleted document.
	Recursive   bool
	// Shallow deletes only the documents directly in a collection. A collection path requires
	// either Recursive or Shallow.
	Shallow     bool
	Concurrency int
	Retries     int
	Logger      logrus.FieldLogger
}

// DefaultDeleteConfig returns the configuration used by the firestore:delete command.
func DefaultDeleteConfig() *DeleteConfig {
	return &DeleteConfig{
		Concurrency: 16,
		Retries:     3,
	}
}

// Deleter removes documents from a DocumentStore.
type Deleter struct {
	store   DocumentStore
	conf    *DeleteConfig
	log     logrus.FieldLogger
	deleted int64
}

// NewDeleter creates a Deleter. A nil config is equivalent to DefaultDeleteConfig().
func NewDeleter(store DocumentStore, conf *DeleteConfig) (*Deleter, error) {
	if store == nil {
		return nil, errors.New("document store must not be nil")
	}
	if conf == nil {
		conf = DefaultDeleteConfig()
	}
	return &Deleter{
		store: store,
		conf:  conf,
		log:   logging.OrDiscard(conf.Logger),
	}, nil
}

// Deleted returns the number of documents deleted so far.
func (d *Deleter) Deleted() int {
	return int(atomic.LoadInt64(&d.deleted))
}

// Delete removes the document or collection at p.
//
// A document path deletes that document, and its subcollections when the Deleter is recursive.
// A collection path deletes all the documents in the collection, and requires either a
// recursive or a shallow Deleter. An empty path, or "/", deletes every collection of the
// database, and requires a recursive Deleter.
func (d *Deleter) Delete(ctx context.Context, p string) error {
	p = strings.Trim(p, "/")
	if d.conf.Recursive && d.conf.Shallow {
		return &errorutils.UsageError{Err: errors.New("cannot pass recursive and shallow options together")}
	}
	if p == "" && !d.conf.Recursive {
		return &errorutils.UsageError{Err: errors.New("deleting the entire database requires a recursive delete")}
	}
	if IsCollection(p) && !d.conf.Recursive && !d.conf.Shallow {
		return &errorutils.UsageError{Err: errors.New("must pass recursive or shallow option when deleting a collection")}
	}
	for _, seg := range strings.Split(p, "/") {
		if p != "" && seg == "" {
			return &errorutils.UsageError{Err: fmt.Errorf("invalid path: %q", p)}
		}
	}

	job := &deleteJob{Deleter: d, expanded: make(map[string]bool)}
	q, err := queue.New(ctx, &queue.Config[string]{
		Name:        "firestore delete",
		Concurrency: d.conf.Concurrency,
		Retries:     d.conf.Retries,
		Backoff:     queue.DefaultBackoff,
		Handler:     job.handle,
		ShouldRetry: shouldRetry,
		Logger:      d.conf.Logger,
	})
	if err != nil {
		return err
	}
	job.queue = q
	if err := job.add(p); err != nil {
		return err
	}
	return q.Wait(ctx)
}

// deleteJob tracks a single Delete call. Each queued path is either a collection, or a
// document. The queue closes once no task is outstanding.
type deleteJob struct {
	*Deleter
	queue *queue.Queue[string]

	mu          sync.Mutex
	outstanding int
	// paths whose children are already queued; a retried task must not queue them again
	expanded map[string]bool
}

func (j *deleteJob) add(p string) error {
	j.mu.Lock()
	j.outstanding++
	j.mu.Unlock()
	return j.queue.Add(p)
}

func (j *deleteJob) done() {
	j.mu.Lock()
	j.outstanding--
	idle := j.outstanding == 0
	j.mu.Unlock()
	if idle {
		j.queue.Close()
	}
}

func (j *deleteJob) handle(ctx context.Context, p string) error {
	var err error
	switch {
	case p == "":
		err = j.expandOnce(ctx, p, j.expandDocument)
	case IsCollection(p):
		err = j.expandOnce(ctx, p, j.expandCollection)
	default:
		err = j.deleteDocument(ctx, p)
	}
	if err != nil {
		return err
	}
	j.done()
	return nil
}

func (j *deleteJob) expandOnce(ctx context.Context, p string, expand func(context.Context, string) error) error {
	j.mu.Lock()
	seen := j.expanded[p]
	j.mu.Unlock()
	if seen {
		return nil
	}
	if err := expand(ctx, p); err != nil {
		return err
	}
	j.mu.Lock()
	j.expanded[p] = true
	j.mu.Unlock()
	return nil
}

func (j *deleteJob) expandCollection(ctx context.Context, p string) error {
	docs, err := j.store.ListDocuments(ctx, p)
	if err != nil {
		return err
	}
	j.log.WithFields(logrus.Fields{
		"collection": p,
		"documents":  len(docs),
	}).Debug("listed collection")
	for _, doc := range docs {
		if err := j.add(doc); err != nil {
			return err
		}
	}
	return nil
}

func (j *deleteJob) expandDocument(ctx context.Context, p string) error {
	cols, err := j.store.ListCollections(ctx, p)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if err := j.add(col); err != nil {
			return err
		}
	}
	return nil
}

func (j *deleteJob) deleteDocument(ctx context.Context, p string) error {
	if j.conf.Recursive {
		if err := j.expandOnce(ctx, p, j.expandDocument); err != nil {
			return err
		}
	}
	if err := j.store.DeleteDocument(ctx, p); err != nil {
		return err
	}
	atomic.AddInt64(&j.deleted, 1)
	j.log.WithField("document", p).Debug("deleted document")
	return nil
}

// IsCollection reports whether p names a collection rather than a document. Leading and
// trailing slashes are ignored.
func IsCollection(p string) bool {
	return strings.Count(strings.Trim(p, "/"), "/")%2 == 0
}

var fatalCodes = map[codes.Code]bool{
	codes.InvalidArgument:    true,
	codes.NotFound:           true,
	codes.PermissionDenied:   true,
	codes.Unauthenticated:    true,
	codes.FailedPrecondition: true,
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !fatalCodes[status.Code(err)]
}
