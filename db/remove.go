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

package db

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/sirupsen/logrus"

	"firebase.google.com/tools/errorutils"
	"firebase.google.com/tools/internal"
	"firebase.google.com/tools/internal/logging"
	"firebase.google.com/tools/queue"
)

// RemoveConfig controls how a Remover schedules its requests.
type RemoveConfig struct {
	Concurrency int
	Retries     int
	Logger      logrus.FieldLogger
}

// DefaultRemoveConfig returns the configuration used by the database:remove command. Large
// subtrees are deleted with up to 200 requests in flight.
func DefaultRemoveConfig() *RemoveConfig {
	return &RemoveConfig{
		Concurrency: 200,
		Retries:     5,
	}
}

// Remover deletes a database subtree of arbitrary size.
//
// Nodes that are small enough are deleted with a single request. Larger nodes are expanded
// into their children, which are deleted first; the parent is deleted once its last child is
// gone. The root of the subtree is always the last node deleted.
type Remover struct {
	path   string
	remote Remote
	conf   *RemoveConfig
	log    logrus.FieldLogger

	mu          sync.Mutex
	queue       *queue.Queue[string]
	waitingPath map[string]int
}

// NewRemover creates a Remover for the subtree rooted at p. A nil config is equivalent to
// DefaultRemoveConfig().
func NewRemover(p string, remote Remote, conf *RemoveConfig) (*Remover, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote must not be nil")
	}
	if conf == nil {
		conf = DefaultRemoveConfig()
	}
	return &Remover{
		path:        cleanPath(p),
		remote:      remote,
		conf:        conf,
		log:         logging.OrDiscard(conf.Logger),
		waitingPath: make(map[string]int),
	}, nil
}

// Path returns the root of the subtree deleted by this Remover.
func (r *Remover) Path() string {
	return r.path
}

// Execute deletes the subtree, and blocks until it is fully removed or an unrecoverable
// error occurs. The context bounds every request made on behalf of the Remover. A Remover
// must only be executed once.
func (r *Remover) Execute(ctx context.Context) error {
	q, err := queue.New(ctx, &queue.Config[string]{
		Name:        "database remove",
		Concurrency: r.conf.Concurrency,
		Retries:     r.conf.Retries,
		Backoff:     queue.DefaultBackoff,
		Handler:     r.chunkedDelete,
		ShouldRetry: shouldRetry,
		Logger:      r.conf.Logger,
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.queue != nil {
		r.mu.Unlock()
		return fmt.Errorf("remover for %q has already been executed", r.path)
	}
	r.queue = q
	r.mu.Unlock()

	r.log.WithField("path", r.path).Debug("removing path")
	if err := q.Add(r.path); err != nil {
		return err
	}
	return q.Wait(ctx)
}

// Stats returns the statistics of the underlying task queue. It returns zero Stats before
// Execute is called.
func (r *Remover) Stats() queue.Stats {
	r.mu.Lock()
	q := r.queue
	r.mu.Unlock()
	if q == nil {
		return queue.Stats{}
	}
	return q.Stats()
}

func (r *Remover) chunkedDelete(ctx context.Context, p string) error {
	size, err := r.remote.PrefetchTest(ctx, p)
	if err != nil {
		return err
	}

	var deleted bool
	switch size {
	case Empty:
		deleted = true
	case Small:
		if deleted, err = r.remote.DeletePath(ctx, p); err != nil {
			return err
		}
	case Large:
		children, err := r.remote.ListPath(ctx, p)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			return &errorutils.UnexpectedError{
				Msg: fmt.Sprintf("path is too large but has no children: %s", p),
			}
		}
		r.log.WithFields(logrus.Fields{
			"path":     p,
			"children": len(children),
		}).Debug("expanding large path")

		r.mu.Lock()
		r.waitingPath[p] = len(children)
		r.mu.Unlock()
		for _, c := range children {
			if err := r.queue.Add(path.Join(p, c)); err != nil {
				return err
			}
		}
		return nil
	default:
		return &errorutils.UnexpectedError{Msg: fmt.Sprintf("unknown node size: %v", size)}
	}

	if !deleted {
		return fmt.Errorf("failed to delete path: %s", p)
	}
	return r.onDeleted(p)
}

// onDeleted settles the bookkeeping for a deleted node. The parent of a node is requeued
// once all of its children are gone.
func (r *Remover) onDeleted(p string) error {
	if p == r.path {
		r.queue.Close()
		return nil
	}

	parent := path.Dir(p)
	r.mu.Lock()
	count, ok := r.waitingPath[parent]
	if !ok || count == 0 {
		r.mu.Unlock()
		return &errorutils.UnexpectedError{
			Msg: fmt.Sprintf("parent path reference is zero for path=%s", p),
		}
	}
	count--
	if count > 0 {
		r.waitingPath[parent] = count
		r.mu.Unlock()
		return nil
	}
	delete(r.waitingPath, parent)
	r.mu.Unlock()
	return r.queue.Add(parent)
}

func shouldRetry(err error) bool {
	var ue *errorutils.UnexpectedError
	if errors.As(err, &ue) {
		return false
	}
	return !internal.IsClientError(err)
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}
