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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"firebase.google.com/tools/firestore"
)

type firestoreDeleteOptions struct {
	recursive      bool
	shallow        bool
	allCollections bool
	concurrency    int
	retries        int
	force          bool
}

func (c *cli) newFirestoreDeleteCmd() *cobra.Command {
	opts := &firestoreDeleteOptions{}
	defaults := firestore.DefaultDeleteConfig()
	cmd := &cobra.Command{
		Use:   "firestore:delete [path]",
		Short: "Delete data from Cloud Firestore",
		Long: `Delete the document or collection at the specified path.

Deleting a document does not delete its subcollections unless --recursive is set. Deleting a
collection requires either --recursive, or --shallow to delete only the documents directly in
it. Use --all-collections to empty the whole database.`,
		Example: "  firebase firestore:delete users/alice --recursive -f",
		Args:    usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p string
			if len(args) > 0 {
				p = args[0]
			}
			return c.runFirestoreDelete(cmd.Context(), p, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.recursive, "recursive", "r", false, "also delete the subcollections of deleted documents")
	f.BoolVar(&opts.shallow, "shallow", false, "delete only the documents at the path, not their subcollections")
	f.BoolVar(&opts.allCollections, "all-collections", false, "delete all collections of the database")
	f.IntVar(&opts.concurrency, "concurrency", defaults.Concurrency, "number of documents to process at once")
	f.IntVar(&opts.retries, "retries", defaults.Retries, "number of times a failed request is retried")
	f.BoolVarP(&opts.force, "force", "f", false, "delete without asking for confirmation")
	return cmd
}

func (c *cli) runFirestoreDelete(ctx context.Context, p string, opts *firestoreDeleteOptions) error {
	switch {
	case opts.allCollections && p != "":
		return usageErrorf("cannot specify both a path and --all-collections")
	case !opts.allCollections && p == "":
		return usageErrorf("must specify a path or --all-collections")
	case !opts.allCollections && opts.recursive && opts.shallow:
		return usageErrorf("cannot pass recursive and shallow options together")
	case !opts.allCollections && firestore.IsCollection(p) && !opts.recursive && !opts.shallow:
		return usageErrorf("must pass recursive or shallow option when deleting a collection")
	}
	if opts.concurrency < 1 {
		return usageErrorf("concurrency must be at least 1")
	}

	app, err := c.newApp(ctx)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("You are about to delete the document at %s", p)
	if opts.allCollections {
		prompt = fmt.Sprintf("You are about to delete your entire database in project %s", app.ProjectID())
	} else if firestore.IsCollection(p) {
		prompt = fmt.Sprintf("You are about to delete all documents in the collection at %s", p)
	}
	if opts.recursive || opts.allCollections {
		prompt += " and all of their subcollections"
	}
	ok, err := c.confirm(opts.force, prompt+". Are you sure?")
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	d, err := firestore.NewDeleter(firestore.NewStore(client), &firestore.DeleteConfig{
		Recursive:   opts.recursive || opts.allCollections,
		Shallow:     opts.shallow && !opts.allCollections,
		Concurrency: opts.concurrency,
		Retries:     opts.retries,
		Logger:      c.log,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	err = d.Delete(ctx, p)
	deleted := humanize.Comma(int64(d.Deleted()))
	if err != nil {
		c.warn("Deleted %s document(s) before failing", deleted)
		return err
	}
	c.success("Deleted %s document(s) in %s", deleted, time.Since(start).Round(time.Millisecond))
	return nil
}
