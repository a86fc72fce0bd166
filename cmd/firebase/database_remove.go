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
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"firebase.google.com/tools/db"
)

type databaseRemoveOptions struct {
	instance    string
	concurrency int
	retries     int
	force       bool
}

func (c *cli) newDatabaseRemoveCmd() *cobra.Command {
	opts := &databaseRemoveOptions{}
	defaults := db.DefaultRemoveConfig()
	cmd := &cobra.Command{
		Use:   "database:remove <path>",
		Short: "Remove data from the Realtime Database at the specified path",
		Long: `Remove all data at the specified path of a Realtime Database instance.

Large subtrees are deleted in chunks: nodes too large for a single request are listed and their
children removed first, so that no single request exceeds the database limits.`,
		Example: "  firebase database:remove /users/alice -P my-project -f",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDatabaseRemove(cmd.Context(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.instance, "instance", "", "URL of the database to use (defaults to the project's default database)")
	f.IntVar(&opts.concurrency, "concurrency", defaults.Concurrency, "number of delete requests to run at once")
	f.IntVar(&opts.retries, "retries", defaults.Retries, "number of times a failed request is retried")
	f.BoolVarP(&opts.force, "force", "f", false, "remove without asking for confirmation")
	return cmd
}

func (c *cli) runDatabaseRemove(ctx context.Context, p string, opts *databaseRemoveOptions) error {
	if !strings.HasPrefix(p, "/") {
		return usageErrorf("path must begin with /")
	}
	if opts.concurrency < 1 {
		return usageErrorf("concurrency must be at least 1")
	}

	app, err := c.newApp(ctx)
	if err != nil {
		return err
	}
	client, err := app.Database(ctx, opts.instance)
	if err != nil {
		return err
	}

	ok, err := c.confirm(opts.force, fmt.Sprintf("You are about to remove all data at %s%s. Are you sure?", client.URL(), p))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}

	remover, err := db.NewRemover(p, client.Remote(), &db.RemoveConfig{
		Concurrency: opts.concurrency,
		Retries:     opts.retries,
		Logger:      c.log,
	})
	if err != nil {
		return err
	}
	if err := remover.Execute(ctx); err != nil {
		return fmt.Errorf("failed to remove %s: %w", remover.Path(), err)
	}

	stats := remover.Stats()
	c.log.WithFields(logrus.Fields{
		"path":    remover.Path(),
		"tasks":   stats.Total,
		"retried": stats.Retried,
		"avg":     stats.Avg.String(),
		"max":     stats.Max.String(),
	}).Debug("database remove finished")
	c.success("Data removed successfully")
	fmt.Fprintf(c.out, "   %s delete tasks, %s retries in %s\n",
		humanize.Comma(int64(stats.Success)), humanize.Comma(int64(stats.Retried)),
		stats.Elapsed.Round(time.Millisecond))
	return nil
}
