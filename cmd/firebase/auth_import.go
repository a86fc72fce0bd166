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
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	firebase "firebase.google.com/tools"
	"firebase.google.com/tools/auth"
	"firebase.google.com/tools/auth/hash"
)

type authImportOptions struct {
	format    string
	hash      hash.Options
	batchSize int
	rate      float64
}

func (c *cli) newAuthImportCmd() *cobra.Command {
	opts := &authImportOptions{}
	cmd := &cobra.Command{
		Use:   "auth:import <file>",
		Short: "Import users into the project from a JSON or CSV file",
		Long: `Import user accounts from a local file or a gs://bucket/object URL.

Accounts are uploaded in batches, one batch at a time. Password hashes require the hash
algorithm and its parameters to be given with the --hash-* flags.`,
		Example: "  firebase auth:import users.json --hash-algo=HMAC_SHA256 --hash-key=c2VjcmV0",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAuthImport(cmd.Context(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", "", "format of the account file: json or csv (defaults to the file extension)")
	f.StringVar(&opts.hash.Algorithm, "hash-algo", "", "hashing algorithm used to generate the password hashes")
	f.StringVar(&opts.hash.Key, "hash-key", "", "base64 encoded key of the hash algorithm")
	f.StringVar(&opts.hash.SaltSeparator, "salt-separator", "", "base64 encoded salt separator of the hash algorithm")
	f.IntVar(&opts.hash.Rounds, "rounds", 0, "number of rounds of the hash algorithm")
	f.IntVar(&opts.hash.MemoryCost, "mem-cost", 0, "memory cost of the hash algorithm")
	f.IntVar(&opts.hash.Parallelization, "parallelization", 0, "parallelization of the hash algorithm")
	f.IntVar(&opts.hash.BlockSize, "block-size", 0, "block size (normally 8) of the hash algorithm")
	f.IntVar(&opts.hash.DerivedKeyLen, "dk-len", 0, "derived key length of the hash algorithm")
	f.StringVar(&opts.hash.InputOrder, "hash-input-order", "", "order of password and salt: SALT_FIRST or PASSWORD_FIRST")
	f.IntVar(&opts.batchSize, "batch-size", auth.MaxImportUsers, "number of accounts uploaded per request")
	f.Float64Var(&opts.rate, "rate", 0, "maximum number of upload requests per second, 0 for no limit")
	return cmd
}

func (c *cli) runAuthImport(ctx context.Context, location string, opts *authImportOptions) error {
	format, err := importFormat(opts.format, location)
	if err != nil {
		return err
	}
	if opts.batchSize < 1 || opts.batchSize > auth.MaxImportUsers {
		return usageErrorf("batch size must be between 1 and %d", auth.MaxImportUsers)
	}
	conf, err := hash.ValidateOptions(opts.hash)
	if err != nil {
		return usageErrorf("%v", err)
	}
	if len(conf) == 0 {
		c.warn("No hash algorithm specified. Accounts with password hashes cannot be imported.")
	}

	app, err := c.newApp(ctx)
	if err != nil {
		return err
	}
	users, err := c.readUsers(ctx, app, location, format)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		c.warn("No accounts found in %s", location)
		return nil
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return err
	}
	client = client.WithRateLimit(opts.rate)

	batches := auth.Batches(users, opts.batchSize)
	c.log.Infof("Importing %s account(s) in %d batch(es) into project %s",
		humanize.Comma(int64(len(users))), len(batches), app.ProjectID())
	result, err := client.SerialImportUsers(ctx, conf, batches, 0)
	if result != nil {
		c.printImportResult(result)
	}
	return err
}

// readUsers parses the account file at location, which is a local path or a gs:// URL.
func (c *cli) readUsers(ctx context.Context, app *firebase.App, location, format string) ([]*auth.UserToImport, error) {
	sc, err := app.Storage(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	r, err := sc.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	c.log.WithField("file", location).Debugf("parsing %s account file", format)
	var users []*auth.UserToImport
	if format == "csv" {
		users, err = auth.ParseUsersCSV(r)
	} else {
		users, err = auth.ParseUsersJSON(r)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid account file %s: %w", location, err)
	}
	return users, nil
}

func (c *cli) printImportResult(result *auth.UserImportResult) {
	if result.FailureCount == 0 {
		c.success("Imported %s account(s) successfully", humanize.Comma(int64(result.SuccessCount)))
		return
	}
	c.warn("Imported %s account(s), %s failed",
		humanize.Comma(int64(result.SuccessCount)), humanize.Comma(int64(result.FailureCount)))
	for _, e := range result.Errors {
		fmt.Fprintf(c.out, "   %s\n", e)
	}
}

// importFormat returns the account file format named by flag, or inferred from the extension of
// location when flag is empty.
func importFormat(flag, location string) (string, error) {
	format := strings.ToLower(flag)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(location)), ".")
	}
	switch format {
	case "json", "csv":
		return format, nil
	case "":
		return "", usageErrorf("cannot infer the format of %s, use --format", location)
	}
	return "", usageErrorf("unsupported account file format: %q", format)
}
