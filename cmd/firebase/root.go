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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	firebase "firebase.google.com/tools"
	"firebase.google.com/tools/errorutils"
	"firebase.google.com/tools/internal/logging"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// errAborted is returned when the user declines a confirmation prompt.
var errAborted = errors.New("command aborted")

// cli holds the global flags and the I/O streams shared by all commands.
type cli struct {
	project        string
	debug          bool
	jsonLogs       bool
	nonInteractive bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	log    *logrus.Logger
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	c := &cli{in: in, out: out, errOut: errOut, log: logging.Discard()}
	root := &cobra.Command{
		Use:   "firebase",
		Short: "Manage the data of Firebase projects",
		Long: `firebase removes Realtime Database data, deletes Cloud Firestore documents and imports
Firebase Auth accounts in bulk.

The project is taken from --project, which may name an alias of the nearest .firebaserc file,
or else from the "default" alias, FIREBASE_CONFIG or the credentials in use.`,
		Version:       firebase.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.initLogger()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &errorutils.UsageError{Err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&c.project, "project", "P", "", "the Firebase project to use for this command")
	flags.BoolVar(&c.debug, "debug", false, "print verbose debug output")
	flags.BoolVar(&c.jsonLogs, "json", false, "write log output as JSON")
	flags.BoolVar(&c.nonInteractive, "non-interactive", false, "error out instead of waiting for prompts")

	root.AddCommand(
		c.newDatabaseRemoveCmd(),
		c.newFirestoreDeleteCmd(),
		c.newAuthImportCmd(),
	)
	return root
}

func (c *cli) initLogger() {
	level, format := "info", "text"
	if c.debug {
		level = "debug"
	}
	if c.jsonLogs {
		format = "json"
	}
	c.log = logging.New(c.errOut, level, format)
}

// newApp creates the App the commands run against. The project given on the command line
// overrides the one found in FIREBASE_CONFIG.
func (c *cli) newApp(ctx context.Context) (*firebase.App, error) {
	conf, err := firebase.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pid, err := firebase.ResolveProject(".", c.project)
	if err != nil {
		return nil, err
	}
	if pid != "" {
		conf.ProjectID = pid
	}
	conf.Logger = c.log
	return firebase.NewApp(ctx, conf)
}

// confirm asks the user to approve a destructive operation. It returns true without prompting
// when force is set, and fails in non-interactive mode.
func (c *cli) confirm(force bool, prompt string) (bool, error) {
	if force {
		return true, nil
	}
	if c.nonInteractive {
		return false, &errorutils.UsageError{
			Err: errors.New("cannot prompt for confirmation in non-interactive mode, use --force"),
		}
	}

	warnColor.Fprintf(c.out, "? %s (y/N) ", prompt)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (c *cli) success(format string, a ...interface{}) {
	successColor.Fprint(c.out, "✔  ")
	fmt.Fprintf(c.out, format+"\n", a...)
}

func (c *cli) warn(format string, a ...interface{}) {
	warnColor.Fprint(c.out, "⚠  ")
	fmt.Fprintf(c.out, format+"\n", a...)
}

// usageArgs reports argument validation failures as usage errors.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return &errorutils.UsageError{Err: err}
		}
		return nil
	}
}

func usageErrorf(format string, a ...interface{}) error {
	return &errorutils.UsageError{Err: fmt.Errorf(format, a...)}
}
