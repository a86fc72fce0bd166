// Copyright 2017 Google Inc. All Rights Reserved.
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

// Package firebase is the entry point to the Firebase CLI libraries. It resolves the project and
// credentials a command runs against, and creates clients for the individual services.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/transport"

	"firebase.google.com/tools/auth"
	"firebase.google.com/tools/db"
	"firebase.google.com/tools/internal"
	"firebase.google.com/tools/internal/logging"
	"firebase.google.com/tools/storage"
)

var firebaseScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/devstorage.full_control",
	"https://www.googleapis.com/auth/firebase",
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Version of the Firebase CLI libraries.
const Version = "0.1.0"

// firebaseEnvName is the name of the environment variable with the Config.
const firebaseEnvName = "FIREBASE_CONFIG"

const databaseEmulatorHostEnvVar = "FIREBASE_DATABASE_EMULATOR_HOST"

// An App holds configuration and state common to all Firebase services used by the CLI.
type App struct {
	authOverride  map[string]interface{}
	creds         *google.Credentials
	dbURL         string
	projectID     string
	storageBucket string
	opts          []option.ClientOption
	log           logrus.FieldLogger
}

// Config represents the configuration used to initialize an App.
type Config struct {
	AuthOverride  *map[string]interface{} `json:"databaseAuthVariableOverride"`
	DatabaseURL   string                  `json:"databaseURL"`
	ProjectID     string                  `json:"projectId"`
	StorageBucket string                  `json:"storageBucket"`
	Logger        logrus.FieldLogger      `json:"-"`
}

// NewApp creates a new App from the provided config and client options.
//
// If the client options contain a valid credential (a service account file, a refresh token file
// or an oauth2.TokenSource) the App is authenticated using that credential. Otherwise, NewApp
// attempts to authenticate the App with Google application default credentials.
// If config is nil, the configuration is loaded from the FIREBASE_CONFIG environment variable,
// which holds either a JSON object or the path of a JSON file.
func NewApp(ctx context.Context, config *Config, opts ...option.ClientOption) (*App, error) {
	o := []option.ClientOption{option.WithScopes(firebaseScopes...)}
	o = append(o, opts...)
	if config == nil {
		var err error
		if config, err = ConfigFromEnv(); err != nil {
			return nil, err
		}
	}

	creds, err := transport.Creds(ctx, o...)
	if err != nil {
		return nil, err
	}

	pid := config.ProjectID
	if pid == "" && creds != nil && creds.ProjectID != "" {
		pid = creds.ProjectID
	}
	if pid == "" {
		pid = projectFromEnv()
	}

	var ao map[string]interface{}
	if config.AuthOverride != nil {
		ao = *config.AuthOverride
	} else {
		ao = make(map[string]interface{})
	}

	return &App{
		authOverride:  ao,
		creds:         creds,
		dbURL:         config.DatabaseURL,
		projectID:     pid,
		storageBucket: config.StorageBucket,
		opts:          o,
		log:           logging.OrDiscard(config.Logger),
	}, nil
}

// ProjectID returns the ID of the project the App operates on.
func (a *App) ProjectID() string {
	return a.projectID
}

// Auth returns an instance of auth.Client.
func (a *App) Auth(ctx context.Context) (*auth.Client, error) {
	conf := &internal.AuthConfig{
		Opts:      a.opts,
		ProjectID: a.projectID,
		Version:   Version,
		Logger:    a.log,
	}
	return auth.NewClient(ctx, conf)
}

// Database returns an instance of db.Client for the database at dbURL. When dbURL is empty the
// database URL of the App Config is used, or else the default database of the project.
//
// When FIREBASE_DATABASE_EMULATOR_HOST is set, the client connects to the emulator instead, using
// the name of the selected database as its namespace.
func (a *App) Database(ctx context.Context, dbURL string) (*db.Client, error) {
	if dbURL == "" {
		dbURL = a.dbURL
	}
	if dbURL == "" {
		if a.projectID == "" {
			return nil, errors.New("project id is required to access the default database")
		}
		dbURL = DefaultDatabaseURL(a.projectID)
	}
	if host := os.Getenv(databaseEmulatorHostEnvVar); host != "" {
		var err error
		if dbURL, err = emulatorURL(host, dbURL); err != nil {
			return nil, err
		}
	}

	conf := &internal.DatabaseConfig{
		AuthOverride: a.authOverride,
		URL:          dbURL,
		Opts:         a.opts,
		Version:      Version,
		Logger:       a.log,
	}
	return db.NewClient(ctx, conf)
}

// Storage returns a new instance of storage.Client.
func (a *App) Storage(ctx context.Context) (*storage.Client, error) {
	conf := &internal.StorageConfig{
		Opts:   a.opts,
		Bucket: a.storageBucket,
	}
	return storage.NewClient(ctx, conf)
}

// Firestore returns a new firestore.Client instance from the https://godoc.org/cloud.google.com/go/firestore
// package.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	if a.projectID == "" {
		return nil, errors.New("project id is required to access Firestore")
	}
	return firestore.NewClient(ctx, a.projectID, a.opts...)
}

// DefaultDatabaseURL returns the URL of the default Realtime Database instance of a project.
func DefaultDatabaseURL(projectID string) string {
	return fmt.Sprintf("https://%s-default-rtdb.firebaseio.com", projectID)
}

func emulatorURL(host, dbURL string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", err
	}
	ns := u.Query().Get("ns")
	if ns == "" {
		ns = strings.Split(u.Hostname(), ".")[0]
	}
	if ns == "" {
		return "", fmt.Errorf("cannot determine database namespace from URL: %q", dbURL)
	}
	return fmt.Sprintf("http://%s?ns=%s", host, ns), nil
}

func projectFromEnv() string {
	for _, name := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT"} {
		if pid := os.Getenv(name); pid != "" {
			return pid
		}
	}
	return ""
}

// ConfigFromEnv reads the default Config from the FIREBASE_CONFIG environment variable. NewApp
// calls it when no Config is provided. It returns an empty Config when the variable is not set.
func ConfigFromEnv() (*Config, error) {
	fbc := &Config{}
	confFileName := os.Getenv(firebaseEnvName)
	if confFileName == "" {
		return fbc, nil
	}
	var dat []byte
	if confFileName[0] == byte('{') {
		dat = []byte(confFileName)
	} else {
		var err error
		if dat, err = os.ReadFile(confFileName); err != nil {
			return nil, err
		}
	}

	d := json.NewDecoder(bytes.NewReader(dat))
	d.DisallowUnknownFields()
	if err := d.Decode(fbc); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", firebaseEnvName, err)
	}

	// An explicit null override means unauthenticated database access, which differs from an
	// absent one.
	var m map[string]interface{}
	if err := json.Unmarshal(dat, &m); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", firebaseEnvName, err)
	}
	if ao, ok := m["databaseAuthVariableOverride"]; ok && ao == nil {
		var nullMap map[string]interface{}
		fbc.AuthOverride = &nullMap
	}
	return fbc, nil
}
