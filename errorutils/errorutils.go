// Copyright 2020 Google Inc. All Rights Reserved.
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

// Package errorutils provides functions for checking and handling error conditions returned by
// remote Firebase services, and for mapping them to process exit codes.
package errorutils

import (
	"errors"
	"net/http"

	"firebase.google.com/tools/internal"
)

// Exit codes returned by the CLI.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitUsage      = 2
	ExitUnexpected = 3
)

// UnexpectedError signals a remote state the CLI does not know how to handle, such as a
// Realtime Database node that reports itself as too large but has no children.
type UnexpectedError struct {
	Msg string
}

func (e *UnexpectedError) Error() string {
	return e.Msg
}

// UsageError signals invalid command-line input.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// IsInvalidArgument checks if the given error was due to an invalid client argument.
func IsInvalidArgument(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.InvalidArgument)
}

// IsUnauthenticated checks if the given error was caused by missing or invalid credentials.
func IsUnauthenticated(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.Unauthenticated)
}

// IsPermissionDenied checks if the given error was due to a client not having suffificient
// permissions.
func IsPermissionDenied(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.PermissionDenied)
}

// IsNotFound checks if the given error was due to a specified resource being not found.
func IsNotFound(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.NotFound)
}

// IsConflict checks if the given error was due to a concurrency conflict.
func IsConflict(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.Conflict)
}

// IsPayloadTooLarge checks if the given error was due to a request or response payload
// exceeding the service limits.
func IsPayloadTooLarge(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.PayloadTooLarge)
}

// IsResourceExhausted checks if the given error was caused by a quota or rate limit.
func IsResourceExhausted(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.ResourceExhausted)
}

// IsInternal checks if the given error was due to an internal server error.
func IsInternal(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.Internal)
}

// IsUnavailable checks if the given error was caused by an unavailable service.
func IsUnavailable(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.Unavailable)
}

// IsUnknown checks if the given error was cuased by an unknown server error.
func IsUnknown(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.Unknown)
}

// IsRetryable reports whether the operation that produced err may succeed if attempted again.
// Network errors and 5xx or 429 responses are retryable; other 4xx responses are not.
func IsRetryable(err error) bool {
	return err != nil && !internal.IsClientError(err)
}

// HTTPResponse returns the http.Response instance that caused the given error.
//
// If the error was not caused by an HTTP error response, returns nil.
func HTTPResponse(err error) *http.Response {
	var fe *internal.FirebaseError
	if errors.As(err, &fe) {
		return fe.Response
	}
	return nil
}

// ExitCode returns the process exit status for the given command error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		return ExitUsage
	}
	var ie *UnexpectedError
	if errors.As(err, &ie) {
		return ExitUnexpected
	}
	return ExitError
}
