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

package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents the platform-wide error codes that can be raised by
// remote Firebase and Google Cloud APIs.
type ErrorCode string

const (
	// InvalidArgument is a OnePlatform error code.
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// FailedPrecondition is a OnePlatform error code.
	FailedPrecondition ErrorCode = "FAILED_PRECONDITION"

	// Unauthenticated is a OnePlatform error code.
	Unauthenticated ErrorCode = "UNAUTHENTICATED"

	// PermissionDenied is a OnePlatform error code.
	PermissionDenied ErrorCode = "PERMISSION_DENIED"

	// NotFound is a OnePlatform error code.
	NotFound ErrorCode = "NOT_FOUND"

	// Conflict is a custom error code that represents HTTP 409 responses.
	//
	// Realtime Database and a few older APIs send HTTP 409 Conflict without any additional
	// details to distinguish between ABORTED and ALREADY_EXISTS.
	Conflict ErrorCode = "CONFLICT"

	// PayloadTooLarge is a custom error code that represents HTTP 413 responses.
	PayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	// ResourceExhausted is a OnePlatform error code.
	ResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"

	// Unknown is a OnePlatform error code.
	Unknown ErrorCode = "UNKNOWN"

	// Internal is a OnePlatform error code.
	Internal ErrorCode = "INTERNAL"

	// Unavailable is a OnePlatform error code.
	Unavailable ErrorCode = "UNAVAILABLE"

	// DeadlineExceeded is a OnePlatform error code.
	DeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
)

// FirebaseError is an error type containing an error code string.
type FirebaseError struct {
	ErrorCode ErrorCode
	String    string
	Response  *http.Response
	Ext       map[string]interface{}
}

func (fe *FirebaseError) Error() string {
	return fe.String
}

// HTTPStatus returns the HTTP status code of the response that caused this error, or 0 if the
// error was not caused by an HTTP response.
func (fe *FirebaseError) HTTPStatus() int {
	if fe.Response == nil {
		return 0
	}
	return fe.Response.StatusCode
}

// HasPlatformErrorCode checks if the given error contains a specific error code.
func HasPlatformErrorCode(err error, code ErrorCode) bool {
	var fe *FirebaseError
	return errors.As(err, &fe) && fe.ErrorCode == code
}

// IsClientError reports whether err was caused by an HTTP 4xx response. Such errors are not
// resolved by sending the same request again, except for 429 Too Many Requests.
func IsClientError(err error) bool {
	var fe *FirebaseError
	if !errors.As(err, &fe) {
		return false
	}
	status := fe.HTTPStatus()
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

var httpStatusToErrorCodes = map[int]ErrorCode{
	http.StatusBadRequest:            InvalidArgument,
	http.StatusUnauthorized:          Unauthenticated,
	http.StatusForbidden:             PermissionDenied,
	http.StatusNotFound:              NotFound,
	http.StatusConflict:              Conflict,
	http.StatusRequestEntityTooLarge: PayloadTooLarge,
	http.StatusTooManyRequests:       ResourceExhausted,
	http.StatusInternalServerError:   Internal,
	http.StatusServiceUnavailable:    Unavailable,
}

// NewFirebaseError creates a new error from the given HTTP response.
//
// The response payload is parsed for a GCP-style error ({"error": {"status", "message"}}) or a
// Realtime Database error ({"error": "message"}). When neither is present the raw payload is
// included in the error message.
func NewFirebaseError(resp *Response) *FirebaseError {
	code, ok := httpStatusToErrorCodes[resp.Status]
	if !ok {
		code = Unknown
	}

	fe := &FirebaseError{
		ErrorCode: code,
		String:    fmt.Sprintf("unexpected http response with status: %d\n%s", resp.Status, string(resp.Body)),
		Response:  resp.LowLevelResponse(),
	}

	var gcpError struct {
		Error json.RawMessage `json:"error"`
	}
	json.Unmarshal(resp.Body, &gcpError) // ignore any json parse errors at this level
	if len(gcpError.Error) == 0 {
		return fe
	}

	var details struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	var message string
	if err := json.Unmarshal(gcpError.Error, &details); err == nil {
		if details.Status != "" {
			fe.ErrorCode = ErrorCode(details.Status)
		}
		message = details.Message
	} else {
		json.Unmarshal(gcpError.Error, &message)
	}
	if message != "" {
		fe.String = fmt.Sprintf("http error status: %d; reason: %s", resp.Status, message)
	}
	return fe
}
