// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fcp

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/gofcp/protocol"
)

// Session errors. Every call on a failed session returns an error wrapping ErrSessionFailed.
var (
	ErrSessionFailed     = errors.New("fcp: session failed")
	ErrSocketTimeout     = errors.New("fcp: socket timeout")
	ErrConnectionLost    = errors.New("fcp: connection lost")
	ErrConnectionClosed  = errors.New("fcp: connection closed")
	ErrNotConnected      = errors.New("fcp: not connected")
	ErrRequestInProgress = errors.New("fcp: a request is already in progress")
	ErrNoRequestPending  = errors.New("fcp: no request pending")
	ErrMissingPayload    = errors.New("fcp: request payload missing")
	ErrShortPayload      = errors.New("fcp: request payload shorter than declared")
)

// Key handle errors
var (
	ErrRedirectLoop = errors.New("fcp: too many redirects")
	ErrNoDatePolicy = errors.New("fcp: date-based redirect with no redirect policy")
	ErrInvalidMode  = errors.New("fcp: operation not permitted on this key handle")
	ErrHandleClosed = errors.New("fcp: key handle closed")
)

// Remote outcomes reported by the node
var (
	ErrRouteNotFound = errors.New("route not found")
	ErrURIError      = errors.New("URI error")
	ErrFormatError   = errors.New("format error")
	ErrFailed        = errors.New("request failed")
	ErrDataNotFound  = errors.New("data not found")
	ErrKeyCollision  = errors.New("key collision")
)

var remoteErrors = map[protocol.MessageType]error{
	protocol.MESSAGE_TYPE_ROUTE_NOT_FOUND: ErrRouteNotFound,
	protocol.MESSAGE_TYPE_URI_ERROR:       ErrURIError,
	protocol.MESSAGE_TYPE_FORMAT_ERROR:    ErrFormatError,
	protocol.MESSAGE_TYPE_FAILED:          ErrFailed,
	protocol.MESSAGE_TYPE_DATA_NOT_FOUND:  ErrDataNotFound,
	protocol.MESSAGE_TYPE_KEY_COLLISION:   ErrKeyCollision,
}

// RemoteError is a non-fatal failure reported by the node. The session stays usable.
type RemoteError struct {
	Request string
	Reason  string
	Message protocol.Message
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("fcp: %s: %s", e.Request, e.Unwrap())
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap returns the sentinel for the outcome, so that errors.Is matches ErrRouteNotFound and friends
func (e *RemoteError) Unwrap() error {
	return remoteErrors[e.Message.Type()]
}

// remoteError returns a *RemoteError if the message is a remote failure, and nil otherwise
func remoteError(request string, msg protocol.Message) error {
	if _, ok := remoteErrors[msg.Type()]; !ok {
		return nil
	}
	ret := &RemoteError{
		Request: request,
		Message: msg,
	}
	switch m := msg.(type) {
	case *protocol.RouteNotFound:
		ret.Reason = m.Reason
	case *protocol.URIError:
		ret.Reason = m.Reason
	case *protocol.FormatError:
		ret.Reason = m.Reason
	case *protocol.Failed:
		ret.Reason = m.Reason
	case *protocol.DataNotFound:
		ret.Reason = m.Reason
	case *protocol.KeyCollision:
		ret.Reason = m.URI
	}
	return ret
}

// IsRemoteError reports whether err is a failure reported by the node rather than a session failure
func IsRemoteError(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}
