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

package protocol

import "errors"

// Protocol violation errors cause session termination
var (
	ErrProtocolViolationUnexpectedMessage = errors.New(
		"protocol violation: unexpected message received",
	)
	ErrProtocolViolationInvalidMessage = errors.New(
		"protocol violation: invalid message received",
	)
	ErrUnknownMessage = errors.New(
		"protocol violation: unknown message keyword",
	)
	ErrMissingField = errors.New(
		"protocol violation: required field missing",
	)
)
