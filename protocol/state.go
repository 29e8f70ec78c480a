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

// State is a receive state of a session
type State struct {
	Id   uint
	Name string
}

func NewState(id uint, name string) State {
	return State{
		Id:   id,
		Name: name,
	}
}

func (s State) String() string {
	return s.Name
}

var (
	// StateWaiting means no body is outstanding and the next read is a header
	StateWaiting = NewState(1, "Waiting")
	// StateGotHeader means a header announcing a body was read and body bytes remain
	StateGotHeader = NewState(2, "GotHeader")
)

// StateTransition describes a response permitted for an outstanding request.
// Final responses complete the exchange.
type StateTransition struct {
	MsgType   MessageType
	Final     bool
	MatchFunc StateTransitionMatchFunc
}

type StateTransitionMatchFunc func(Message) bool

type StateMapEntry struct {
	Transitions []StateTransition
}

// StateMap maps a request keyword to the responses it permits
type StateMap map[string]StateMapEntry

// Copy returns a copy of the state map. This is mostly for convenience,
// since callers may want to extend the table for their own requests
func (s StateMap) Copy() StateMap {
	ret := StateMap{}
	for k, v := range s {
		ret[k] = v
	}
	return ret
}

// Lookup returns the transition for a response to the given request
func (s StateMap) Lookup(request string, msg Message) (StateTransition, bool) {
	entry, ok := s[request]
	if !ok {
		return StateTransition{}, false
	}
	for _, t := range entry.Transitions {
		if t.MsgType != msg.Type() {
			continue
		}
		if t.MatchFunc != nil && !t.MatchFunc(msg) {
			continue
		}
		return t, true
	}
	return StateTransition{}, false
}

func lastSegment(msg Message) bool {
	sh := msg.(*SegmentHeader)
	return sh.SegmentNum+1 >= sh.Segments
}

func notLastSegment(msg Message) bool {
	return !lastSegment(msg)
}

var keyGenTransitions = []StateTransition{
	{MsgType: MESSAGE_TYPE_SUCCESS, Final: true},
	{MsgType: MESSAGE_TYPE_FAILED, Final: true},
	{MsgType: MESSAGE_TYPE_FORMAT_ERROR, Final: true},
	{MsgType: MESSAGE_TYPE_URI_ERROR, Final: true},
}

// ResponseStateMap lists the responses each request permits
var ResponseStateMap = StateMap{
	RequestClientHello: {
		Transitions: []StateTransition{
			{MsgType: MESSAGE_TYPE_NODE_HELLO, Final: true},
		},
	},
	RequestClientInfo: {
		Transitions: []StateTransition{
			{MsgType: MESSAGE_TYPE_NODE_INFO, Final: true},
		},
	},
	RequestClientGet: {
		Transitions: []StateTransition{
			{MsgType: MESSAGE_TYPE_DATA_FOUND, Final: true},
			{MsgType: MESSAGE_TYPE_DATA_NOT_FOUND, Final: true},
			{MsgType: MESSAGE_TYPE_ROUTE_NOT_FOUND, Final: true},
			{MsgType: MESSAGE_TYPE_URI_ERROR, Final: true},
			{MsgType: MESSAGE_TYPE_RESTARTED},
			{MsgType: MESSAGE_TYPE_FAILED, Final: true},
			{MsgType: MESSAGE_TYPE_FORMAT_ERROR, Final: true},
		},
	},
	RequestClientPut: {
		Transitions: []StateTransition{
			{MsgType: MESSAGE_TYPE_SUCCESS, Final: true},
			{MsgType: MESSAGE_TYPE_PENDING},
			{MsgType: MESSAGE_TYPE_KEY_COLLISION, Final: true},
			{MsgType: MESSAGE_TYPE_ROUTE_NOT_FOUND, Final: true},
			{MsgType: MESSAGE_TYPE_URI_ERROR, Final: true},
			{MsgType: MESSAGE_TYPE_RESTARTED},
			{MsgType: MESSAGE_TYPE_FAILED, Final: true},
			{MsgType: MESSAGE_TYPE_FORMAT_ERROR, Final: true},
		},
	},
	RequestGenerateCHK:      {Transitions: keyGenTransitions},
	RequestGenerateSVKPair:  {Transitions: keyGenTransitions},
	RequestInvertPrivateKey: {Transitions: keyGenTransitions},
	RequestFECSegmentFile: {
		Transitions: []StateTransition{
			{
				MsgType:   MESSAGE_TYPE_SEGMENT_HEADER,
				MatchFunc: notLastSegment,
			},
			{
				MsgType:   MESSAGE_TYPE_SEGMENT_HEADER,
				Final:     true,
				MatchFunc: lastSegment,
			},
			{MsgType: MESSAGE_TYPE_FAILED, Final: true},
			{MsgType: MESSAGE_TYPE_FORMAT_ERROR, Final: true},
		},
	},
}
