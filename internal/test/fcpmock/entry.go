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

package fcpmock

import (
	"github.com/blinklabs-io/gofcp/protocol"
)

type EntryType int

const (
	EntryTypeNone   EntryType = 0
	EntryTypeInput  EntryType = 1
	EntryTypeOutput EntryType = 2
	EntryTypeClose  EntryType = 3
)

// ConversationEntry is one step of a scripted conversation. Input entries
// describe a request the client must send, output entries hold raw bytes
// written back to the client.
type ConversationEntry struct {
	Type EntryType
	// InputRequest, if set, must equal the decoded request
	InputRequest protocol.Request
	// InputKeyword, if set, must match the request keyword
	InputKeyword string
	// InputPayload, if set, must equal the request payload
	InputPayload []byte
	OutputData   []byte
}

// ConversationEntryClientHello is a pre-defined conversation entry that matches the client hello
var ConversationEntryClientHello = ConversationEntry{
	Type:         EntryTypeInput,
	InputKeyword: protocol.RequestClientHello,
}

// ConversationEntryNodeHello is a pre-defined conversation entry for the node's hello response
var ConversationEntryNodeHello = ConversationEntry{
	Type:       EntryTypeOutput,
	OutputData: []byte("NodeHello\nProtocol=1.2\nNode=Fred,0.5,STABLE-0.5,5107\nHighestSeenBuild=5107\nMaxFileSize=100000\nEndMessage\n"),
}

// ConversationHello is the conversation prefix for a successful hello exchange
var ConversationHello = []ConversationEntry{
	ConversationEntryClientHello,
	ConversationEntryNodeHello,
}

// Input returns a conversation entry matching a request keyword
func Input(keyword string) ConversationEntry {
	return ConversationEntry{
		Type:         EntryTypeInput,
		InputKeyword: keyword,
	}
}

// Output returns a conversation entry writing raw bytes to the client
func Output(data string) ConversationEntry {
	return ConversationEntry{
		Type:       EntryTypeOutput,
		OutputData: []byte(data),
	}
}

// Close returns a conversation entry closing the connection
func Close() ConversationEntry {
	return ConversationEntry{
		Type: EntryTypeClose,
	}
}
