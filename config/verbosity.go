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

package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Verbosity is the five-level log threshold used by FCP clients
type Verbosity int

const (
	VerbositySilent   Verbosity = 0
	VerbosityCritical Verbosity = 1
	VerbosityNormal   Verbosity = 2
	VerbosityVerbose  Verbosity = 3
	VerbosityDebug    Verbosity = 4
)

// LevelTrace is the slog level used for VerbosityDebug output
const LevelTrace = slog.LevelDebug - 4

// levelSilent is above every level the library logs at
const levelSilent = slog.LevelError + 8

var verbosityNames = map[Verbosity]string{
	VerbositySilent:   "silent",
	VerbosityCritical: "critical",
	VerbosityNormal:   "normal",
	VerbosityVerbose:  "verbose",
	VerbosityDebug:    "debug",
}

func (v Verbosity) String() string {
	if name, ok := verbosityNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Verbosity(%d)", int(v))
}

// Level returns the minimum slog level that should be emitted for the verbosity
func (v Verbosity) Level() slog.Level {
	switch {
	case v <= VerbositySilent:
		return levelSilent
	case v == VerbosityCritical:
		return slog.LevelError
	case v == VerbosityNormal:
		return slog.LevelInfo
	case v == VerbosityVerbose:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// ParseVerbosity accepts either a level name or its number
func ParseVerbosity(s string) (Verbosity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, name := range verbosityNames {
		if s == name || s == fmt.Sprintf("%d", int(v)) {
			return v, nil
		}
	}
	return VerbositySilent, fmt.Errorf("config: unknown verbosity %q", s)
}

// UnmarshalYAML allows verbosity to be given by name or number in config files
func (v *Verbosity) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	tmp, err := ParseVerbosity(s)
	if err != nil {
		return err
	}
	*v = tmp
	return nil
}
