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

// gofcp is a command line client for a Freenet node's FCP port
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/blinklabs-io/gofcp/cmd/common"
	"github.com/spf13/cobra"
)

var globalFlags = &common.GlobalFlags{}

var root = &cobra.Command{
	Use:           "gofcp",
	Short:         "gofcp talks to a Freenet node over the Freenet Client Protocol",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	globalFlags.AddFlags(root)
	root.AddCommand(
		helloCmd(),
		infoCmd(),
		genCHKCmd(),
		keyPairCmd(),
		invertCmd(),
		getCmd(),
		putCmd(),
		segmentCmd(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}
