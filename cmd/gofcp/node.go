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

package main

import (
	"fmt"
	"log/slog"
	"os"

	fcp "github.com/blinklabs-io/gofcp"
	"github.com/blinklabs-io/gofcp/cmd/common"
	"github.com/blinklabs-io/gofcp/config"
	"github.com/blinklabs-io/gofcp/key"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// session holds what a command needs to talk to the node
type session struct {
	config config.Config
	logger *slog.Logger
	conn   *fcp.Connection
}

func connect(cmd *cobra.Command, options ...config.ConfigOptionFunc) (*session, error) {
	cfg, err := globalFlags.Config(cmd)
	if err != nil {
		return nil, err
	}
	for _, option := range options {
		option(&cfg)
	}
	logger := common.NewLogger(cfg.Verbosity)
	conn, err := common.CreateClientConnection(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Address(), err)
	}
	return &session{
		config: cfg,
		logger: logger,
		conn:   conn,
	}, nil
}

func (s *session) Close() {
	_ = s.conn.Close()
}

func helloCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hello",
		Short: "connect and show the node's greeting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			hello := s.conn.NodeHello()
			fmt.Printf("Node:             %s\n", hello.Node)
			fmt.Printf("Protocol:         %s\n", hello.Protocol)
			fmt.Printf("HighestSeenBuild: %s\n", hello.HighestSeenBuild)
			fmt.Printf("MaxFileSize:      %s\n", humanize.IBytes(hello.MaxFileSize))
			return nil
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "show the node's description of itself",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			info, err := s.conn.Info()
			if err != nil {
				return err
			}
			fmt.Printf("Architecture:    %s (%d processors)\n", info.Architecture, info.Processors)
			fmt.Printf("OperatingSystem: %s %s\n", info.OperatingSystem, info.OperatingSystemVersion)
			fmt.Printf("Java:            %s %s %s\n", info.JavaVendor, info.JavaName, info.JavaVersion)
			fmt.Printf("Memory:          %s free of %s allocated, %s max\n",
				humanize.IBytes(info.FreeMemory),
				humanize.IBytes(info.AllocatedMemory),
				humanize.IBytes(info.MaximumMemory),
			)
			fmt.Printf("Datastore:       %s used, %s free, %s max\n",
				humanize.IBytes(info.DatastoreUsed),
				humanize.IBytes(info.DatastoreFree),
				humanize.IBytes(info.DatastoreMax),
			)
			fmt.Printf("Load:            %d%%, %d active jobs\n", info.EstimatedLoad, info.ActiveJobs)
			fmt.Printf("Address:         %s:%d (transient: %t)\n", info.NodeAddress, info.NodePort, info.IsTransient)
			return nil
		},
	}
}

func genCHKCmd() *cobra.Command {
	var metaFile string
	cmd := &cobra.Command{
		Use:   "genchk FILE",
		Short: "compute the CHK of a file without inserting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var meta []byte
			if metaFile != "" {
				if meta, err = os.ReadFile(metaFile); err != nil {
					return err
				}
			}
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			uri, err := s.conn.GenerateCHK(meta, data)
			if err != nil {
				return err
			}
			fmt.Println("freenet:" + uri.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&metaFile, "metadata", "", "file holding metadata to include")
	return cmd
}

func keyPairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keypair",
		Short: "ask the node for a new SSK key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			pair, err := s.conn.GenerateSVKPair()
			if err != nil {
				return err
			}
			fmt.Printf("PrivateKey: %s\n", pair.PrivateKey)
			fmt.Printf("PublicKey:  %s\n", pair.PublicKey)
			fmt.Printf("CryptoKey:  %s\n", pair.CryptoKey)
			fmt.Printf("Insert as:  freenet:SSK@%s/<name>\n", pair.PrivateKey)
			fmt.Printf("Request as: freenet:SSK@%s,%s/<name>\n", pair.PublicKey, pair.CryptoKey)
			return nil
		},
	}
}

func invertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invert PRIVATEKEY",
		Short: "show the public key matching a private SSK key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			public, err := s.conn.InvertPrivateKey(args[0])
			if err != nil {
				return err
			}
			fmt.Println(public)
			return nil
		},
	}
}

func segmentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "segment LENGTH",
		Short: "show how the node would segment a file of the given length",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			length, err := humanize.ParseBytes(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			// #nosec G115
			headers, err := s.conn.SegmentFile("OnionFEC_a_1_2", int64(length))
			if err != nil {
				return err
			}
			for _, h := range headers {
				fmt.Printf(
					"segment %d/%d: %s at offset %s, %d data + %d check blocks of %s, %d required\n",
					h.SegmentNum+1,
					h.Segments,
					h.FECAlgorithm,
					humanize.IBytes(h.Offset),
					h.BlockCount,
					h.CheckBlockCount,
					humanize.IBytes(h.BlockSize),
					h.BlocksRequired,
				)
			}
			return nil
		},
	}
}

func parseURI(s string) (key.URI, error) {
	uri, err := key.Parse(s)
	if err != nil {
		return key.URI{}, fmt.Errorf("bad key %q: %w", s, err)
	}
	return uri, nil
}
