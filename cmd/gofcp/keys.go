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
	"io"
	"os"
	"time"

	fcp "github.com/blinklabs-io/gofcp"
	"github.com/blinklabs-io/gofcp/config"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type keyFlags struct {
	raw          bool
	noRedirect   bool
	dbr          bool
	metaRedirect bool
	metaFile     string
}

// options returns the settings the flags turn on; unset flags keep the config file values
func (f *keyFlags) options() []config.ConfigOptionFunc {
	var ret []config.ConfigOptionFunc
	if f.raw {
		ret = append(ret, config.WithRawMode(true))
	}
	if f.noRedirect {
		ret = append(ret, config.WithNoRedirect(true))
	}
	if f.dbr {
		ret = append(ret, config.WithDateRedirect(true))
	}
	if f.metaRedirect {
		ret = append(ret, config.WithMetaRedirect(true))
	}
	return ret
}

// handleOptions follows date-based redirects with the classic daily schedule
func handleOptions() []fcp.KeyHandleOptionFunc {
	return []fcp.KeyHandleOptionFunc{
		fcp.WithDateRedirectPolicy(fcp.PeriodicDateRedirect{}),
	}
}

func (f *keyFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.raw, "raw", false, "do not interpret metadata")
	cmd.Flags().StringVar(&f.metaFile, "metadata", "", "metadata file")
}

func getCmd() *cobra.Command {
	flags := &keyFlags{}
	var output string
	cmd := &cobra.Command{
		Use:   "get URI",
		Short: "retrieve a key, following redirects and reassembling splitfiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := parseURI(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, flags.options()...)
			if err != nil {
				return err
			}
			defer s.Close()
			start := time.Now()
			if output != "" {
				if err := fcp.GetKeyToFile(cmd.Context(), s.conn, uri, output, flags.metaFile, handleOptions()...); err != nil {
					return err
				}
				if st, err := os.Stat(output); err == nil {
					s.logger.Info("retrieved key",
						"uri", uri.String(),
						// #nosec G115
						"size", humanize.IBytes(uint64(st.Size())),
						"duration", time.Since(start).Round(time.Millisecond),
					)
				}
				return nil
			}
			h, err := fcp.OpenKey(cmd.Context(), s.conn, uri, fcp.OpenRead, handleOptions()...)
			if err != nil {
				return err
			}
			defer h.Close()
			if _, err := io.Copy(os.Stdout, h); err != nil {
				return err
			}
			return h.Close()
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the data to a file instead of stdout")
	cmd.Flags().BoolVar(&flags.noRedirect, "no-redirect", false, "do not follow redirects")
	return cmd
}

func putCmd() *cobra.Command {
	flags := &keyFlags{}
	cmd := &cobra.Command{
		Use:   "put URI FILE",
		Short: "insert a file under a key; large files are inserted as splitfiles",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := parseURI(args[0])
			if err != nil {
				return err
			}
			st, err := os.Stat(args[1])
			if err != nil {
				return err
			}
			s, err := connect(cmd, flags.options()...)
			if err != nil {
				return err
			}
			defer s.Close()
			start := time.Now()
			inserted, err := fcp.PutKeyFromFile(cmd.Context(), s.conn, uri, args[1], flags.metaFile, handleOptions()...)
			if err != nil {
				return err
			}
			s.logger.Info("inserted key",
				"uri", inserted.String(),
				// #nosec G115
				"size", humanize.IBytes(uint64(st.Size())),
				"duration", time.Since(start).Round(time.Millisecond),
			)
			fmt.Println("freenet:" + inserted.String())
			return nil
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().BoolVar(&flags.dbr, "dbr", false, "insert as a daily date-based redirect")
	cmd.Flags().BoolVar(&flags.metaRedirect, "meta-redirect", false, "insert the metadata under a CHK and redirect to it")
	return cmd
}
