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
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/gofcp/key"
)

// PutKeyFromFile inserts the contents of dataFile under uri and returns the resulting key. If
// metaFile is not empty, its contents are inserted as metadata. The MIME type is guessed from the
// extension of dataFile.
func PutKeyFromFile(
	ctx context.Context,
	conn *Connection,
	uri key.URI,
	dataFile string,
	metaFile string,
	options ...KeyHandleOptionFunc,
) (key.URI, error) {
	h, err := OpenKey(ctx, conn, uri, OpenWrite, options...)
	if err != nil {
		return key.URI{}, err
	}
	if err := copyFileTo(h, dataFile); err != nil {
		return key.URI{}, errors.Join(err, h.Abort())
	}
	if metaFile != "" {
		if err := copyFileTo(writerFunc(h.WriteMetadata), metaFile); err != nil {
			return key.URI{}, errors.Join(err, h.Abort())
		}
	}
	if mimeType := mime.TypeByExtension(filepath.Ext(dataFile)); mimeType != "" {
		if err := h.SetMimeType(mimeType); err != nil {
			return key.URI{}, errors.Join(err, h.Abort())
		}
	}
	if err := h.Close(); err != nil {
		return key.URI{}, err
	}
	return h.URI(), nil
}

// GetKeyToFile retrieves uri and writes its data to dataFile. If metaFile is not empty, the
// metadata of the resolved key is written to it.
func GetKeyToFile(
	ctx context.Context,
	conn *Connection,
	uri key.URI,
	dataFile string,
	metaFile string,
	options ...KeyHandleOptionFunc,
) (err error) {
	h, err := OpenKey(ctx, conn, uri, OpenRead, options...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, h.Close())
	}()
	if err := copyToFile(dataFile, h); err != nil {
		return err
	}
	if metaFile != "" {
		if err := copyToFile(metaFile, readerFunc(h.ReadMetadata)); err != nil {
			return err
		}
	}
	return nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}

func copyFileTo(w io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	return nil
}

func copyToFile(name string, r io.Reader) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}
