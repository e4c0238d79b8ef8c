// Copyright 2026 Ewout Prangsma
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
//
// Author Ewout Prangsma
//

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	w := NewMultiWriter(&a, failingWriter{}, &b)

	n, err := w.Write([]byte("hello"))
	assert.Equal(t, 5, n)
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, "hello", a.String())
	assert.Equal(t, "hello", b.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, "WARN")
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("component", "test").Msg("visible")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), `"component":"test"`)

	_, err = NewLogger(&buf, "loud")
	assert.Error(t, err)
}

func TestOpenOutputWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	out, err := OpenOutput(path)
	require.NoError(t, err)

	log, err := NewLogger(out, "info")
	require.NoError(t, err)
	log.Info().Msg("contactor initialized")
	require.NoError(t, out.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "contactor initialized")
}
