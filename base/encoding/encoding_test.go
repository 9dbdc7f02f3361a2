// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package encoding

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestWriteMatrix(t *testing.T) {
	a := [][]float32{{1, 2}, {3, 4}}
	buf := bytes.NewBuffer(nil)
	err := WriteMatrix(buf, a)
	assert.NoError(t, err)
	b, err := ReadMatrix(buf, 2, 2)
	assert.NoError(t, err)
	assert.Equal(t, a, b)

	// corrupt shapes fail without allocating them
	buf = bytes.NewBuffer(nil)
	assert.NoError(t, WriteMatrix(buf, a))
	_, err = ReadMatrix(buf, math.MaxInt64, 2)
	assert.Error(t, err)
	_, err = ReadMatrix(bytes.NewBuffer(nil), -1, 2)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestWriteString(t *testing.T) {
	a := "abc"
	buf := bytes.NewBuffer(nil)
	err := WriteString(buf, a)
	assert.NoError(t, err)
	var b string
	b, err = ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)

	// empty string at the end of stream
	err = WriteString(buf, "")
	assert.NoError(t, err)
	b, err = ReadString(buf)
	assert.NoError(t, err)
	assert.Empty(t, b)

	// truncated stream
	err = WriteString(buf, "abcdef")
	assert.NoError(t, err)
	buf.Truncate(buf.Len() - 2)
	_, err = ReadString(buf)
	assert.Error(t, err)
}

func TestWriteStrings(t *testing.T) {
	a := []string{"Heat (1995)", "", "Toy Story (1995)"}
	buf := bytes.NewBuffer(nil)
	err := WriteStrings(buf, a)
	assert.NoError(t, err)
	b, err := ReadStrings(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReadStrings_Corrupted(t *testing.T) {
	// a huge count followed by one string
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, int64(1<<62)))
	assert.NoError(t, WriteString(buf, "Heat (1995)"))
	_, err := ReadStrings(buf)
	assert.Error(t, err)

	// a huge length prefix
	buf = bytes.NewBuffer(nil)
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, int32(math.MaxInt32)))
	buf.WriteString("abc")
	_, err = ReadBytes(buf)
	assert.Error(t, err)

	buf = bytes.NewBuffer(nil)
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, int64(-1)))
	_, err = ReadStrings(buf)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestWriteGob(t *testing.T) {
	a := "abc"
	buf := bytes.NewBuffer(nil)
	err := WriteGob(buf, a)
	assert.NoError(t, err)
	var b string
	err = ReadGob(buf, &b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFormatFloat32(t *testing.T) {
	assert.Equal(t, "4.5", FormatFloat32(4.5))
	assert.Equal(t, "3", FormatFloat32(3))
}
