// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dotenv

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# Runtime image
DOCKER_PHP_IMAGE=
export APP_ENV=dev
QUOTED="hello world"
SINGLE='a # b'
INLINE=value # trailing comment
this line is not an assignment
1BAD=x
`

func TestParse_RoundTripIsByteIdentical(t *testing.T) {
	for _, input := range []string{sample, "DOCKER_PHP_IMAGE=azerty", "", "\n\n"} {
		assert.Equal(t, input, string(Parse([]byte(input)).Bytes()))
	}
}

func TestParse_KeepsCRLF(t *testing.T) {
	input := "# header\r\nA=1\r\nB=2\r\n"
	doc := Parse([]byte(input))
	assert.Equal(t, input, string(doc.Bytes()))

	v, _ := doc.Get("A")
	assert.Equal(t, "1", v)

	doc.Set("A", "changed")
	doc.Set("C", "new")
	assert.Equal(t, "# header\r\nA=changed\r\nB=2\r\nC=new\r\n", string(doc.Bytes()))
}

func TestParse_LongLineKeepsFollowingLines(t *testing.T) {
	long := strings.Repeat("x", 2<<20)
	doc := Parse([]byte("A=" + long + "\nB=2\n"))

	v, ok := doc.Get("B")
	require.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Len(t, doc.Bytes(), len(long)+7)
}

func TestParse_Values(t *testing.T) {
	doc := Parse([]byte(sample))

	tests := map[string]string{
		"DOCKER_PHP_IMAGE": "",
		"APP_ENV":          "dev",
		"QUOTED":           "hello world",
		"SINGLE":           "a # b",
		"INLINE":           "value",
	}
	for key, want := range tests {
		got, ok := doc.Get(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	_, ok := doc.Get("1BAD")
	assert.False(t, ok)
	assert.Equal(t, []string{"DOCKER_PHP_IMAGE", "APP_ENV", "QUOTED", "SINGLE", "INLINE"}, doc.Keys())
}

func TestSet_InPlaceAndAppend(t *testing.T) {
	doc := Parse([]byte("# header\nA=1\nexport B=2\n"))

	doc.Set("A", "changed")
	doc.Set("B", "with space")
	doc.Set("C", "new")

	assert.Equal(t, "# header\nA=changed\nexport B=\"with space\"\nC=new\n", string(doc.Bytes()))
}

func TestSet_DollarValueIsNotInterpolated(t *testing.T) {
	doc := Parse(nil)
	doc.Set("BLACKFIRE_SERVER_TOKEN", "ab$cd")
	doc.Set("MIXED", "it's $5")

	assert.Equal(t, "BLACKFIRE_SERVER_TOKEN='ab$cd'\nMIXED=\"it's $5\"\n", string(doc.Bytes()))

	reparsed := Parse(doc.Bytes())
	v, _ := reparsed.Get("BLACKFIRE_SERVER_TOKEN")
	assert.Equal(t, "ab$cd", v)
}

func TestSet_SameValueKeepsRawLine(t *testing.T) {
	doc := Parse([]byte("A='x'\n"))
	doc.Set("A", "x")
	assert.Equal(t, "A='x'\n", string(doc.Bytes()))
}

func TestSet_DuplicateKeysUpdatesLast(t *testing.T) {
	doc := Parse([]byte("A=1\nA=2\n"))
	doc.Set("A", "3")
	assert.Equal(t, "A=1\nA=3\n", string(doc.Bytes()))
	assert.Equal(t, "3", doc.Map()["A"])
}

func TestSeedMissing(t *testing.T) {
	doc := Parse([]byte("DOCKER_PHP_IMAGE=azerty\nCUSTOM=keep\n"))
	defaults := Parse([]byte("DOCKER_PHP_IMAGE=\nBLACKFIRE_CLIENT_ID=\nAPP_PORT=8080\n"))

	added := doc.SeedMissing(defaults)

	assert.Equal(t, []string{"BLACKFIRE_CLIENT_ID", "APP_PORT"}, added)
	assert.Equal(t, "DOCKER_PHP_IMAGE=azerty\nCUSTOM=keep\nBLACKFIRE_CLIENT_ID=\nAPP_PORT=8080\n", string(doc.Bytes()))
}

func TestClone_IsIndependent(t *testing.T) {
	doc := Parse([]byte("A=1\n"))
	c := doc.Clone()
	c.Set("A", "2")
	v, _ := doc.Get("A")
	assert.Equal(t, "1", v)
}

func TestReadWriteFile(t *testing.T) {
	fsys := afero.NewMemMapFs()

	missing, err := ReadFile(fsys, "/srv/app/var/docker/.env")
	require.NoError(t, err)
	assert.Empty(t, missing.Keys())

	doc := Parse([]byte("A=1\n"))
	doc.Set("B", "two")
	require.NoError(t, WriteFile(fsys, "/srv/app/var/docker/.env", doc))

	data, err := afero.ReadFile(fsys, "/srv/app/var/docker/.env")
	require.NoError(t, err)
	assert.Equal(t, "A=1\nB=two\n", string(data))

	entries, err := afero.ReadDir(fsys, "/srv/app/var/docker")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed away")
}
