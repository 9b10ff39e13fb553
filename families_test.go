package pup

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pup/testutil"
)

func TestFamilies_DefaultsSurviveYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteFamilies(&buf, DefaultFamilies()))

	loaded, err := LoadFamilies(&buf)
	require.NoError(t, err)
	assert.Equal(t, DefaultFamilies(), loaded)
}

func TestLoadFamilies_CustomTable(t *testing.T) {
	t.Parallel()

	const doc = `
families:
  - name: custom
    magic: "534C4232"
    kind: slb2
    order: little
    header_size: 0x200
    version: {offset: 4, width: 4}
    count: {offset: 0xC, width: 4}
    table_at: 0x20
    layout: slb2
    max_count: 1
    sector_size: 0x200
`
	families, err := LoadFamilies(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, families, 1)

	buf := testutil.BuildSLB2([]testutil.SLB2Entry{
		{Name: "one", Data: []byte("1")},
		{Name: "two", Data: []byte("2")},
	})
	a := load(t, buf, WithFamilies(families))
	info, err := a.Info()
	require.NoError(t, err)
	assert.Equal(t, "custom", info.Family)
	assert.True(t, info.Suspicious)
	require.Len(t, info.Entries, 1)
}

func TestLoadFamilies_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":         "families: []",
		"unknown field": "families:\n  - name: x\n    magic: \"00\"\n    order: little\n    header_size: 4\n    layout: none\n    bogus: 1\n",
		"bad magic":     "families:\n  - name: x\n    magic: \"zz\"\n    order: little\n    header_size: 4\n    layout: none\n",
		"bad order":     "families:\n  - name: x\n    magic: \"00\"\n    order: middle\n    header_size: 4\n    layout: none\n",
		"bad layout":    "families:\n  - name: x\n    magic: \"00\"\n    order: little\n    header_size: 4\n    layout: round\n",
		"invalid":       "families:\n  - name: x\n    magic: \"0000\"\n    order: little\n    header_size: 1\n    layout: none\n",
	}
	for name, doc := range cases {
		_, err := LoadFamilies(strings.NewReader(doc))
		require.Error(t, err, name)
	}
}
