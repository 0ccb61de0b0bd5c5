package baseline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatValues(v uint32) []uint32 {
	out := make([]uint32, Days)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDefaultTable(t *testing.T) {
	tbl := Default()
	require.NotNil(t, tbl)

	first, err := tbl.At(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(13823), first)

	_, err = tbl.At(366)
	assert.NoError(t, err)
	assert.Len(t, tbl.Values(), Days)
	assert.Same(t, tbl, Default())
}

func TestTable_AtOutOfRange(t *testing.T) {
	tbl := Default()
	for _, doy := range []uint32{0, 367, 1000} {
		_, err := tbl.At(doy)
		assert.ErrorIs(t, err, ErrDayOutOfRange, "doy %d", doy)
	}
}

func TestNew_WrongLength(t *testing.T) {
	_, err := New("short", "", []uint32{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestTable_ValuesIsCopy(t *testing.T) {
	tbl, err := New("flat", "", flatValues(7))
	require.NoError(t, err)

	vals := tbl.Values()
	vals[0] = 99
	got, _ := tbl.At(1)
	assert.Equal(t, uint32(7), got)
}

func TestParse_RejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"missing values": `{"name":"x"}`,
		"too few":        `{"values":[1,2,3]}`,
		"negative":       `{"values":[` + strings.Repeat("1,", Days-1) + `-1]}`,
		"extra field":    `{"values":[` + strings.Repeat("1,", Days-1) + `1],"foo":1}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidTable)
		})
	}
}

func TestLoad_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	raw, err := json.Marshal(Document{Name: "flat", Values: flatValues(10000)})
	require.NoError(t, err)
	jsonPath := filepath.Join(dir, "table.json")
	require.NoError(t, os.WriteFile(jsonPath, raw, 0o600))

	var yml strings.Builder
	yml.WriteString("name: flat\nvalues:\n")
	for i := 0; i < Days; i++ {
		yml.WriteString("  - 10000\n")
	}
	yamlPath := filepath.Join(dir, "table.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yml.String()), 0o600))

	fromJSON, err := Load(jsonPath)
	require.NoError(t, err)
	fromYAML, err := Load(yamlPath)
	require.NoError(t, err)

	assert.True(t, fromJSON.Equal(fromYAML))
	assert.Equal(t, "flat", fromYAML.Name())
}

func TestDigest_StableAndContentSensitive(t *testing.T) {
	a, _ := New("a", "", flatValues(1))
	b, _ := New("a", "", flatValues(1))
	c, _ := New("a", "", flatValues(2))

	da, err := a.Digest()
	require.NoError(t, err)
	db, _ := b.Digest()
	dc, _ := c.Digest()

	assert.True(t, strings.HasPrefix(da, "sha256:"))
	assert.Equal(t, da, db)
	assert.NotEqual(t, da, dc)
}
