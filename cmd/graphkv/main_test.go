package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/orneryd/graphkv/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want storage.Value
	}{
		{"42", storage.NewInt(42)},
		{"-7", storage.NewInt(-7)},
		{"1.5", storage.NewFloat(1.5)},
		{"true", storage.NewBool(true)},
		{"false", storage.NewBool(false)},
		{"Ada", storage.NewString("Ada")},
		{`"42"`, storage.NewString("42")},
		{"", storage.NewString("")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseValue(tt.in)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseProps(t *testing.T) {
	props, err := parseProps([]string{"name=Ada", "age=36", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", props["name"].Any())
	assert.Equal(t, int64(36), props["age"].Any())
	assert.Equal(t, "a=b", props["note"].Any())

	_, err = parseProps([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseProps([]string{"=x"})
	assert.Error(t, err)
}

func TestParseIndexFlags(t *testing.T) {
	defs, err := parseIndexFlags([]string{"by_name:name", "email"})
	require.NoError(t, err)
	assert.Equal(t, []storage.IndexDef{{Name: "by_name", Property: "name"}, {Name: "email"}}, defs)

	_, err = parseIndexFlags([]string{":name"})
	assert.Error(t, err)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_InitAddLookupDrop(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "graphkv.yaml")
	common := []string{"--config", cfgPath}

	_, err := run(t, append([]string{"init", "--data-dir", filepath.Join(dir, "data"), "--index", "by_name:name"}, common...)...)
	require.NoError(t, err)

	out, err := run(t, append([]string{"add-node", "--label", "person", "--prop", "name=Ada", "--index", "by_name"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, ":person")
	id := strings.TrimPrefix(strings.Fields(out)[0], "(")
	id = strings.Split(id, ":")[0]

	out, err = run(t, append([]string{"lookup", "by_name", "Ada"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = run(t, append([]string{"add-node", "--label", "person", "--prop", "age=3", "--index", "by_name"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, out, "cause:")

	_, err = run(t, append([]string{"drop", id}, common...)...)
	require.NoError(t, err)

	_, err = run(t, append([]string{"get-node", id}, common...)...)
	assert.Error(t, err)

	out, err = run(t, append([]string{"stats"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "nodes")
}
