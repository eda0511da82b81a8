package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/blenddna/pkg/scene"
	"github.com/twinfer/blenddna/pkg/stream"
	"github.com/twinfer/blenddna/testutil"
)

func writeSample(t *testing.T) string {
	t.Helper()
	F := testutil.F
	b := testutil.NewBuilder(stream.Layout{PointerSize: 8}).
		Version("280").
		Type("void", 0).
		Struct("ID", F("char", "name[24]"), F("short", "flag")).
		Struct("ListBase", F("void", "*first"), F("void", "*last")).
		Struct("Scene", F("ID", "id"), F("Object", "*camera"), F("ListBase", "base")).
		Struct("Base", F("Base", "*next"), F("Object", "*object")).
		Struct("Object", F("ID", "id"), F("short", "type"), F("Object", "*parent"), F("void", "*data"))
	id := func(name string) *testutil.Encoder { return b.Encoder().Chars(name, 24).Short(0) }

	b.Block("SC", 0x100, "Scene", 1, id("SCMain").Ptr(0x300).Ptr(0x200).Ptr(0x200).Bytes())
	b.Block("DATA", 0x200, "Base", 1, b.Encoder().Ptr(0).Ptr(0x300).Bytes())
	b.Block("OB", 0x300, "Object", 1, id("OBEmpty").Short(0).Ptr(0).Ptr(0).Bytes())

	path := filepath.Join(t.TempDir(), "sample.blend")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(context.Background(), append([]string{"blenddna"}, args...))
	return out.String(), errOut.String(), err
}

func TestHeader(t *testing.T) {
	path := writeSample(t)

	out, _, err := run(t, "header", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    280")
	assert.Contains(t, out, "Pointers:   8 bytes")
	assert.Contains(t, out, "little endian")
	assert.Contains(t, out, "Blocks:     3")

	out, _, err = run(t, "--json", "header", path)
	require.NoError(t, err)
	var info headerInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "280", info.Version)
	assert.Equal(t, 8, info.PointerSize)
	assert.False(t, info.BigEndian)
	assert.Equal(t, 3, info.Blocks)
}

func TestDNA(t *testing.T) {
	path := writeSample(t)

	out, _, err := run(t, "dna", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Scene")
	assert.Contains(t, out, "ListBase")
	assert.NotContains(t, out, "float", "primitives are hidden")

	out, _, err = run(t, "--json", "dna", "--struct", "Base", path)
	require.NoError(t, err)
	var info structInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "Base", info.Name)
	assert.Equal(t, uint64(16), info.Size)
	require.Len(t, info.Fields, 2)
	assert.Equal(t, "*object", info.Fields[1].Name)
	assert.Equal(t, uint64(8), info.Fields[1].Offset)

	_, _, err = run(t, "dna", "--struct", "Nope", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope")
}

func TestBlocks(t *testing.T) {
	path := writeSample(t)

	out, _, err := run(t, "--json", "blocks", "--where", `code == "OB"`, path)
	require.NoError(t, err)
	var blocks []blockInfo
	require.NoError(t, json.Unmarshal([]byte(out), &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, "0x300", blocks[0].Address)
	assert.Equal(t, "Object", blocks[0].Type)

	_, _, err = run(t, "blocks", "--where", "code ==", path)
	require.Error(t, err)
}

func TestDump(t *testing.T) {
	path := writeSample(t)

	out, _, err := run(t, "dump", "--follow", "1", "--where", `type == "Base"`, path)
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	fields := entries[0]["fields"].(map[string]any)
	obj, ok := fields["*object"].(map[string]any)
	require.True(t, ok, "pointer is inlined")
	assert.Equal(t, "Object", obj["$type"])
}

func TestScene(t *testing.T) {
	path := writeSample(t)

	out, logs, err := run(t, "--log-level", "warn", "scene", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Scene Main")
	assert.Contains(t, out, "camera: Empty")
	assert.Contains(t, out, "Empty")
	assert.Contains(t, logs, "Missing field, using default")

	out, _, err = run(t, "--json", "--log-level", "error", "scene", path)
	require.NoError(t, err)
	var info scene.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "Main", info.Name)
	require.Len(t, info.Objects, 1)
	assert.Equal(t, scene.ObjectSummary{Name: "Empty", Type: "empty"}, info.Objects[0])
}

func TestErrors(t *testing.T) {
	_, _, err := run(t, "header")
	require.EqualError(t, err, "missing input file")

	_, _, err = run(t, "header", filepath.Join(t.TempDir(), "missing.blend"))
	require.Error(t, err)

	_, _, err = run(t, "--log-level", "loud", "header", writeSample(t))
	require.Error(t, err)
}
