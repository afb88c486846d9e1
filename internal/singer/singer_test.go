// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package singer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/clickup-tap/internal/streams"
	"github.com/pdiddy/clickup-tap/pkg/types"
)

func graph(t *testing.T) *streams.Graph {
	t.Helper()
	g, err := streams.Default()
	require.NoError(t, err)
	return g
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestWriterMessages(t *testing.T) {
	g := graph(t)
	space, _ := g.Lookup("space")

	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, w.WriteSchema(space))
	require.NoError(t, w.WriteRecord(space, types.Record{"id": "S1", "name": "R&D <core>"}, types.Context{"team_id": "1"}))
	require.NoError(t, w.Flush())

	assert.Contains(t, buf.String(), `R&D <core>`, "HTML characters are not escaped")
	msgs := lines(t, &buf)
	require.Len(t, msgs, 2)

	assert.Equal(t, "SCHEMA", msgs[0]["type"])
	assert.Equal(t, "space", msgs[0]["stream"])
	assert.Equal(t, []any{"id"}, msgs[0]["key_properties"])
	assert.Equal(t, "object", msgs[0]["schema"].(map[string]any)["type"])

	assert.Equal(t, "RECORD", msgs[1]["type"])
	assert.Equal(t, map[string]any{"id": "S1", "name": "R&D <core>"}, msgs[1]["record"])
	assert.Equal(t, "2026-03-01T12:00:00Z", msgs[1]["time_extracted"])
}

func TestWriterBuffersUntilFlush(t *testing.T) {
	g := graph(t)
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteSchema(g.Root()))
	assert.Zero(t, buf.Len())
	require.NoError(t, w.Flush())
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestCatalog(t *testing.T) {
	c := BuildCatalog(graph(t))
	require.Len(t, c.Streams, 13)

	var buf bytes.Buffer
	require.NoError(t, c.WriteJSON(&buf))

	var decoded Catalog
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	byName := map[string]CatalogEntry{}
	for _, e := range decoded.Streams {
		byName[e.Stream] = e
	}
	assert.Equal(t, "", byName["team"].Metadata.ParentStream)
	assert.Equal(t, "folderless_list", byName["custom_field"].Metadata.ParentStream)
	assert.Equal(t, "$.shared", byName["shared_hierarchy"].Metadata.RecordsPath)
	assert.Equal(t, "FULL_TABLE", byName["goal"].Metadata.ReplicationMethod)
	assert.NotEmpty(t, byName["folder_task"].Schema)
}

func TestCatalogYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, BuildCatalog(graph(t)).WriteYAML(&buf))

	var decoded struct {
		Streams []struct {
			Stream   string `yaml:"stream"`
			Metadata struct {
				Path string `yaml:"path"`
			} `yaml:"metadata"`
		} `yaml:"streams"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Streams, 13)
	assert.Equal(t, "team", decoded.Streams[0].Stream)
	assert.Equal(t, "/team", decoded.Streams[0].Metadata.Path)
	assert.NotContains(t, buf.String(), "schema:")
}
