package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-datalab/internal/chat"
	"ai-datalab/internal/dataset"
)

type fakeChat struct {
	reply chat.Reply
	err   error
}

func (f fakeChat) Handle(context.Context, string, string) (chat.Reply, error) {
	return f.reply, f.err
}

func newTools(t *testing.T, c Chatter) *Tools {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.csv"), []byte("region,amount\nNorth,10\nSouth,20\nNorth,30\n"), 0o644))
	return New(dataset.NewCatalog(dir, "", nil), c, nil)
}

func text(t *testing.T, res *mcp.CallToolResultFor[any]) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestListDatasets(t *testing.T) {
	tools := newTools(t, nil)
	res, err := tools.ListDatasets(context.Background(), nil, &mcp.CallToolParamsFor[ListDatasetsParams]{})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "sales.csv", text(t, res))
}

func TestDescribeDataset(t *testing.T) {
	tools := newTools(t, nil)
	res, err := tools.DescribeDataset(context.Background(), nil, &mcp.CallToolParamsFor[DescribeDatasetParams]{
		Arguments: DescribeDatasetParams{File: "sales.csv", Rows: 2},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var got struct {
		File    string
		Summary dataset.Summary
		Sample  []map[string]any
	}
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, "sales.csv", got.File)
	assert.Equal(t, [2]int{3, 2}, got.Summary.Shape)
	assert.InDelta(t, 20.0, got.Summary.NumericSummary["amount"].Mean, 1e-9)
	assert.Len(t, got.Sample, 2)
}

func TestDescribeDataset_Errors(t *testing.T) {
	tools := newTools(t, nil)
	for _, file := range []string{"", "missing.csv", "../etc/passwd"} {
		res, err := tools.DescribeDataset(context.Background(), nil, &mcp.CallToolParamsFor[DescribeDatasetParams]{
			Arguments: DescribeDatasetParams{File: file},
		})
		require.NoError(t, err)
		assert.True(t, res.IsError, "file %q", file)
	}
}

func TestDescribeColumn(t *testing.T) {
	tools := newTools(t, nil)

	res, err := tools.DescribeColumn(context.Background(), nil, &mcp.CallToolParamsFor[DescribeColumnParams]{
		Arguments: DescribeColumnParams{File: "sales.csv", Column: "region"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	var info dataset.ColumnInfo
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &info))
	assert.Equal(t, "object", info.Dtype)
	assert.Equal(t, 2, info.UniqueCount)

	res, err = tools.DescribeColumn(context.Background(), nil, &mcp.CallToolParamsFor[DescribeColumnParams]{
		Arguments: DescribeColumnParams{File: "sales.csv", Column: "nope"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "column not found")
}

func TestAsk(t *testing.T) {
	tools := newTools(t, fakeChat{reply: chat.Reply{Response: "North sells more.", SessionID: "mcp-1"}})
	res, err := tools.Ask(context.Background(), nil, &mcp.CallToolParamsFor[AskParams]{
		Arguments: AskParams{Message: "who sells more?"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.JSONEq(t, `{"response": "North sells more.", "session_id": "mcp-1"}`, text(t, res))

	tools = newTools(t, fakeChat{err: errors.New("intent stage: down")})
	res, err = tools.Ask(context.Background(), nil, &mcp.CallToolParamsFor[AskParams]{
		Arguments: AskParams{Message: "hi"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "Error processing message: intent stage: down", text(t, res))
}

func TestNewServer(t *testing.T) {
	assert.NotNil(t, NewServer(newTools(t, fakeChat{}), "test"))
}
