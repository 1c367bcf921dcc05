// Package mcptools exposes the datasets and the chat service as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"ai-datalab/internal/chat"
	"ai-datalab/internal/dataset"
	"ai-datalab/internal/logging"
)

const defaultPreviewRows = 5

type Datasets interface {
	List() ([]string, error)
	Resolve(name string) (string, error)
}

type Chatter interface {
	Handle(ctx context.Context, sessionID, message string) (chat.Reply, error)
}

type ListDatasetsParams struct{}

type DescribeDatasetParams struct {
	File string `json:"file" mcp:"CSV file name relative to the data directory"`
	Rows int    `json:"rows,omitempty" mcp:"number of sample rows to include (default 5)"`
}

type DescribeColumnParams struct {
	File   string `json:"file" mcp:"CSV file name relative to the data directory"`
	Column string `json:"column" mcp:"column name"`
}

type AskParams struct {
	Message   string `json:"message" mcp:"question about the data in natural language"`
	SessionID string `json:"session_id,omitempty" mcp:"conversation to continue; a new one is started when empty"`
}

type Tools struct {
	datasets Datasets
	chat     Chatter
	log      *zap.Logger
}

func New(datasets Datasets, chatter Chatter, logger *zap.Logger) *Tools {
	return &Tools{datasets: datasets, chat: chatter, log: logging.OrNop(logger).Named("mcp")}
}

// NewServer registers every tool on a new MCP server.
func NewServer(t *Tools, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "ai-datalab", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_datasets",
		Description: "Lists the CSV datasets available for analysis",
	}, t.ListDatasets)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "describe_dataset",
		Description: "Returns shape, column types, missing values, numeric statistics and sample rows of a CSV dataset",
	}, t.DescribeDataset)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "describe_column",
		Description: "Returns statistics for a single column of a CSV dataset",
	}, t.DescribeColumn)
	if t.chat != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "ask_datalab",
			Description: "Asks the data analysis assistant a question; answers use the conversation history of the session",
		}, t.Ask)
	}
	return server
}

// Serve runs the server over stdin/stdout until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, mcp.NewStdioTransport())
}

func (t *Tools) ListDatasets(ctx context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[ListDatasetsParams]) (*mcp.CallToolResultFor[any], error) {
	files, err := t.datasets.List()
	if err != nil {
		return errorResult("failed to list datasets: %v", err), nil
	}
	if len(files) == 0 {
		return textResult("No CSV files found in the data directory."), nil
	}
	return textResult(strings.Join(files, "\n")), nil
}

type datasetDescription struct {
	File    string           `json:"file"`
	Summary dataset.Summary  `json:"summary"`
	Sample  []dataset.Record `json:"sample"`
}

func (t *Tools) DescribeDataset(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[DescribeDatasetParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	frame, res := t.load(args.File)
	if res != nil {
		return res, nil
	}
	rows := args.Rows
	if rows <= 0 {
		rows = defaultPreviewRows
	}
	return jsonResult(datasetDescription{File: args.File, Summary: frame.Summary(), Sample: frame.Head(rows)})
}

func (t *Tools) DescribeColumn(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[DescribeColumnParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	frame, res := t.load(args.File)
	if res != nil {
		return res, nil
	}
	info, err := frame.Column(args.Column)
	if err != nil {
		return errorResult("%v", err), nil
	}
	return jsonResult(info)
}

func (t *Tools) Ask(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[AskParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	reply, err := t.chat.Handle(ctx, args.SessionID, args.Message)
	if err != nil {
		t.log.Warn("ask failed", zap.String("session_id", args.SessionID), zap.Error(err))
		return errorResult("Error processing message: %v", err), nil
	}
	return jsonResult(reply)
}

func (t *Tools) load(file string) (*dataset.Frame, *mcp.CallToolResultFor[any]) {
	if strings.TrimSpace(file) == "" {
		return nil, errorResult("file is required")
	}
	path, err := t.datasets.Resolve(file)
	if err != nil {
		return nil, errorResult("%v", err)
	}
	frame, err := dataset.Load(path)
	if err != nil {
		return nil, errorResult("failed to load %s: %v", file, err)
	}
	return frame, nil
}

func textResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResultFor[any], error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return textResult(string(data)), nil
}

func errorResult(format string, args ...any) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}
