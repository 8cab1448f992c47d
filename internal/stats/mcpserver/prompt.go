package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/mcpstat/internal/stats/report"
	"github.com/louisbranch/mcpstat/internal/stats/storage"
)

func reportPrompt(name string) *mcp.Prompt {
	return &mcp.Prompt{
		Name:        name,
		Description: "Renders a markdown usage report for tracked tools, prompts, and resources.",
		Arguments: []*mcp.PromptArgument{
			{Name: "period", Description: "Report period label, such as week or month."},
			{Name: "type", Description: "Restrict the report to one kind (tool, prompt, resource)."},
			{Name: "include_recommendations", Description: "Set to true to append cleanup suggestions."},
		},
	}
}

func (s *Server) reportPromptHandler(promptName string) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		opts := report.Options{}
		if req != nil && req.Params != nil {
			opts.Period = req.Params.Arguments["period"]
			opts.Kind = storage.Kind(req.Params.Arguments["type"])
			opts.IncludeRecommendations = req.Params.Arguments["include_recommendations"] == "true"
		}

		var text string
		err := s.tracker.Measure(ctx, promptName, storage.KindPrompt, func(ctx context.Context) (int64, error) {
			rendered, err := report.Generate(ctx, s.tracker, opts)
			if err != nil {
				return 0, err
			}
			text = rendered
			return int64(len(rendered)), nil
		})
		if err != nil {
			return nil, err
		}

		return &mcp.GetPromptResult{
			Messages: []*mcp.PromptMessage{
				{
					Role:    "user",
					Content: &mcp.TextContent{Text: text},
				},
			},
		}, nil
	}
}
