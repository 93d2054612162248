package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aboutme/cards/internal/directory"
	"github.com/aboutme/cards/internal/listing"
)

// MCPDeps holds dependencies for the MCP server. Every tool acts as UserID.
type MCPDeps struct {
	Directory *directory.Service
	UserID    string
}

// NewMCPServer creates an MCP server with the directory tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"cards",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("AboutMe Cards: browse and compare the profiles of your organizations' members."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_organizations",
			mcp.WithDescription("List the organizations you belong to, with your role in each."),
		),
		mcpListOrganizations(deps),
	)

	s.AddTool(
		mcp.NewTool("search_profiles",
			mcp.WithDescription("Search the member cards of an organization. Only information the members share is returned."),
			mcp.WithString("org_id", mcp.Description("Organization id"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Matches name, title or skills")),
			mcp.WithArray("skills", mcp.Description("Only members with at least one of these skills")),
			mcp.WithArray("teams", mcp.Description("Only members of at least one of these teams")),
			mcp.WithString("sort", mcp.Description("name, title, skillCount or teamCount (default name)")),
			mcp.WithString("dir", mcp.Description("asc or desc (default asc)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpSearchProfiles(deps),
	)

	s.AddTool(
		mcp.NewTool("get_profile",
			mcp.WithDescription("Get one member's card as you are allowed to see it."),
			mcp.WithString("org_id", mcp.Description("Organization id"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Member user id"), mcp.Required()),
		),
		mcpGetProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("compare_profiles",
			mcp.WithDescription("Compare two or more members: shared skills, interests and teams plus a similarity score."),
			mcp.WithString("org_id", mcp.Description("Organization id"), mcp.Required()),
			mcp.WithArray("user_ids", mcp.Description("Member user ids to compare"), mcp.Required()),
		),
		mcpCompareProfiles(deps),
	)

	s.AddTool(
		mcp.NewTool("skills_graph",
			mcp.WithDescription("Skills co-occurrence graph of an organization."),
			mcp.WithString("org_id", mcp.Description("Organization id"), mcp.Required()),
			mcp.WithNumber("top", mcp.Description("Keep only the most frequent skills (default all)")),
		),
		mcpSkillsGraph(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"cards://me",
			"My Profile",
			mcp.WithResourceDescription("Your own profile, including private sections, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceMe(deps),
	)

	return s
}

func mcpListOrganizations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		orgs, err := deps.Directory.ListOrganizations(ctx, deps.UserID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing organizations failed: %v", err)), nil
		}
		return mcpJSON(orgs)
	}
}

func mcpSearchProfiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		orgID, err := req.RequireString("org_id")
		if err != nil {
			return mcpError("org_id is required"), nil
		}

		field, err := listing.ParseField(req.GetString("sort", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		dir, err := listing.ParseDirection(req.GetString("dir", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		limit := req.GetInt("limit", 0)
		if limit < 0 {
			limit = 0
		}

		res, err := deps.Directory.Browse(ctx, deps.UserID, orgID, directory.BrowseQuery{
			Criteria: listing.Criteria{
				SearchTerm: req.GetString("query", ""),
				Skills:     req.GetStringSlice("skills", nil),
				Teams:      req.GetStringSlice("teams", nil),
			},
			Field:     field,
			Direction: dir,
			Limit:     limit,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpGetProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		orgID, err := req.RequireString("org_id")
		if err != nil {
			return mcpError("org_id is required"), nil
		}
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		card, err := deps.Directory.GetCard(ctx, deps.UserID, orgID, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("get profile failed: %v", err)), nil
		}
		return mcpJSON(card)
	}
}

func mcpCompareProfiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		orgID, err := req.RequireString("org_id")
		if err != nil {
			return mcpError("org_id is required"), nil
		}
		ids := req.GetStringSlice("user_ids", nil)

		cmp, err := deps.Directory.Compare(ctx, deps.UserID, orgID, ids)
		if err != nil {
			return mcpError(fmt.Sprintf("compare failed: %v", err)), nil
		}
		return mcpJSON(cmp)
	}
}

func mcpSkillsGraph(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		orgID, err := req.RequireString("org_id")
		if err != nil {
			return mcpError("org_id is required"), nil
		}

		g, err := deps.Directory.SkillGraph(ctx, deps.UserID, orgID, req.GetInt("top", 0))
		if err != nil {
			return mcpError(fmt.Sprintf("skills graph failed: %v", err)), nil
		}
		return mcpJSON(g)
	}
}

func mcpResourceMe(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Directory.MyProfile(ctx, deps.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
