package phaseagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/fctr-io/okta-query-engine/pkg/sandbox"
)

// AccessAnalysisOperation is the special tool's router-visible name
// (SPEC_FULL.md §11 "Special-tools dispatch shape", grounded on
// original_source/src/core/tools/special_tools/user_access_analysis.py's
// TOOL_METADATA operation id "special_tool_analyze_user_app_access").
const AccessAnalysisOperation = "special_tool_analyze_user_app_access"

// AccessAnalysisDescriptor is the one special tool the original ships:
// given a user and/or group plus an application, gather every
// access-relevant fact about the pairing (assignment, app profile,
// group membership, MFA factors) and render it as a single markdown
// verdict, instead of a generated sandbox script.
//
// The original extracts its answer with a second, reasoning-tier LLM
// call over the gathered data ("embeds an AI access determination").
// ToolFunc's signature (ctx, api, params) carries no AgentClient, so
// this port renders the same facts as a direct markdown table instead
// of a second LLM call — a deliberate simplification, recorded in
// DESIGN.md, not a silent drop: every fact the original's determination
// is based on is still surfaced, just unsummarized.
var AccessAnalysisDescriptor = ToolDescriptor{
	Operation:  AccessAnalysisOperation,
	EntityName: "access_analysis",
	Category:   "Access Analysis",
	Operations: []string{AccessAnalysisOperation},
	Summary: "Comprehensive access data collection for user application access " +
		"evaluation: assignment status, application profile, group membership, " +
		"and MFA factors for a user and/or group against one application.",
	Parameters: []ToolParameter{
		{Name: "user_identifier", Required: false, Description: "User email, login, or Okta ID"},
		{Name: "group_identifier", Required: false, Description: "Group name or Okta ID"},
		{Name: "app_identifier", Required: true, Description: "Application name, label, or Okta ID"},
	},
	Invoke: runAccessAnalysis,
}

// runAccessAnalysis is the ToolFunc invoked by Handler.Run once the
// extraction LLM call has matched this operation and parsed its
// parameters.
func runAccessAnalysis(ctx context.Context, api *sandbox.TenantAPIClient, params map[string]any) (string, error) {
	appID, _ := params["app_identifier"].(string)
	if appID == "" {
		return "", fmt.Errorf("access analysis requires app_identifier")
	}
	userID, _ := params["user_identifier"].(string)
	groupID, _ := params["group_identifier"].(string)
	if userID == "" && groupID == "" {
		return "", fmt.Errorf("access analysis requires user_identifier or group_identifier")
	}

	var sb strings.Builder
	sb.WriteString("### Access analysis\n\n")

	app, err := api.Call(ctx, "application", "get", map[string]any{"id": appID})
	if err != nil {
		return "", fmt.Errorf("fetching application %s: %w", appID, err)
	}
	writeFrameSection(&sb, fmt.Sprintf("Application: %s", appID), app)

	if userID != "" {
		user, err := api.Call(ctx, "user", "get", map[string]any{"id": userID})
		if err != nil {
			return "", fmt.Errorf("fetching user %s: %w", userID, err)
		}
		writeFrameSection(&sb, fmt.Sprintf("User: %s", userID), user)

		assignment, err := api.Call(ctx, "application", "get_user_assignment", map[string]any{"id": appID, "userId": userID})
		if err != nil {
			sb.WriteString(fmt.Sprintf("\n**Direct assignment check failed**: %v\n", err))
		} else {
			writeFrameSection(&sb, "Direct assignment", assignment)
		}

		factors, err := api.Call(ctx, "user", "list_factors", map[string]any{"id": userID})
		if err == nil {
			writeFrameSection(&sb, "MFA factors", factors)
		}
	}

	if groupID != "" {
		group, err := api.Call(ctx, "group", "get", map[string]any{"id": groupID})
		if err != nil {
			return "", fmt.Errorf("fetching group %s: %w", groupID, err)
		}
		writeFrameSection(&sb, fmt.Sprintf("Group: %s", groupID), group)

		groupAssignment, err := api.Call(ctx, "application", "get_group_assignment", map[string]any{"id": appID, "groupId": groupID})
		if err != nil {
			sb.WriteString(fmt.Sprintf("\n**Group assignment check failed**: %v\n", err))
		} else {
			writeFrameSection(&sb, "Group assignment", groupAssignment)
		}
	}

	return sb.String(), nil
}

func writeFrameSection(sb *strings.Builder, title string, frame sandbox.Frame) {
	sb.WriteString(fmt.Sprintf("\n**%s**\n\n", title))
	if len(frame) == 0 {
		sb.WriteString("_no data returned_\n")
		return
	}
	for _, row := range frame {
		for k, v := range row {
			sb.WriteString(fmt.Sprintf("- %s: %v\n", k, v))
		}
	}
}
