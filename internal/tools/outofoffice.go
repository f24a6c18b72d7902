package tools

import (
	"context"
	"encoding/json"

	"github.com/pampalabs/gabriela/internal/storage"

	"github.com/google/uuid"
)

// SetOutOfOfficeTool records that a team member cannot go to the office on a date.
type SetOutOfOfficeTool struct {
	Store storage.Store
}

func (t *SetOutOfOfficeTool) Name() string { return "set_cannot_go_to_office" }

func (t *SetOutOfOfficeTool) Description() string {
	return "Sets a date when a team member cannot go to the office."
}

func (t *SetOutOfOfficeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team_member": {"type": "string", "description": "The name of the team member who cannot go to the office."},
			"date": {"type": "string", "description": "The date when the team member cannot go to the office (YYYY-MM-DD)."},
			"reason": {"type": "string", "description": "Optional reason for not being able to go to the office."}
		},
		"required": ["team_member", "date"]
	}`)
}

func (t *SetOutOfOfficeTool) Invoke(ctx context.Context, _ string, args json.RawMessage) Result {
	var in struct {
		TeamMember string `json:"team_member"`
		Date       string `json:"date"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failf("Error: could not parse arguments for %s: %s", t.Name(), err)
	}
	if in.TeamMember == "" || in.Date == "" {
		return failf("Error: team_member and date are required")
	}

	entry := storage.OutOfOfficeEntry{
		ID:         uuid.New(),
		TeamMember: in.TeamMember,
		Date:       in.Date,
		Reason:     in.Reason,
	}
	if err := t.Store.AddOutOfOffice(ctx, entry); err != nil {
		return failf("Error setting out of office date: %s", err)
	}
	return okf("Date set for %s who cannot go to the office on %s", in.TeamMember, in.Date)
}

// GetOutOfOfficeTool lists out-of-office entries filtered by team member
// and/or date; both filters are optional and combine independently.
type GetOutOfOfficeTool struct {
	Store storage.Store
}

func (t *GetOutOfOfficeTool) Name() string { return "get_cannot_go_to_office" }

func (t *GetOutOfOfficeTool) Description() string {
	return "Retrieves dates when team members cannot go to the office, optionally filtered by team member and/or date."
}

func (t *GetOutOfOfficeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"team_member": {"type": "string", "description": "Optional team member filter."},
			"date": {"type": "string", "description": "Optional date filter (YYYY-MM-DD)."}
		}
	}`)
}

func (t *GetOutOfOfficeTool) Invoke(ctx context.Context, _ string, args json.RawMessage) Result {
	var in struct {
		TeamMember string `json:"team_member"`
		Date       string `json:"date"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return failf("Error: could not parse arguments for %s: %s", t.Name(), err)
		}
	}

	entries, err := t.Store.GetOutOfOffice(ctx, in.TeamMember, in.Date)
	if err != nil {
		return failf("Error retrieving out of office dates: %s", err)
	}
	if len(entries) == 0 {
		return ok("No out of office entries found")
	}
	return okJSON(entries)
}
