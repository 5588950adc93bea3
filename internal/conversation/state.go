package conversation

import "sort"

// State identifies which part of the business profile the conversation
// is currently collecting. The server drives transitions through
// terminal frames; the client only jumps states locally for field
// edits.
type State string

const (
	StateWelcome            State = "welcome"
	StateCompanyName        State = "company_name"
	StateCompanyType        State = "company_type"
	StateDescription        State = "description"
	StateContactInfo        State = "contact_info"
	StateProducts           State = "products"
	StateExportDestinations State = "export_destinations"
	StateCertifications     State = "certifications"
	StateTeamMembers        State = "team_members"
	StateDesignPreferences  State = "design_preferences"
	StateReview             State = "review"
	StateComplete           State = "complete"
)

// welcomeText is synthesized locally on fresh sessions so the UI has
// content before the first network round trip completes.
const welcomeText = "Hi! I'm here to help you build a website for your business. " +
	"I'll ask a few questions about your company, products and preferences, " +
	"and you can answer in your own words. Let's start: what is your company called?"

type jumpEntry struct {
	state  State
	prompt string
}

// jumpTable maps editable profile fields to the conversation state that
// collects them, with a locally synthesized prompt. Fields not listed
// here cannot be edited by jumping.
var jumpTable = map[string]jumpEntry{
	"company_name": {
		StateCompanyName,
		"Sure, let's update your company name. What should it be?",
	},
	"company_type": {
		StateCompanyType,
		"No problem. What type of business are you? For example: manufacturer, trading company, or service provider.",
	},
	"description": {
		StateDescription,
		"Alright, tell me again what your business does, in a sentence or two.",
	},
	"contact_info": {
		StateContactInfo,
		"Let's revisit your contact details. How should buyers reach you?",
	},
	"products": {
		StateProducts,
		"Okay, let's go over your products again. What do you sell?",
	},
	"export_destinations": {
		StateExportDestinations,
		"Which countries or regions do you export to?",
	},
	"certifications": {
		StateCertifications,
		"Let's update your certifications. Which ones does your business hold?",
	},
	"team_members": {
		StateTeamMembers,
		"Let's revisit your team. Who should appear on the website?",
	},
	"design_preferences": {
		StateDesignPreferences,
		"Happy to change the look. What style and colors do you have in mind?",
	},
}

func jumpTarget(field string) (State, string, bool) {
	entry, ok := jumpTable[field]
	if !ok {
		return "", "", false
	}
	return entry.state, entry.prompt, true
}

// EditableFields lists the fields JumpToField accepts, in a stable
// order for display.
func EditableFields() []string {
	fields := make([]string, 0, len(jumpTable))
	for field := range jumpTable {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
