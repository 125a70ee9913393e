package intake

import (
	"fmt"
	"strings"
)

// Assistant texts. Slot prompts ask for the next pending slot; the rest
// report an outcome.
const (
	PromptTitle     = "Hi! I can help you create a new deal. What's the deal name?"
	PromptCompany   = "Great! Which company is this deal with?"
	PromptAmount    = "What's the deal value (in dollars)?"
	PromptStage     = "What stage is the deal in? (e.g., proposal, qualified)"
	PromptCloseDate = "When is the expected close date? (YYYY-MM-DD)"
	PromptContacts  = "Do you want to associate any contacts? Type comma-separated contact IDs (or leave blank)."

	MsgTitleEmpty       = "The deal needs a name. What's the deal name?"
	MsgCompanyEmpty     = "Please type the company name for this deal."
	MsgCompanyNotFound  = "I couldn't find that company. Please try again."
	MsgLookupError      = "Error looking up company."
	MsgAmountInvalid    = "I couldn't read a number in that. What's the deal value (in dollars)?"
	MsgStageEmpty       = "Please tell me the deal stage."
	MsgCloseDateEmpty   = "Please give the expected close date (YYYY-MM-DD)."
	MsgCloseDateInvalid = "That doesn't look like a date. Please use YYYY-MM-DD."
	MsgCreating         = "Creating your deal..."
	MsgCreated          = "Deal created successfully!"
	MsgCreateFailed     = "Failed to create deal."
)

func msgStageInvalid(allowed []string) string {
	return fmt.Sprintf("Stage must be one of: %s.", strings.Join(allowed, ", "))
}
