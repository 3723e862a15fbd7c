package models

import "strings"

// JiraCredentials are the persisted issue-tracker connection settings.
type JiraCredentials struct {
	BaseURL  string `json:"baseUrl"`
	Email    string `json:"email"`
	APIToken string `json:"apiToken"`
}

// Configured reports whether all three settings are present.
func (c JiraCredentials) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" &&
		strings.TrimSpace(c.Email) != "" &&
		strings.TrimSpace(c.APIToken) != ""
}

// Masked returns a copy safe for display, keeping only the last four token characters.
func (c JiraCredentials) Masked() JiraCredentials {
	out := c
	if n := len(c.APIToken); n > 4 {
		out.APIToken = strings.Repeat("*", n-4) + c.APIToken[n-4:]
	} else if n > 0 {
		out.APIToken = strings.Repeat("*", n)
	}
	return out
}
