package models

import "time"

// IssueType is the kind of work a ticket tracks.
type IssueType string

const (
	IssueTypeStory IssueType = "Story"
	IssueTypeBug   IssueType = "Bug"
	IssueTypeTask  IssueType = "Task"
	IssueTypeEpic  IssueType = "Epic"
)

// Priority is the urgency of a ticket.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Ticket is the UI-ready view of one issue-tracker item. Every field is always populated.
type Ticket struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Type        IssueType `json:"type"`
	Priority    Priority  `json:"priority"`
	Assignee    string    `json:"assignee"`
	Status      string    `json:"status"`
	Created     string    `json:"created"`
	Description string    `json:"description"`
}

// CachedTicket is a ticket remembered from an earlier lookup.
type CachedTicket struct {
	Ticket
	FetchedAt time.Time `json:"fetchedAt"`
}
