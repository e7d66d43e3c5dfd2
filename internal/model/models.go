package model

import (
	"strings"
	"time"
)

// Agent is the support staff member a client is assigned to.
type Agent struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Client is a roster entry: an end customer with an ongoing conversation.
type Client struct {
	ID              string    `json:"_id"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Language        string    `json:"language,omitempty"`
	AssignedAgent   *Agent    `json:"assignedAgent,omitempty"`
	LastMessage     string    `json:"lastMessage,omitempty"`
	LastMessageTime time.Time `json:"lastMessageTime"`
}

func (c Client) Name() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.ID
	}
	return name
}

// AgentID returns the id of the assigned agent, or "" when unassigned.
func (c Client) AgentID() string {
	if c.AssignedAgent == nil {
		return ""
	}
	return c.AssignedAgent.ID
}

// RoomRequest is the payload for room membership events.
type RoomRequest struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId,omitempty"`
}
