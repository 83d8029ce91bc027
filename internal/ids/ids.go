// Package ids mints the identifiers the core hands out to clients:
// conversation ids, subscription ids, login ids, and auxiliary-agent ids.
// All are UUIDv4, matching the corpus's use of google/uuid wherever a
// server-generated opaque id is needed.
package ids

import "github.com/google/uuid"

// ConversationID identifies a single conversation for the lifetime of the
// engine handle backing it.
type ConversationID string

// NewConversationID mints a fresh conversation id.
func NewConversationID() ConversationID { return ConversationID(uuid.NewString()) }

// SubscriptionID identifies one addConversationListener fan-out task.
type SubscriptionID string

// NewSubscriptionID mints a fresh subscription id.
func NewSubscriptionID() SubscriptionID { return SubscriptionID(uuid.NewString()) }

// LoginID identifies one in-flight ChatGPT login flow.
type LoginID string

// NewLoginID mints a fresh login id.
func NewLoginID() LoginID { return LoginID(uuid.NewString()) }

// AgentID identifies one auxiliary-agent subprocess.
type AgentID string

// NewAgentID mints a fresh auxiliary-agent id.
func NewAgentID() AgentID { return AgentID(uuid.NewString()) }
