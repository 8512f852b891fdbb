package model

import "time"

// Source identifies where an instruction event originated
type Source string

const (
	SourceSystem        Source = "system"
	SourceDeveloper     Source = "developer"
	SourceUser          Source = "user"
	SourceMemory        Source = "memory"
	SourceClaudeMD      Source = "claude_md"
	SourceSkill         Source = "skill"
	SourceToolOutput    Source = "tool_output"
	SourceAgentInternal Source = "agent_internal"
)

// Scope is the hierarchical breadth of applicability, most general first
type Scope string

const (
	ScopeGlobal       Scope = "global"
	ScopeConversation Scope = "conversation"
	ScopeTask         Scope = "task"
	ScopeStep         Scope = "step"
	ScopeFile         Scope = "file"
)

// scopeLevels orders the hierarchy; lower number = broader scope
var scopeLevels = map[Scope]int{
	ScopeGlobal:       0,
	ScopeConversation: 1,
	ScopeTask:         2,
	ScopeStep:         3,
	ScopeFile:         4,
}

// Level returns the position of the scope in the hierarchy (0 = broadest).
// Unknown scopes return -1.
func (s Scope) Level() int {
	if lvl, ok := scopeLevels[s]; ok {
		return lvl
	}
	return -1
}

// Event is one immutable instruction observation read from the ledger.
// The monitor never creates, mutates, or deletes events.
type Event struct {
	SchemaVersion string            `json:"schema_version,omitempty"`
	EventID       string            `json:"event_id"`
	SessionID     string            `json:"session_id"`
	TS            time.Time         `json:"ts"`
	Source        Source            `json:"source"`
	Scope         Scope             `json:"scope"`
	Text          string            `json:"text"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
