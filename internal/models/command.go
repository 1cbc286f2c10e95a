package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommandType is one of the five shard lifecycle commands
type CommandType string

const (
	CommandCreate CommandType = "Create"
	CommandStart  CommandType = "Start"
	CommandStop   CommandType = "Stop"
	CommandDrain  CommandType = "Drain"
	CommandResume CommandType = "Resume"
)

// commandTypes is ordered by wire ordinal; producers that encode the type as a number use this index
var commandTypes = []CommandType{CommandCreate, CommandStart, CommandStop, CommandDrain, CommandResume}

// ParseCommandType resolves a command name case-insensitively
func ParseCommandType(s string) (CommandType, error) {
	for _, ct := range commandTypes {
		if strings.EqualFold(string(ct), strings.TrimSpace(s)) {
			return ct, nil
		}
	}
	return "", fmt.Errorf("unknown shard command type: %q", s)
}

// UnmarshalJSON accepts the command name in any case, or its ordinal
func (c *CommandType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		ct, err := ParseCommandType(s)
		if err != nil {
			return err
		}
		*c = ct
		return nil
	}

	n, err := strconv.Atoi(string(data))
	if err != nil || n < 0 || n >= len(commandTypes) {
		return fmt.Errorf("invalid shard command type: %s", data)
	}
	*c = commandTypes[n]
	return nil
}

// NewID returns a 32 hex character identifier
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ShardCommand asks the lifecycle worker to move a shard through its state machine
type ShardCommand struct {
	CommandID     string      `json:"CommandId"`
	Type          CommandType `json:"Type"`
	ShardID       string      `json:"ShardId"`
	Modality      string      `json:"Modality"`
	Capacity      int         `json:"Capacity"`
	GraceSeconds  *int        `json:"GraceSeconds"`
	Actor         string      `json:"Actor,omitempty"`
	CorrelationID string      `json:"CorrelationId,omitempty"`
	Utc           time.Time   `json:"Utc"`
}

// NewShardCommand builds a command with a fresh CommandID and the current UTC time
func NewShardCommand(cmdType CommandType, shardID string) ShardCommand {
	return ShardCommand{
		CommandID: NewID(),
		Type:      cmdType,
		ShardID:   shardID,
		Utc:       time.Now().UTC(),
	}
}

// EnrollmentCommitted is the payload of an enrollment event
type EnrollmentCommitted struct {
	Identifier string `json:"Identifier"`
	Modality   string `json:"Modality"`
	ManifestID string `json:"ManifestId"`
}

// ShardIngestCommand routes an enrollment to the shard that owns its identifier
type ShardIngestCommand struct {
	CommandID     string    `json:"CommandId"`
	TargetShardID string    `json:"TargetShardId"`
	Modality      string    `json:"Modality"`
	Identifier    string    `json:"Identifier"`
	ManifestID    string    `json:"ManifestId"`
	CorrelationID string    `json:"CorrelationId,omitempty"`
	Utc           time.Time `json:"Utc"`
}
