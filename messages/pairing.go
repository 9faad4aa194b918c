package messages

import (
	"errors"
	"fmt"
)

var (
	// ErrUnpairedToolResult reports a tool result that references no earlier tool use.
	ErrUnpairedToolResult = errors.New("tool result has no matching tool use")
	// ErrDuplicateToolUseID reports two tool uses sharing an identifier.
	ErrDuplicateToolUseID = errors.New("duplicate tool use id")
)

// PairingError locates a tool call pairing violation in a history.
type PairingError struct {
	Message   int
	Block     int
	ToolUseID string
	Err       error
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("message %d block %d: %v: %q", e.Message, e.Block, e.Err, e.ToolUseID)
}

func (e *PairingError) Unwrap() error { return e.Err }

// CheckToolPairing verifies that every ToolResult refers to a ToolUse that
// appears earlier in msgs and that tool use identifiers are unique.
// It returns the tool name of every tool use keyed by identifier.
func CheckToolPairing(msgs []Message) (map[string]string, error) {
	names := make(map[string]string)
	for mi, msg := range msgs {
		for bi, block := range msg.Content {
			switch b := block.(type) {
			case ToolUse:
				if _, seen := names[b.ID]; seen {
					return nil, &PairingError{Message: mi, Block: bi, ToolUseID: b.ID, Err: ErrDuplicateToolUseID}
				}
				names[b.ID] = b.Name
			case ToolResult:
				if _, seen := names[b.ToolUseID]; !seen {
					return nil, &PairingError{Message: mi, Block: bi, ToolUseID: b.ToolUseID, Err: ErrUnpairedToolResult}
				}
			}
		}
	}
	return names, nil
}
