package queues

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      Command
		wantErr bool
	}{
		{"enqueue", Command{Type: CommandEnqueue, RequestID: "r1", PlayerID: "p1", TemplateID: 1}, false},
		{"missing request id", Command{Type: CommandEnqueue, PlayerID: "p1"}, true},
		{"missing type", Command{RequestID: "r1", PlayerID: "p1"}, true},
		{"player command without player", Command{Type: CommandLeaveQueue, RequestID: "r1"}, true},
		{"disband", Command{Type: CommandDisband, RequestID: "r1", MatchID: 3}, false},
		{"disband without match", Command{Type: CommandDisband, RequestID: "r1"}, true},
		{"group snapshot", Command{Type: CommandGroup, RequestID: "r1", GroupID: "g1", Members: []string{"a"}}, false},
		{"group without id", Command{Type: CommandGroup, RequestID: "r1"}, true},
		{"unit died", Command{Type: CommandUnitDied, RequestID: "r1", Unit: &Unit{Kind: "player", ID: "p1"}}, false},
		{"unit died without unit", Command{Type: CommandUnitDied, RequestID: "r1", PlayerID: "p1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			gotErr := (err != nil)
			if gotErr != tt.wantErr {
				t.Errorf("Validate() error mismatch\ngotErr: %#v\nwantErr: %#v\nerr: %#v", gotErr, tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("Validate() = %#v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestCommand_DecodeWire(t *testing.T) {
	raw := `{"envelopeVersion":"1.0","type":"enqueue-party","requestId":"r9","playerId":"lead","templateId":4,"groupId":"guild-7"}`
	var c Command
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal err: %#v", err)
	}
	if c.Type != CommandEnqueueParty || c.PlayerID != "lead" || c.TemplateID != 4 || c.GroupID != "guild-7" {
		t.Errorf("decoded command mismatch: %#v", c)
	}
}

func TestCommandResult_OmitsEmptyFailureFields(t *testing.T) {
	b, err := json.Marshal(CommandResult{EnvelopeVersion: EnvelopeVersion, Type: "command-result", RequestID: "r1", Command: CommandAcceptReady, Status: StatusSuccess})
	if err != nil {
		t.Fatalf("marshal err: %#v", err)
	}
	for _, field := range []string{"reason", "errorMessage", "retryAfter", "side"} {
		if strings.Contains(string(b), `"`+field+`"`) {
			t.Errorf("unexpected %q in %s", field, b)
		}
	}
}
