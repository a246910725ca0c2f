package protocol

import (
	"errors"
	"fmt"
)

// ErrUnknownKind reports a message kind outside the closed protocol set.
var ErrUnknownKind = errors.New("unknown message kind")

// Message is one tagged protocol message: a discriminator plus its payload.
// Payload is always one of the concrete payload structs in this package.
type Message struct {
	Kind    Kind
	Payload any
}

// New builds a validated message.
func New(kind Kind, payload any) (Message, error) {
	msg := Message{Kind: kind, Payload: payload}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// MustNew is New for messages constructed from code-controlled inputs.
// It panics on a validation failure, which always indicates a programming
// error rather than bad client input.
func MustNew(kind Kind, payload any) Message {
	msg, err := New(kind, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Validate checks that the kind is known, the payload has the kind's type,
// and kind-specific required fields are set.
func (m Message) Validate() error {
	if !Known(m.Kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	switch m.Kind {
	case KindStart:
		return requireType[StartPayload](m)
	case KindStop:
		return requireType[StopPayload](m)
	case KindImprove:
		p, err := payloadAs[ImprovePayload](m)
		if err != nil {
			return err
		}
		if p.Text == "" {
			return fmt.Errorf("improve: question text is required")
		}
	case KindUpdateTask:
		p, err := payloadAs[UpdateTaskPayload](m)
		if err != nil {
			return err
		}
		if len(p.Tasks) == 0 {
			return fmt.Errorf("update_task: at least one task is required")
		}
		for _, task := range p.Tasks {
			if task.ID == "" {
				return fmt.Errorf("update_task: task id is required")
			}
		}
	case KindSupplement:
		p, err := payloadAs[SupplementPayload](m)
		if err != nil {
			return err
		}
		if p.Question == "" {
			return fmt.Errorf("supplement: question is required")
		}
	case KindPause, KindResume:
		return requireType[TakeControlPayload](m)
	case KindNewAgent:
		p, err := payloadAs[NewAgentPayload](m)
		if err != nil {
			return err
		}
		if p.Name == "" {
			return fmt.Errorf("new_agent: name is required")
		}
	case KindAddTask:
		p, err := payloadAs[AddTaskPayload](m)
		if err != nil {
			return err
		}
		if p.Content == "" {
			return fmt.Errorf("add_task: content is required")
		}
	case KindRemoveTask:
		p, err := payloadAs[RemoveTaskPayload](m)
		if err != nil {
			return err
		}
		if p.TaskID == "" {
			return fmt.Errorf("remove_task: task id is required")
		}
	case KindSkipTask:
		return requireType[SkipTaskPayload](m)
	case KindInstallMCP:
		p, err := payloadAs[InstallMCPPayload](m)
		if err != nil {
			return err
		}
		if len(p.Servers.Servers) == 0 {
			return fmt.Errorf("install_mcp: server map is empty")
		}
	case KindTaskState, KindNewTaskState:
		p, err := payloadAs[TaskStatePayload](m)
		if err != nil {
			return err
		}
		if p.TaskID == "" {
			return fmt.Errorf("%s: task id is required", m.Kind)
		}
	case KindDecomposeProgress, KindDecomposeText:
		return requireType[DecomposePayload](m)
	case KindCreateAgent:
		return requireType[CreateAgentPayload](m)
	case KindActivateAgent:
		return requireType[ActivateAgentPayload](m)
	case KindDeactivateAgent:
		return requireType[DeactivateAgentPayload](m)
	case KindAssignTask:
		return requireType[AssignTaskPayload](m)
	case KindActivateToolkit, KindDeactivateToolkit:
		p, err := payloadAs[ToolkitPayload](m)
		if err != nil {
			return err
		}
		if p.ToolkitName == "" {
			return fmt.Errorf("%s: toolkit name is required", m.Kind)
		}
	case KindWriteFile:
		return requireType[WriteFilePayload](m)
	case KindAsk:
		p, err := payloadAs[AskPayload](m)
		if err != nil {
			return err
		}
		if p.Agent == "" || p.Question == "" {
			return fmt.Errorf("ask: agent and question are required")
		}
	case KindNotice:
		return requireType[NoticePayload](m)
	case KindSearchMCP:
		return requireType[SearchMCPPayload](m)
	case KindTerminal:
		return requireType[TerminalPayload](m)
	case KindBudgetNotEnough:
		return requireType[BudgetNotEnoughPayload](m)
	case KindEnd:
		return requireType[EndPayload](m)
	case KindTimeout:
		return requireType[TimeoutPayload](m)
	}
	return nil
}

func payloadAs[T any](m Message) (T, error) {
	p, ok := m.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: payload has type %T, want %T", m.Kind, m.Payload, zero)
	}
	return p, nil
}

func requireType[T any](m Message) error {
	_, err := payloadAs[T](m)
	return err
}
