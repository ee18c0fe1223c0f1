package schedule

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/warp/billing-engine/generic"
)

// Session states. Editing is not a machine state: it is Previewing while
// the periodicity is custom.
const (
	StateIdle       = "idle"
	StateGenerating = "generating"
	StatePreviewing = "previewing"
	StateEditing    = "editing"
	StateSaving     = "saving"
	StateSaved      = "saved"
)

// Session events.
const (
	EventGenerate   = "generate"
	EventGenerated  = "generated"
	EventCustomize  = "customize"
	EventEdit       = "edit"
	EventSave       = "save"
	EventSaved      = "saved"
	EventSaveFailed = "save_failed"
)

type machineContext struct {
	SessionID string
}

// machine wraps the statekit interpreter driving a Session.
type machine struct {
	interpreter *statekit.Interpreter[machineContext]
}

func newMachine(sessionID string) (*machine, error) {
	builder := statekit.NewMachine[machineContext]("schedule-session").
		WithInitial(statekit.StateID(StateIdle)).
		WithContext(machineContext{SessionID: sessionID})

	builder.State(StateIdle).
		On(EventGenerate).Target(StateGenerating).
		On(EventCustomize).Target(StatePreviewing).
		Done()

	builder.State(StateGenerating).
		On(EventGenerated).Target(StatePreviewing).
		Done()

	builder.State(StatePreviewing).
		On(EventGenerate).Target(StateGenerating).
		On(EventSave).Target(StateSaving).
		Done()

	builder.State(StateSaving).
		On(EventSaved).Target(StateSaved).
		On(EventSaveFailed).Target(StatePreviewing).
		Done()

	builder.State(StateSaved).
		On(EventGenerate).Target(StateGenerating).
		On(EventCustomize).Target(StatePreviewing).
		On(EventEdit).Target(StatePreviewing).
		Done()

	def, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build session machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(def)
	interpreter.Start()
	return &machine{interpreter: interpreter}, nil
}

func (m *machine) current() string {
	return string(m.interpreter.State().Value)
}

// fire sends event and reports ErrSessionState when nothing moved.
func (m *machine) fire(event string) error {
	before := m.current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if m.current() != before {
		return nil
	}
	return fmt.Errorf("%w: %q while %s", generic.ErrSessionState, event, before)
}
