package domain

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// Flow selects the step table of a wizard.
type Flow string

// Wizard flows.
const (
	FlowGitHub       Flow = "github"
	FlowGitHubUpdate Flow = "github-update"
	FlowLocal        Flow = "local"
	FlowMarketplace  Flow = "marketplace"
)

// WizardContext is the context passed to the state machine.
type WizardContext struct {
	Flow Flow
}

// Event names for the wizard machines.
const (
	EventSubmitURL     statekit.EventType = "SUBMIT_URL"
	EventUploaded      statekit.EventType = "UPLOADED"
	EventUploadFailed  statekit.EventType = "UPLOAD_FAILED"
	EventInstalled     statekit.EventType = "INSTALLED"
	EventInstallFailed statekit.EventType = "INSTALL_FAILED"
	EventBack          statekit.EventType = "BACK"
	EventRetry         statekit.EventType = "RETRY"
)

// State IDs for the wizard machines.
var (
	StateIDSetURL         = statekit.StateID(StepSetURL)
	StateIDSelectPackage  = statekit.StateID(StepSelectPackage)
	StateIDUploading      = statekit.StateID(StepUploading)
	StateIDReadyToInstall = statekit.StateID(StepReadyToInstall)
	StateIDInstalled      = statekit.StateID(StepInstalled)
	StateIDInstallFailed  = statekit.StateID(StepInstallFailed)
	StateIDUploadFailed   = statekit.StateID(StepUploadFailed)
)

// Transition is one edge of a step table.
type Transition struct {
	From  StepID
	Event statekit.EventType
	To    StepID
}

var flowTransitions = map[Flow][]Transition{
	FlowGitHub: {
		{StepSetURL, EventSubmitURL, StepSelectPackage},
		{StepSelectPackage, EventUploaded, StepReadyToInstall},
		{StepSelectPackage, EventUploadFailed, StepUploadFailed},
		{StepSelectPackage, EventBack, StepSetURL},
		{StepReadyToInstall, EventInstalled, StepInstalled},
		{StepReadyToInstall, EventInstallFailed, StepInstallFailed},
		{StepReadyToInstall, EventUploadFailed, StepUploadFailed},
		{StepReadyToInstall, EventBack, StepSelectPackage},
		{StepInstallFailed, EventRetry, StepReadyToInstall},
		{StepUploadFailed, EventRetry, StepSelectPackage},
	},
	FlowGitHubUpdate: {
		{StepSelectPackage, EventUploaded, StepReadyToInstall},
		{StepSelectPackage, EventUploadFailed, StepUploadFailed},
		{StepReadyToInstall, EventInstalled, StepInstalled},
		{StepReadyToInstall, EventInstallFailed, StepInstallFailed},
		{StepReadyToInstall, EventUploadFailed, StepUploadFailed},
		{StepReadyToInstall, EventBack, StepSelectPackage},
		{StepInstallFailed, EventRetry, StepReadyToInstall},
		{StepUploadFailed, EventRetry, StepSelectPackage},
	},
	FlowLocal: {
		{StepUploading, EventUploaded, StepReadyToInstall},
		{StepUploading, EventUploadFailed, StepUploadFailed},
		{StepReadyToInstall, EventInstalled, StepInstalled},
		{StepReadyToInstall, EventInstallFailed, StepInstallFailed},
		{StepInstallFailed, EventRetry, StepReadyToInstall},
	},
	FlowMarketplace: {
		{StepReadyToInstall, EventInstalled, StepInstalled},
		{StepReadyToInstall, EventInstallFailed, StepInstallFailed},
		{StepInstallFailed, EventRetry, StepReadyToInstall},
	},
}

var flowInitial = map[Flow]StepID{
	FlowGitHub:       StepSetURL,
	FlowGitHubUpdate: StepSelectPackage,
	FlowLocal:        StepUploading,
	FlowMarketplace:  StepReadyToInstall,
}

// InitialStep returns the step a flow starts in.
func InitialStep(flow Flow) (StepID, bool) {
	s, ok := flowInitial[flow]
	return s, ok
}

// Transitions returns the step table of a flow.
func Transitions(flow Flow) []Transition {
	return append([]Transition(nil), flowTransitions[flow]...)
}

// CanTransition reports whether event moves a flow out of from, and where to.
func CanTransition(flow Flow, from StepID, event statekit.EventType) (StepID, bool) {
	for _, t := range flowTransitions[flow] {
		if t.From == from && t.Event == event {
			return t.To, true
		}
	}
	return "", false
}

// WizardMachine wraps the Statekit state machine for one wizard.
type WizardMachine struct {
	flow        Flow
	mu          sync.Mutex
	interpreter *statekit.Interpreter[WizardContext]
}

// NewWizardMachine creates the state machine of a flow.
func NewWizardMachine(flow Flow) (*WizardMachine, error) {
	var (
		interp *statekit.Interpreter[WizardContext]
		err    error
	)
	switch flow {
	case FlowGitHub:
		interp, err = buildGitHubMachine()
	case FlowGitHubUpdate:
		interp, err = buildGitHubUpdateMachine()
	case FlowLocal:
		interp, err = buildLocalMachine()
	case FlowMarketplace:
		interp, err = buildMarketplaceMachine()
	default:
		return nil, fmt.Errorf("unknown wizard flow: %q", flow)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build %s wizard machine: %w", flow, err)
	}

	return &WizardMachine{
		flow:        flow,
		interpreter: interp,
	}, nil
}

func buildGitHubMachine() (*statekit.Interpreter[WizardContext], error) {
	machine, err := statekit.NewMachine[WizardContext]("github-install").
		WithInitial(StateIDSetURL).
		State(StateIDSetURL).
		On(EventSubmitURL).Target(StateIDSelectPackage).
		Done().
		State(StateIDSelectPackage).
		On(EventUploaded).Target(StateIDReadyToInstall).
		On(EventUploadFailed).Target(StateIDUploadFailed).
		On(EventBack).Target(StateIDSetURL).
		Done().
		State(StateIDReadyToInstall).
		On(EventInstalled).Target(StateIDInstalled).
		On(EventInstallFailed).Target(StateIDInstallFailed).
		On(EventUploadFailed).Target(StateIDUploadFailed).
		On(EventBack).Target(StateIDSelectPackage).
		Done().
		State(StateIDInstallFailed).
		On(EventRetry).Target(StateIDReadyToInstall).
		Done().
		State(StateIDUploadFailed).
		On(EventRetry).Target(StateIDSelectPackage).
		Done().
		State(StateIDInstalled).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, err
	}
	return statekit.NewInterpreter(machine), nil
}

func buildGitHubUpdateMachine() (*statekit.Interpreter[WizardContext], error) {
	machine, err := statekit.NewMachine[WizardContext]("github-update").
		WithInitial(StateIDSelectPackage).
		State(StateIDSelectPackage).
		On(EventUploaded).Target(StateIDReadyToInstall).
		On(EventUploadFailed).Target(StateIDUploadFailed).
		Done().
		State(StateIDReadyToInstall).
		On(EventInstalled).Target(StateIDInstalled).
		On(EventInstallFailed).Target(StateIDInstallFailed).
		On(EventUploadFailed).Target(StateIDUploadFailed).
		On(EventBack).Target(StateIDSelectPackage).
		Done().
		State(StateIDInstallFailed).
		On(EventRetry).Target(StateIDReadyToInstall).
		Done().
		State(StateIDUploadFailed).
		On(EventRetry).Target(StateIDSelectPackage).
		Done().
		State(StateIDInstalled).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, err
	}
	return statekit.NewInterpreter(machine), nil
}

func buildLocalMachine() (*statekit.Interpreter[WizardContext], error) {
	machine, err := statekit.NewMachine[WizardContext]("local-install").
		WithInitial(StateIDUploading).
		State(StateIDUploading).
		On(EventUploaded).Target(StateIDReadyToInstall).
		On(EventUploadFailed).Target(StateIDUploadFailed).
		Done().
		State(StateIDReadyToInstall).
		On(EventInstalled).Target(StateIDInstalled).
		On(EventInstallFailed).Target(StateIDInstallFailed).
		Done().
		State(StateIDInstallFailed).
		On(EventRetry).Target(StateIDReadyToInstall).
		Done().
		// Upload failures are final: the file has to be picked again.
		State(StateIDUploadFailed).
		Final().
		Done().
		State(StateIDInstalled).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, err
	}
	return statekit.NewInterpreter(machine), nil
}

func buildMarketplaceMachine() (*statekit.Interpreter[WizardContext], error) {
	machine, err := statekit.NewMachine[WizardContext]("marketplace-install").
		WithInitial(StateIDReadyToInstall).
		State(StateIDReadyToInstall).
		On(EventInstalled).Target(StateIDInstalled).
		On(EventInstallFailed).Target(StateIDInstallFailed).
		Done().
		State(StateIDInstallFailed).
		On(EventRetry).Target(StateIDReadyToInstall).
		Done().
		State(StateIDInstalled).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, err
	}
	return statekit.NewInterpreter(machine), nil
}

// Flow returns the flow of the machine.
func (m *WizardMachine) Flow() Flow {
	return m.flow
}

// Start starts the state machine interpreter.
func (m *WizardMachine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interpreter.Start()
}

// Send sends an event and reports whether the step changed. Events that are
// not legal in the current step leave it unchanged.
func (m *WizardMachine) Send(event statekit.EventType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.interpreter.State().Value
	if _, ok := CanTransition(m.flow, StepID(before), event); !ok {
		return false
	}
	m.interpreter.Send(statekit.Event{Type: event})
	return m.interpreter.State().Value != before
}

// Current returns the current step, or "" before Start.
func (m *WizardMachine) Current() StepID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StepID(m.interpreter.State().Value)
}

// IsDone returns true if the machine is in a final step.
func (m *WizardMachine) IsDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interpreter.Done()
}

// XStateJSON represents the XState JSON format for visualization.
type XStateJSON struct {
	ID      string                     `json:"id"`
	Initial string                     `json:"initial"`
	States  map[string]XStateStateJSON `json:"states"`
}

// XStateStateJSON represents a state in XState JSON format.
type XStateStateJSON struct {
	Type string                      `json:"type,omitempty"`
	On   map[string]XStateTransition `json:"on,omitempty"`
}

// XStateTransition represents a transition in XState JSON format.
type XStateTransition struct {
	Target string `json:"target"`
}

// ExportXStateJSON exports the step table of the machine as XState-compatible JSON.
func (m *WizardMachine) ExportXStateJSON() ([]byte, error) {
	xstate := XStateJSON{
		ID:      string(m.flow),
		Initial: string(flowInitial[m.flow]),
		States:  make(map[string]XStateStateJSON),
	}
	for _, t := range flowTransitions[m.flow] {
		for _, id := range []StepID{t.From, t.To} {
			if _, ok := xstate.States[string(id)]; !ok {
				xstate.States[string(id)] = XStateStateJSON{}
			}
		}
		st := xstate.States[string(t.From)]
		if st.On == nil {
			st.On = make(map[string]XStateTransition)
		}
		st.On[string(t.Event)] = XStateTransition{Target: string(t.To)}
		xstate.States[string(t.From)] = st
	}
	for id, st := range xstate.States {
		if len(st.On) == 0 {
			st.Type = "final"
			xstate.States[id] = st
		}
	}
	return json.MarshalIndent(xstate, "", "  ")
}
