package domain

import (
	"encoding/json"
	"testing"

	"github.com/felixgeelhaar/statekit"
)

func startMachine(t *testing.T, flow Flow) *WizardMachine {
	t.Helper()
	m, err := NewWizardMachine(flow)
	if err != nil {
		t.Fatalf("NewWizardMachine(%s) error = %v", flow, err)
	}
	m.Start()
	return m
}

func TestNewWizardMachine_Initial(t *testing.T) {
	tests := []struct {
		flow Flow
		want StepID
	}{
		{FlowGitHub, StepSetURL},
		{FlowGitHubUpdate, StepSelectPackage},
		{FlowLocal, StepUploading},
		{FlowMarketplace, StepReadyToInstall},
	}

	for _, tt := range tests {
		t.Run(string(tt.flow), func(t *testing.T) {
			m := startMachine(t, tt.flow)
			if m.Current() != tt.want {
				t.Errorf("Current() = %v, want %v", m.Current(), tt.want)
			}
			if initial, _ := InitialStep(tt.flow); initial != tt.want {
				t.Errorf("InitialStep() = %v, want %v", initial, tt.want)
			}
		})
	}
}

func TestNewWizardMachine_UnknownFlow(t *testing.T) {
	if _, err := NewWizardMachine("ftp"); err == nil {
		t.Error("NewWizardMachine(ftp) should fail")
	}
}

func TestWizardMachine_NotStarted(t *testing.T) {
	m, err := NewWizardMachine(FlowGitHub)
	if err != nil {
		t.Fatalf("NewWizardMachine() error = %v", err)
	}
	if m.Current() != "" {
		t.Errorf("Current() = %v, want empty before Start", m.Current())
	}
	if m.Send(EventSubmitURL) {
		t.Error("Send() before Start should not transition")
	}
}

func TestWizardMachine_GitHubHappyPath(t *testing.T) {
	m := startMachine(t, FlowGitHub)

	steps := []struct {
		event statekit.EventType
		want  StepID
	}{
		{EventSubmitURL, StepSelectPackage},
		{EventBack, StepSetURL},
		{EventSubmitURL, StepSelectPackage},
		{EventUploaded, StepReadyToInstall},
		{EventBack, StepSelectPackage},
		{EventUploaded, StepReadyToInstall},
		{EventInstalled, StepInstalled},
	}
	for _, s := range steps {
		if !m.Send(s.event) {
			t.Fatalf("Send(%s) from %s did not transition", s.event, m.Current())
		}
		if m.Current() != s.want {
			t.Fatalf("after %s Current() = %v, want %v", s.event, m.Current(), s.want)
		}
	}
	if !m.IsDone() {
		t.Error("IsDone() should be true once installed")
	}
}

func TestWizardMachine_IllegalEventsAreNoOps(t *testing.T) {
	tests := []struct {
		flow  Flow
		event statekit.EventType
	}{
		{FlowGitHub, EventInstalled},
		{FlowGitHub, EventBack},
		{FlowGitHubUpdate, EventSubmitURL},
		{FlowGitHubUpdate, EventBack},
		{FlowLocal, EventBack},
		{FlowLocal, EventSubmitURL},
		{FlowMarketplace, EventUploaded},
		{FlowMarketplace, EventBack},
	}

	for _, tt := range tests {
		t.Run(string(tt.flow)+"/"+string(tt.event), func(t *testing.T) {
			m := startMachine(t, tt.flow)
			before := m.Current()
			if m.Send(tt.event) {
				t.Errorf("Send(%s) should be a no-op in %s", tt.event, before)
			}
			if m.Current() != before {
				t.Errorf("Current() = %v, want %v", m.Current(), before)
			}
		})
	}
}

func TestWizardMachine_MatchesTransitionTable(t *testing.T) {
	for _, flow := range []Flow{FlowGitHub, FlowGitHubUpdate, FlowLocal, FlowMarketplace} {
		for _, tr := range Transitions(flow) {
			t.Run(string(flow)+"/"+string(tr.From)+"/"+string(tr.Event), func(t *testing.T) {
				m := startMachine(t, flow)
				if !driveTo(m, tr.From) {
					t.Skipf("step %s not reachable by replay", tr.From)
				}
				if !m.Send(tr.Event) {
					t.Fatalf("Send(%s) from %s did not transition", tr.Event, tr.From)
				}
				if m.Current() != tr.To {
					t.Errorf("Current() = %v, want %v", m.Current(), tr.To)
				}
			})
		}
	}
}

// driveTo walks the machine to step by following the transition table breadth first.
func driveTo(m *WizardMachine, step StepID) bool {
	if m.Current() == step {
		return true
	}
	type node struct {
		at   StepID
		path []statekit.EventType
	}
	seen := map[StepID]bool{m.Current(): true}
	queue := []node{{at: m.Current()}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, tr := range Transitions(m.Flow()) {
			if tr.From != n.at || seen[tr.To] {
				continue
			}
			path := append(append([]statekit.EventType(nil), n.path...), tr.Event)
			if tr.To == step {
				for _, ev := range path {
					m.Send(ev)
				}
				return m.Current() == step
			}
			seen[tr.To] = true
			queue = append(queue, node{at: tr.To, path: path})
		}
	}
	return false
}

func TestWizardMachine_LocalUploadFailedIsFinal(t *testing.T) {
	m := startMachine(t, FlowLocal)
	m.Send(EventUploadFailed)
	if m.Current() != StepUploadFailed || !m.IsDone() {
		t.Errorf("Current() = %v, IsDone() = %v", m.Current(), m.IsDone())
	}
	if m.Send(EventRetry) {
		t.Error("retry after a local upload failure should be a no-op")
	}
}

func TestWizardMachine_ExportXStateJSON(t *testing.T) {
	m := startMachine(t, FlowMarketplace)
	data, err := m.ExportXStateJSON()
	if err != nil {
		t.Fatalf("ExportXStateJSON() error = %v", err)
	}

	var xs XStateJSON
	if err := json.Unmarshal(data, &xs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if xs.Initial != string(StepReadyToInstall) {
		t.Errorf("Initial = %q", xs.Initial)
	}
	if xs.States[string(StepInstalled)].Type != "final" {
		t.Errorf("installed should be final: %+v", xs.States[string(StepInstalled)])
	}
	if xs.States[string(StepReadyToInstall)].On[string(EventInstallFailed)].Target != string(StepInstallFailed) {
		t.Errorf("ready_to_install transitions = %+v", xs.States[string(StepReadyToInstall)].On)
	}
}

func TestStepTypes(t *testing.T) {
	steps := []Step{
		SetURLStep{Message: "bad url"},
		SelectPackageStep{},
		UploadingStep{},
		ReadyToInstallStep{Warning: "host too old"},
		InstalledStep{},
		InstallFailedStep{Message: "boom"},
		UploadFailedStep{Message: "upload failed"},
	}
	want := []StepID{StepSetURL, StepSelectPackage, StepUploading, StepReadyToInstall, StepInstalled, StepInstallFailed, StepUploadFailed}
	for i, s := range steps {
		if s.ID() != want[i] {
			t.Errorf("steps[%d].ID() = %v, want %v", i, s.ID(), want[i])
		}
	}
	if StepMessage(steps[0]) != "bad url" || StepMessage(steps[5]) != "boom" || StepMessage(steps[1]) != "" {
		t.Error("StepMessage() mismatch")
	}
	if !StepInstalled.IsTerminal() || StepReadyToInstall.IsTerminal() {
		t.Error("IsTerminal() mismatch")
	}

	bundle := ReadyToInstallStep{Dependencies: []Dependency{{Type: DependencyPackage}}}
	if !bundle.IsBundle() {
		t.Error("IsBundle() should be true for dependency lists")
	}
}
