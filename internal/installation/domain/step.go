package domain

// StepID names a wizard step.
type StepID string

// Wizard steps.
const (
	StepSetURL         StepID = "set_url"
	StepSelectPackage  StepID = "select_package"
	StepUploading      StepID = "uploading"
	StepReadyToInstall StepID = "ready_to_install"
	StepInstalled      StepID = "installed"
	StepInstallFailed  StepID = "install_failed"
	StepUploadFailed   StepID = "upload_failed"
)

// IsTerminal returns true for outcome steps.
func (s StepID) IsTerminal() bool {
	return s == StepInstalled || s == StepInstallFailed || s == StepUploadFailed
}

// String returns the string representation.
func (s StepID) String() string {
	return string(s)
}

// Step is the current step of a wizard together with the data that is
// meaningful in that step only.
type Step interface {
	ID() StepID
	step()
}

// SetURLStep waits for a repository URL.
type SetURLStep struct {
	URL string
	// Message explains why the last submitted URL was rejected.
	Message string
}

// SelectPackageStep lets the user pick a release and an asset.
type SelectPackageStep struct {
	Repo          RepoRef
	Releases      []GitHubRelease
	SelectedTag   string
	SelectedAsset string
	Uploading     bool
}

// UploadingStep uploads a local file.
type UploadingStep struct {
	FileName string
	Source   Source
}

// ReadyToInstallStep holds an install-ready target, or the members of a bundle.
type ReadyToInstallStep struct {
	Target       InstallTarget
	Dependencies []Dependency
	// Warning is informational and never blocks installation.
	Warning    string
	Installing bool
}

// IsBundle returns true when the step installs a bundle.
func (s ReadyToInstallStep) IsBundle() bool {
	return s.Target.IsZero() && len(s.Dependencies) > 0
}

// InstalledStep is the success outcome.
type InstalledStep struct {
	Manifest     *PluginManifest
	NeedsRefresh bool
	Items        []BundleItemResult
}

// InstallFailedStep is the failure outcome of an install attempt.
type InstallFailedStep struct {
	Manifest *PluginManifest
	Message  string
	Items    []BundleItemResult
}

// UploadFailedStep is the failure outcome of an upload.
type UploadFailedStep struct {
	Manifest *PluginManifest
	Message  string
}

func (SetURLStep) ID() StepID         { return StepSetURL }
func (SelectPackageStep) ID() StepID  { return StepSelectPackage }
func (UploadingStep) ID() StepID      { return StepUploading }
func (ReadyToInstallStep) ID() StepID { return StepReadyToInstall }
func (InstalledStep) ID() StepID      { return StepInstalled }
func (InstallFailedStep) ID() StepID  { return StepInstallFailed }
func (UploadFailedStep) ID() StepID   { return StepUploadFailed }

func (SetURLStep) step()         {}
func (SelectPackageStep) step()  {}
func (UploadingStep) step()      {}
func (ReadyToInstallStep) step() {}
func (InstalledStep) step()      {}
func (InstallFailedStep) step()  {}
func (UploadFailedStep) step()   {}

// StepMessage returns the message a step carries, if any.
func StepMessage(s Step) string {
	switch st := s.(type) {
	case SetURLStep:
		return st.Message
	case InstallFailedStep:
		return st.Message
	case UploadFailedStep:
		return st.Message
	case ReadyToInstallStep:
		return st.Warning
	}
	return ""
}
