package plan

import "fmt"

// StepKind is the variant tag of a Step.
type StepKind string

const (
	KindPrepareDirectory StepKind = "PrepareDirectory"
	KindClone            StepKind = "Clone"
	KindNpmInstall       StepKind = "NpmInstall"
	KindPipInstall       StepKind = "PipInstall"
	KindDockerBuild      StepKind = "DockerBuild"
	KindDockerRun        StepKind = "DockerRun"
	KindWriteConfig      StepKind = "WriteConfig"
	KindDetectServerType StepKind = "DetectServerType"
	KindVerify           StepKind = "Verify"
)

// Kinds lists every step variant.
var Kinds = []StepKind{
	KindPrepareDirectory,
	KindClone,
	KindNpmInstall,
	KindPipInstall,
	KindDockerBuild,
	KindDockerRun,
	KindWriteConfig,
	KindDetectServerType,
	KindVerify,
}

// ServerType is the runtime a DetectServerType step found.
type ServerType string

const (
	ServerNode    ServerType = "node"
	ServerPython  ServerType = "python"
	ServerUnknown ServerType = "unknown"
)

// Step is one typed installation operation. Implementations are the
// pointer types in this file; the interface is sealed.
type Step interface {
	Kind() StepKind
	Common() *StepBase
	// Paths returns every filesystem path the step refers to.
	Paths() []string
	// RewritePaths replaces each path p with fn(p).
	RewritePaths(fn func(string) string)
	sealed()
}

// StepBase holds the fields shared by every variant.
type StepBase struct {
	ID               string `json:"id"`
	Description      string `json:"description"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`
}

// Common returns the shared fields.
func (b *StepBase) Common() *StepBase { return b }
func (b *StepBase) sealed()           {}

func (b *StepBase) rewriteWorkDir(fn func(string) string) {
	if b.WorkingDirectory != "" {
		b.WorkingDirectory = fn(b.WorkingDirectory)
	}
}

func (b *StepBase) paths(extra ...string) []string {
	var out []string
	if b.WorkingDirectory != "" {
		out = append(out, b.WorkingDirectory)
	}
	for _, p := range extra {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PrepareDirectory creates the install directory.
type PrepareDirectory struct {
	StepBase
	Path string `json:"path"`
}

func (*PrepareDirectory) Kind() StepKind    { return KindPrepareDirectory }
func (s *PrepareDirectory) Paths() []string { return s.paths(s.Path) }
func (s *PrepareDirectory) RewritePaths(fn func(string) string) {
	s.rewriteWorkDir(fn)
	s.Path = fn(s.Path)
}

// Clone clones a git repository into TargetPath.
type Clone struct {
	StepBase
	URL        string `json:"url"`
	Ref        string `json:"ref,omitempty"`
	TargetPath string `json:"targetPath"`
}

func (*Clone) Kind() StepKind    { return KindClone }
func (s *Clone) Paths() []string { return s.paths(s.TargetPath) }
func (s *Clone) RewritePaths(fn func(string) string) {
	s.rewriteWorkDir(fn)
	s.TargetPath = fn(s.TargetPath)
}

// NpmInstall installs Node dependencies in Cwd and then runs Scripts.
type NpmInstall struct {
	StepBase
	Cwd     string   `json:"cwd"`
	Scripts []string `json:"scripts,omitempty"`
	// Manager is npm unless recovery switched to pnpm or yarn.
	Manager string `json:"manager,omitempty"`
	// Env is added to the environment of every command the step runs.
	Env map[string]string `json:"env,omitempty"`
	// OnlyFor skips the step unless a DetectServerType step found this type.
	OnlyFor ServerType `json:"onlyFor,omitempty"`
}

func (*NpmInstall) Kind() StepKind    { return KindNpmInstall }
func (s *NpmInstall) Paths() []string { return s.paths(s.Cwd) }
func (s *NpmInstall) RewritePaths(fn func(string) string) {
	s.rewriteWorkDir(fn)
	s.Cwd = fn(s.Cwd)
}

// PackageManager returns the manager to invoke.
func (s *NpmInstall) PackageManager() string {
	if s.Manager == "" {
		return "npm"
	}
	return s.Manager
}

// PipInstall installs Python dependencies from RequirementsFile, relative
// to Cwd.
type PipInstall struct {
	StepBase
	Cwd              string `json:"cwd"`
	RequirementsFile string `json:"requirementsFile"`
	// Installer is "pip" (python -m pip), "pip3" or "uv".
	Installer string     `json:"installer,omitempty"`
	OnlyFor   ServerType `json:"onlyFor,omitempty"`
}

func (*PipInstall) Kind() StepKind    { return KindPipInstall }
func (s *PipInstall) Paths() []string { return s.paths(s.Cwd) }
func (s *PipInstall) RewritePaths(fn func(string) string) {
	s.rewriteWorkDir(fn)
	s.Cwd = fn(s.Cwd)
}

// PortBinding maps a host port to a container port.
type PortBinding struct {
	Host      int `json:"host"`
	Container int `json:"container"`
}

func (b PortBinding) String() string { return fmt.Sprintf("%d:%d", b.Host, b.Container) }

// VolumeBinding mounts a host path into the container.
type VolumeBinding struct {
	HostPath      string `json:"hostPath"`
	ContainerPath string `json:"containerPath"`
}

func (b VolumeBinding) String() string { return b.HostPath + ":" + b.ContainerPath }

// DockerBuild builds an image from the Dockerfile in Cwd.
type DockerBuild struct {
	StepBase
	Cwd      string `json:"cwd"`
	ImageTag string `json:"imageTag"`
}

func (*DockerBuild) Kind() StepKind    { return KindDockerBuild }
func (s *DockerBuild) Paths() []string { return s.paths(s.Cwd) }
func (s *DockerBuild) RewritePaths(fn func(string) string) {
	s.rewriteWorkDir(fn)
	s.Cwd = fn(s.Cwd)
}

// DockerRun starts a detached container from ImageTag.
type DockerRun struct {
	StepBase
	ImageTag       string            `json:"imageTag"`
	ContainerName  string            `json:"containerName"`
	PortBindings   []PortBinding     `json:"portBindings"`
	VolumeBindings []VolumeBinding   `json:"volumeBindings"`
	Env            map[string]string `json:"env,omitempty"`
}

func (*DockerRun) Kind() StepKind { return KindDockerRun }
func (s *DockerRun) Paths() []string {
	var hostPaths []string
	for _, v := range s.VolumeBindings {
		hostPaths = append(hostPaths, v.HostPath)
	}
	return s.paths(hostPaths...)
}
func (s *DockerRun) RewritePaths(fn func(string) string) {
	s.rewriteWorkDir(fn)
	for i := range s.VolumeBindings {
		s.VolumeBindings[i].HostPath = fn(s.VolumeBindings[i].HostPath)
	}
}

// ServerSettings is the server entry written into the server's own
// configuration files.
type ServerSettings struct {
	Name        string            `json:"name"`
	Port        int               `json:"port,omitempty"`
	AutoStart   bool              `json:"autoStart"`
	Environment map[string]string `json:"environment,omitempty"`
}

// Config file names WriteConfig knows how to write. docker-compose.yml is a
// candidate for verification only and is never written.
const (
	ConfigJSON      = "config.json"
	DotEnv          = ".env"
	EnvironmentJSON = "environment.json"
	ComposeFile     = "docker-compose.yml"
)

// WriteConfig writes the server's configuration files inside Dir.
type WriteConfig struct {
	StepBase
	Dir                  string         `json:"dir"`
	ConfigFileCandidates []string       `json:"configFileCandidates"`
	ServerEntry          ServerSettings `json:"serverEntry"`
}

func (*WriteConfig) Kind() StepKind    { return KindWriteConfig }
func (s *WriteConfig) Paths() []string { return s.paths(s.Dir) }
func (s *WriteConfig) RewritePaths(fn func(string) string) {
	s.rewriteWorkDir(fn)
	s.Dir = fn(s.Dir)
}

// Writable returns the candidates the step writes, in candidate order.
func (s *WriteConfig) Writable() []string {
	var out []string
	for _, c := range s.ConfigFileCandidates {
		switch c {
		case ConfigJSON, DotEnv, EnvironmentJSON:
			out = append(out, c)
		}
	}
	return out
}

// DetectServerType inspects Cwd after cloning to decide between guarded
// install steps.
type DetectServerType struct {
	StepBase
	Cwd string `json:"cwd"`
}

func (*DetectServerType) Kind() StepKind    { return KindDetectServerType }
func (s *DetectServerType) Paths() []string { return s.paths(s.Cwd) }
func (s *DetectServerType) RewritePaths(fn func(string) string) {
	s.rewriteWorkDir(fn)
	s.Cwd = fn(s.Cwd)
}

// Verify marks the point where the installed tree is checked.
type Verify struct {
	StepBase
	Path string `json:"path"`
}

func (*Verify) Kind() StepKind    { return KindVerify }
func (s *Verify) Paths() []string { return s.paths(s.Path) }
func (s *Verify) RewritePaths(fn func(string) string) {
	s.rewriteWorkDir(fn)
	s.Path = fn(s.Path)
}

// newStep returns a zero value of the variant for kind.
func newStep(kind StepKind) (Step, error) {
	switch kind {
	case KindPrepareDirectory:
		return &PrepareDirectory{}, nil
	case KindClone:
		return &Clone{}, nil
	case KindNpmInstall:
		return &NpmInstall{}, nil
	case KindPipInstall:
		return &PipInstall{}, nil
	case KindDockerBuild:
		return &DockerBuild{}, nil
	case KindDockerRun:
		return &DockerRun{}, nil
	case KindWriteConfig:
		return &WriteConfig{}, nil
	case KindDetectServerType:
		return &DetectServerType{}, nil
	case KindVerify:
		return &Verify{}, nil
	}
	return nil, fmt.Errorf("unknown step kind %q", kind)
}

// Guard returns the server type a guarded install step requires, or "".
func Guard(s Step) ServerType {
	switch v := s.(type) {
	case *NpmInstall:
		return v.OnlyFor
	case *PipInstall:
		return v.OnlyFor
	}
	return ""
}
