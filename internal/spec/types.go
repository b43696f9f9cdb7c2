// Package spec holds the declarative data model that drives the
// orchestrator: entrypoints, their triggers, their argument lists, and the
// environment capabilities granted to each. It mirrors the serde-tagged
// enums of the Rust specification this module is modelled on, rendered as
// Go structs with custom JSON (un)marshalling rather than a closed sum
// type.
package spec

// Specification is a mapping from entrypoint name to Entrypoint.
type Specification struct {
	Entrypoints map[string]Entrypoint `json:"entrypoints"`
}

// TriggerKind discriminates the three ways an entrypoint can be spawned.
type TriggerKind string

const (
	TriggerStartup    TriggerKind = "startup"
	TriggerPipe       TriggerKind = "pipe"
	TriggerFileSocket TriggerKind = "file_socket"
)

// Trigger is the event that causes an entrypoint to be spawned. Channel is
// only meaningful for TriggerPipe and TriggerFileSocket.
type Trigger struct {
	Kind    TriggerKind
	Channel string
}

// Entrypoint describes one named dispatch target within the target
// binary: how it's triggered, what argv it receives, and what capabilities
// its void is granted.
type Entrypoint struct {
	Trigger     Trigger
	Args        []Argument
	Environment []EnvironmentCapability
}

// ArgumentKind discriminates the eight Argument variants.
type ArgumentKind string

const (
	ArgBinaryName  ArgumentKind = "binary_name"
	ArgEntrypoint  ArgumentKind = "entrypoint"
	ArgFile        ArgumentKind = "file"
	ArgPipe        ArgumentKind = "pipe"
	ArgFileSocket  ArgumentKind = "file_socket"
	ArgTrigger     ArgumentKind = "trigger"
	ArgTcpListener ArgumentKind = "tcp_listener"
	ArgTrailing    ArgumentKind = "trailing"
)

// PipeEnd discriminates which end of a named pipe or file socket an
// argument refers to.
type PipeEnd string

const (
	Rx PipeEnd = "rx"
	Tx PipeEnd = "tx"
)

// Argument is a single tagged-union entry in an entrypoint's argv
// specification. Only the fields relevant to Kind are populated.
type Argument struct {
	Kind ArgumentKind

	// ArgFile
	Path string

	// ArgPipe, ArgFileSocket
	End     PipeEnd
	Channel string

	// ArgTcpListener
	Addr string
}

// ChannelName returns the channel name referenced by a Pipe or FileSocket
// argument, and ok=false for every other kind.
func (a Argument) ChannelName() (name string, ok bool) {
	switch a.Kind {
	case ArgPipe, ArgFileSocket:
		return a.Channel, true
	default:
		return "", false
	}
}

// EnvKind discriminates the seven EnvironmentCapability variants.
type EnvKind string

const (
	EnvFilesystem EnvKind = "filesystem"
	EnvHostname   EnvKind = "hostname"
	EnvDomainName EnvKind = "domain_name"
	EnvProcfs     EnvKind = "procfs"
	EnvStdin      EnvKind = "stdin"
	EnvStdout     EnvKind = "stdout"
	EnvStderr     EnvKind = "stderr"
)

// EnvironmentCapability is a single grant controlling the void's mount
// layout, hostname, procfs visibility, or stdio inheritance.
type EnvironmentCapability struct {
	Kind EnvKind

	// EnvFilesystem
	HostPath string
	EnvPath  string

	// EnvHostname, EnvDomainName
	Name string
}

// BinaryNameArg, EntrypointArg, TriggerArg and TrailingArg are convenience
// constructors for the zero-field Argument variants, used throughout the
// spawner and its tests.
func BinaryNameArg() Argument  { return Argument{Kind: ArgBinaryName} }
func EntrypointArg() Argument  { return Argument{Kind: ArgEntrypoint} }
func TriggerArg() Argument     { return Argument{Kind: ArgTrigger} }
func TrailingArg() Argument    { return Argument{Kind: ArgTrailing} }
func FileArg(path string) Argument {
	return Argument{Kind: ArgFile, Path: path}
}
func PipeArg(end PipeEnd, channel string) Argument {
	return Argument{Kind: ArgPipe, End: end, Channel: channel}
}
func FileSocketArg(end PipeEnd, channel string) Argument {
	return Argument{Kind: ArgFileSocket, End: end, Channel: channel}
}
func TcpListenerArg(addr string) Argument {
	return Argument{Kind: ArgTcpListener, Addr: addr}
}
