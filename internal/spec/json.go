package spec

import (
	"encoding/json"
	"fmt"
)

// Tagged-union JSON shape, mirroring the serde convention this project's
// upstream uses: a zero-field variant serialises as a bare string (its
// kind); a variant carrying data serialises as a single-key object whose
// key is the kind and whose value holds the payload.

// MarshalJSON implements json.Marshaler for Trigger.
func (t Trigger) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TriggerStartup, "":
		return json.Marshal(string(TriggerStartup))
	case TriggerPipe, TriggerFileSocket:
		return json.Marshal(map[string]string{string(t.Kind): t.Channel})
	default:
		return nil, fmt.Errorf("spec: unknown trigger kind %q", t.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler for Trigger. Absent triggers
// default to Startup, matching the terse-spec-file convention described
// for this format.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		if bare != string(TriggerStartup) {
			return fmt.Errorf("spec: unknown bare trigger %q", bare)
		}
		*t = Trigger{Kind: TriggerStartup}
		return nil
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("spec: decoding trigger: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("spec: trigger object must have exactly one key, got %d", len(obj))
	}
	for k, v := range obj {
		switch TriggerKind(k) {
		case TriggerPipe:
			*t = Trigger{Kind: TriggerPipe, Channel: v}
		case TriggerFileSocket:
			*t = Trigger{Kind: TriggerFileSocket, Channel: v}
		default:
			return fmt.Errorf("spec: unknown trigger kind %q", k)
		}
	}
	return nil
}

type argPipePayload struct {
	End     PipeEnd `json:"end"`
	Channel string  `json:"channel"`
}

// MarshalJSON implements json.Marshaler for Argument.
func (a Argument) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ArgBinaryName, ArgEntrypoint, ArgTrigger, ArgTrailing:
		return json.Marshal(string(a.Kind))
	case ArgFile:
		return json.Marshal(map[string]string{string(ArgFile): a.Path})
	case ArgPipe, ArgFileSocket:
		return json.Marshal(map[string]argPipePayload{
			string(a.Kind): {End: a.End, Channel: a.Channel},
		})
	case ArgTcpListener:
		return json.Marshal(map[string]string{string(ArgTcpListener): a.Addr})
	default:
		return nil, fmt.Errorf("spec: unknown argument kind %q", a.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler for Argument.
func (a *Argument) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch ArgumentKind(bare) {
		case ArgBinaryName, ArgEntrypoint, ArgTrigger, ArgTrailing:
			*a = Argument{Kind: ArgumentKind(bare)}
			return nil
		default:
			return fmt.Errorf("spec: unknown bare argument %q", bare)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("spec: decoding argument: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("spec: argument object must have exactly one key, got %d", len(raw))
	}
	for k, v := range raw {
		switch ArgumentKind(k) {
		case ArgFile:
			var path string
			if err := json.Unmarshal(v, &path); err != nil {
				return fmt.Errorf("spec: decoding file argument: %w", err)
			}
			*a = Argument{Kind: ArgFile, Path: path}
		case ArgPipe, ArgFileSocket:
			var p argPipePayload
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("spec: decoding %s argument: %w", k, err)
			}
			if p.End != Rx && p.End != Tx {
				return fmt.Errorf("spec: %s argument has invalid end %q", k, p.End)
			}
			*a = Argument{Kind: ArgumentKind(k), End: p.End, Channel: p.Channel}
		case ArgTcpListener:
			var addr string
			if err := json.Unmarshal(v, &addr); err != nil {
				return fmt.Errorf("spec: decoding tcp_listener argument: %w", err)
			}
			*a = Argument{Kind: ArgTcpListener, Addr: addr}
		default:
			return fmt.Errorf("spec: unknown argument kind %q", k)
		}
	}
	return nil
}

type envFilesystemPayload struct {
	HostPath string `json:"host_path"`
	EnvPath  string `json:"env_path"`
}

// MarshalJSON implements json.Marshaler for EnvironmentCapability.
func (e EnvironmentCapability) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EnvProcfs, EnvStdin, EnvStdout, EnvStderr:
		return json.Marshal(string(e.Kind))
	case EnvFilesystem:
		return json.Marshal(map[string]envFilesystemPayload{
			string(EnvFilesystem): {HostPath: e.HostPath, EnvPath: e.EnvPath},
		})
	case EnvHostname, EnvDomainName:
		return json.Marshal(map[string]string{string(e.Kind): e.Name})
	default:
		return nil, fmt.Errorf("spec: unknown environment capability %q", e.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler for EnvironmentCapability.
func (e *EnvironmentCapability) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch EnvKind(bare) {
		case EnvProcfs, EnvStdin, EnvStdout, EnvStderr:
			*e = EnvironmentCapability{Kind: EnvKind(bare)}
			return nil
		default:
			return fmt.Errorf("spec: unknown bare environment capability %q", bare)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("spec: decoding environment capability: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("spec: environment capability object must have exactly one key, got %d", len(raw))
	}
	for k, v := range raw {
		switch EnvKind(k) {
		case EnvFilesystem:
			var p envFilesystemPayload
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("spec: decoding filesystem capability: %w", err)
			}
			*e = EnvironmentCapability{Kind: EnvFilesystem, HostPath: p.HostPath, EnvPath: p.EnvPath}
		case EnvHostname, EnvDomainName:
			var name string
			if err := json.Unmarshal(v, &name); err != nil {
				return fmt.Errorf("spec: decoding %s capability: %w", k, err)
			}
			*e = EnvironmentCapability{Kind: EnvKind(k), Name: name}
		default:
			return fmt.Errorf("spec: unknown environment capability %q", k)
		}
	}
	return nil
}

// entrypointJSON mirrors Entrypoint's wire shape, applying the defaults
// ("Startup" trigger, "[BinaryName]" args, empty environment) at
// deserialisation time so spec files can stay terse.
type entrypointJSON struct {
	Trigger     *Trigger                `json:"trigger,omitempty"`
	Args        []Argument              `json:"args,omitempty"`
	Environment []EnvironmentCapability `json:"environment,omitempty"`
}

// MarshalJSON implements json.Marshaler for Entrypoint.
func (e Entrypoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(entrypointJSON{
		Trigger:     &e.Trigger,
		Args:        e.Args,
		Environment: e.Environment,
	})
}

// UnmarshalJSON implements json.Unmarshaler for Entrypoint.
func (e *Entrypoint) UnmarshalJSON(data []byte) error {
	var raw entrypointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("spec: decoding entrypoint: %w", err)
	}

	if raw.Trigger != nil {
		e.Trigger = *raw.Trigger
	} else {
		e.Trigger = Trigger{Kind: TriggerStartup}
	}

	if raw.Args != nil {
		e.Args = raw.Args
	} else {
		e.Args = []Argument{BinaryNameArg()}
	}

	e.Environment = raw.Environment
	return nil
}
