//go:build linux

package spawner

import (
	"os"
	"strconv"
)

// TriggerData is the payload a trigger arrival supplies to the void-phase
// argument preparer: nothing for Startup, a string for a Pipe arrival, or
// a set of received descriptors for a FileSocket arrival.
type TriggerData struct {
	Kind      TriggerDataKind
	PipeBytes string
	Files     []*os.File
}

// TriggerDataKind discriminates the three shapes TriggerData can take.
type TriggerDataKind int

const (
	TriggerDataNone TriggerDataKind = iota
	TriggerDataPipe
	TriggerDataFileSocket
)

// Args renders the trigger payload as zero or more argv entries, per the
// polymorphism rule: a Startup trigger contributes nothing, a Pipe
// trigger contributes exactly one string argument, and a FileSocket
// trigger contributes one decimal fd argument per received descriptor.
func (td *TriggerData) Args() []string {
	switch td.Kind {
	case TriggerDataNone:
		return nil
	case TriggerDataPipe:
		return []string{td.PipeBytes}
	case TriggerDataFileSocket:
		out := make([]string, len(td.Files))
		for i, f := range td.Files {
			out[i] = strconv.Itoa(int(f.Fd()))
		}
		return out
	default:
		return nil
	}
}
