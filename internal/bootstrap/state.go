package bootstrap

// State is the progress of the bootstrapper. It only moves forward:
//
//	Start -> NetIsolated -> PidIsolated -> MountIsolated -> Execd
//
// NetIsolated and PidIsolated are also reached when the unshare failed
// softly; MountIsolated is only reached when every mount operation worked.
type State int

const (
	Start State = iota
	NetIsolated
	PidIsolated
	MountIsolated
	Execd
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case NetIsolated:
		return "net-isolated"
	case PidIsolated:
		return "pid-isolated"
	case MountIsolated:
		return "mount-isolated"
	case Execd:
		return "execd"
	}
	return "unknown"
}
