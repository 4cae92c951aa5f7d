package generation

type Status string

const (
	StatusNoOp         Status = "NO_OP"
	StatusNew          Status = "NEW"
	StatusInitializing Status = "INITIALIZING"
	StatusInitialized  Status = "INITIALIZED"
	StatusGenerating   Status = "GENERATING"
	StatusFailed       Status = "FAILED"
	StatusFinished     Status = "FINISHED"
)

// statusOrdinals holds the forward order of statuses.
// StatusNoOp is deliberately absent: it never takes part in ordering.
var statusOrdinals = map[Status]int{
	StatusNew:          0,
	StatusInitializing: 1,
	StatusInitialized:  2,
	StatusGenerating:   3,
	StatusFailed:       4,
	StatusFinished:     5,
}

// StatusFromString returns the status and whether it is known.
func StatusFromString(s string) (Status, bool) {
	status := Status(s)
	if status == StatusNoOp {
		return status, true
	}
	_, known := statusOrdinals[status]
	return status, known
}

// Ordinal returns the position of s in the forward order.
// It returns -1 for StatusNoOp and unknown statuses.
func (s Status) Ordinal() int {
	o, ok := statusOrdinals[s]
	if !ok {
		return -1
	}
	return o
}

func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether next may replace current.
// An empty current means the status is absent.
//
// A forward status is accepted only when its ordinal is strictly greater
// than the current one. StatusFailed is accepted from any non-terminal
// status. Nothing is accepted once current is terminal.
func CanTransition(current, next Status) bool {
	if next.Ordinal() < 0 {
		return false
	}
	if current == "" {
		return true
	}
	if current.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.Ordinal() > current.Ordinal()
}

// Predecessors returns every status that next may replace.
// The result is ordered by ordinal and is what the database
// conditions its status updates on.
func Predecessors(next Status) []Status {
	var statuses []Status
	for _, s := range orderedStatuses() {
		if CanTransition(s, next) {
			statuses = append(statuses, s)
		}
	}
	return statuses
}

func orderedStatuses() []Status {
	statuses := make([]Status, len(statusOrdinals))
	for s, o := range statusOrdinals {
		statuses[o] = s
	}
	return statuses
}

// NonTerminalStatuses returns the statuses a resync has to revisit.
func NonTerminalStatuses() []Status {
	var statuses []Status
	for _, s := range orderedStatuses() {
		if !s.IsTerminal() {
			statuses = append(statuses, s)
		}
	}
	return statuses
}
