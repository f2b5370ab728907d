package events

// Event types emitted by the batch engine.
const (
	TypeStateChanged  = "batch:state"
	TypeUnitProcessed = "batch:unit"
	TypeLogLine       = "batch:log"
)

// StateChangedEvent is the payload for batch:state events.
// Sent on every state machine transition.
type StateChangedEvent struct {
	From string `json:"from"` // Previous state
	To   string `json:"to"`   // New state
}

// UnitProcessedEvent is the payload for batch:unit events.
// Sent after a tournament has been consumed from the queue.
type UnitProcessedEvent struct {
	URL       string `json:"url"`       // Tournament URL
	Name      string `json:"name"`      // Tournament name
	Records   int    `json:"records"`   // Records appended by this unit
	Processed int    `json:"processed"` // Units consumed so far
	Total     int    `json:"total"`     // Units discovered
	Failed    bool   `json:"failed"`    // True when the unit produced an error log line
}

// LogLineEvent is the payload for batch:log events.
// Sent for every line appended to the checkpoint log.
type LogLineEvent struct {
	Line string `json:"line"`
}
