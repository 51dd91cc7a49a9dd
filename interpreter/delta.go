package interpreter

// DeltaType tells a renderer what a Delta carries.
type DeltaType string

const (
	// DeltaMessage carries an increment of assistant text.
	DeltaMessage DeltaType = "message"
	// DeltaFunction carries a function name or an arguments patch.
	DeltaFunction DeltaType = "function"
)

// Delta is a renderable increment of one assistant turn. It is never
// stored in history.
//
// A message delta sets Text. A function delta sets Name when a call starts
// and Arguments when more of the call's arguments became visible; folding
// the Arguments patches of one call with partialjson.Fold rebuilds the
// arguments decoded so far.
type Delta struct {
	Type      DeltaType
	Text      string
	Name      string
	Arguments any
}

// Renderer displays the deltas of one turn. A fresh Renderer is created for
// every turn and finalized on every exit path of that turn.
type Renderer interface {
	ProcessDelta(d Delta)
	// Finalize ends any in-progress live update. It must be idempotent.
	Finalize()
}

// RendererFactory creates the renderer for a new turn.
type RendererFactory func() Renderer

type discardRenderer struct{}

func (discardRenderer) ProcessDelta(Delta) {}
func (discardRenderer) Finalize()          {}
