package decoder

import "olinput/internal/input"

// Button turns debounced line edges into press/release symbols. The debounce
// filter already guarantees alternation, so it is stateless.
type Button struct{}

func NewButton() *Button { return &Button{} }

// Offer converts one edge.
func (*Button) Offer(e input.Edge) input.ButtonEdge {
	return input.ButtonEdge{Button: e.Channel, Pressed: e.Level != input.Low, At: e.At}
}
