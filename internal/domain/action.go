// Package domain defines core data structures used throughout the rebalancer.
package domain

// Action represents the side of a planned trade.
type Action int

const (
	ActionBuy Action = iota
	ActionSell
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "unknown"
	}
}
