package watch

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Predicate decides which transfers are in scope. The variants are None,
// From, To and Both; the set is closed.
type Predicate interface {
	// Matches reports whether a transfer between from and to is in scope.
	Matches(from, to common.Address) bool
	// Describe returns a human-readable label for logs.
	Describe() string
	// Directed reports whether a sender or recipient restriction is configured.
	Directed() bool

	predicate()
}

// None monitors every transfer.
type None struct{}

// From matches transfers sent by Address.
type From struct {
	Address common.Address
}

// To matches transfers received by Address.
type To struct {
	Address common.Address
}

// Both matches transfers sent by From and received by To.
type Both struct {
	From common.Address
	To   common.Address
}

func (None) Matches(common.Address, common.Address) bool { return true }

func (None) Describe() string { return "all transfers" }

func (None) Directed() bool { return false }

func (None) predicate() {}

func (p From) Matches(from, _ common.Address) bool { return from == p.Address }

func (p From) Describe() string { return fmt.Sprintf("transfers from %s", p.Address.Hex()) }

func (From) Directed() bool { return true }

func (From) predicate() {}

func (p To) Matches(_, to common.Address) bool { return to == p.Address }

func (p To) Describe() string { return fmt.Sprintf("transfers to %s", p.Address.Hex()) }

func (To) Directed() bool { return true }

func (To) predicate() {}

func (p Both) Matches(from, to common.Address) bool { return from == p.From && to == p.To }

func (p Both) Describe() string {
	return fmt.Sprintf("transfers from %s to %s", p.From.Hex(), p.To.Hex())
}

func (Both) Directed() bool { return true }

func (Both) predicate() {}

// NewPredicate picks the variant for the configured addresses; nil means unset.
func NewPredicate(from, to *common.Address) Predicate {
	switch {
	case from != nil && to != nil:
		return Both{From: *from, To: *to}
	case from != nil:
		return From{Address: *from}
	case to != nil:
		return To{Address: *to}
	default:
		return None{}
	}
}
