/*
ledger.go - The persistence collaborator of the billing engine

PURPOSE:
  The engine never talks to a database directly. Everything it reads
  (bracket catalogs, the contract's anchor year) and the one thing it
  writes (a finalized schedule) goes through the Ledger interface.

CONTRACT:
  - ListBrackets(year): brackets scoped to one catalog year
  - ListAllBrackets(): every bracket, used as the last fallback
  - SaveSchedule(contract, rows): replaces the contract's schedule as a
    whole. Either every installment is written or none is.
  - CurrentYearFor(contract): the year of the contract's activation date

CONSISTENCY:
  Two actors saving the same contract concurrently is resolved by the
  implementation (last write wins for both bundled stores). Retry of
  transient write failures also belongs to the implementation; the
  session passes Ledger errors through unmodified.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite, used by the server
  - generic/store/memory.go: in-memory, used by tests and dev

SEE ALSO:
  - schedule/session.go: the only caller of SaveSchedule
  - tariff/catalog.go: the caller of ListBrackets / CurrentYearFor
*/
package generic

import "context"

// BracketSource is the read side used by the bracket catalog.
type BracketSource interface {
	// ListBrackets returns brackets whose Year equals year.
	ListBrackets(ctx context.Context, year int) ([]Bracket, error)

	// ListAllBrackets returns brackets of every year.
	ListAllBrackets(ctx context.Context) ([]Bracket, error)

	// CurrentYearFor returns the catalog year anchored on the contract.
	// Returns ErrContractNotFound for unknown contracts.
	CurrentYearFor(ctx context.Context, contractID ContractID) (int, error)
}

// ScheduleWriter is the write side used by the schedule session.
type ScheduleWriter interface {
	// SaveSchedule atomically replaces the contract's installments.
	SaveSchedule(ctx context.Context, contractID ContractID, rows []Installment) error
}

// Ledger is the full collaborator interface.
type Ledger interface {
	BracketSource
	ScheduleWriter
}
