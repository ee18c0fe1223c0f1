// Package store provides Ledger implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// MEMORY LEDGER - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	brackets  []generic.Bracket
	contracts map[generic.ContractID]generic.Contract
	schedules map[generic.ContractID][]generic.Installment

	// saveErr, when set, is returned by every SaveSchedule call.
	saveErr error
	saves   int
}

var _ generic.Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		contracts: make(map[generic.ContractID]generic.Contract),
		schedules: make(map[generic.ContractID][]generic.Installment),
	}
}

// AddBrackets appends brackets to the catalog.
func (m *Memory) AddBrackets(brackets ...generic.Bracket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brackets = append(m.brackets, brackets...)
}

// PutContract inserts or replaces a contract.
func (m *Memory) PutContract(c generic.Contract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = c
}

// FailSaves makes SaveSchedule return err until called again with nil.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

func (m *Memory) ListBrackets(_ context.Context, year int) ([]generic.Bracket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Bracket
	for _, b := range m.brackets {
		if b.Year == year {
			result = append(result, b)
		}
	}
	sortBrackets(result)
	return result, nil
}

func (m *Memory) ListAllBrackets(_ context.Context) ([]generic.Bracket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Bracket, len(m.brackets))
	copy(result, m.brackets)
	sortBrackets(result)
	return result, nil
}

func (m *Memory) CurrentYearFor(_ context.Context, contractID generic.ContractID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[contractID]
	if !ok {
		return 0, generic.ErrContractNotFound
	}
	return c.ActivationDate.Year(), nil
}

// SaveSchedule replaces the stored schedule. Last write wins.
func (m *Memory) SaveSchedule(_ context.Context, contractID generic.ContractID, rows []generic.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	m.schedules[contractID] = generic.CloneInstallments(rows)
	m.saves++
	return nil
}

// Schedule returns the last saved schedule for a contract.
func (m *Memory) Schedule(contractID generic.ContractID) ([]generic.Installment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, ok := m.schedules[contractID]
	return generic.CloneInstallments(rows), ok
}

// Saves counts successful SaveSchedule calls.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func sortBrackets(bs []generic.Bracket) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Year != bs[j].Year {
			return bs[i].Year < bs[j].Year
		}
		return bs[i].MinUnits < bs[j].MinUnits
	})
}
