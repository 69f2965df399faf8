package broker

import (
	"tradesession/internal/domain"
)

const stateKey = "broker"

// persistLocked snapshots the broker into its state manager, if one was
// configured, and saves it to disk. Persistence errors are logged, not
// returned: a failed checkpoint must never interrupt the trading loop.
func (b *Broker) persistLocked() {
	if b.stateMgr == nil {
		return
	}
	snapshot := b.snapshotLocked()
	if err := b.stateMgr.Set(stateKey, snapshot); err != nil {
		if b.logger != nil {
			b.logger.Warn("failed to stage broker state", "error", err.Error())
		}
		return
	}
	if err := b.stateMgr.Save(); err != nil && b.logger != nil {
		b.logger.Error("failed to persist broker state", "error", err.Error())
	}
}

func (b *Broker) snapshotLocked() domain.SessionState {
	processedIDs := make([]string, 0, b.processedOrderIDs.Len())
	for _, k := range b.processedOrderIDs.Keys() {
		processedIDs = append(processedIDs, k)
	}

	return domain.SessionState{
		StartingEquity:    b.startingEquity,
		CurrentEquity:     b.currentEquity,
		RealizedPnL:       b.realizedPnL,
		Pos:               copyPosition(b.pos),
		WorkingOrders:     append([]domain.WorkingOrder(nil), b.workingOrders...),
		ProcessedOrderIDs: processedIDs,
		OrderHistory:      append([]domain.OrderHistoryEntry(nil), b.orderHistory...),
		// CircuitBreaker is left zero here; the session's checkpoint task
		// persists the error circuit breaker under its own state key.
	}
}

// SaveState forces an immediate checkpoint, used by the shutdown drain and
// the periodic checkpoint task.
func (b *Broker) SaveState() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stateMgr == nil {
		return nil
	}
	if err := b.stateMgr.Set(stateKey, b.snapshotLocked()); err != nil {
		return err
	}
	return b.stateMgr.Save()
}

// Shutdown persists final state. Per spec.md §4.4 this is documented as
// "cancel all working orders, persist state", but the coordinator's own
// drain sequence (spec.md §4.5) already cancels resting orders and then
// re-populates WorkingOrders from whatever the execution queue still held
// at shutdown time (Testable Property 8) — so this call must not discard
// that local bookkeeping again, only make it durable.
func (b *Broker) Shutdown() error {
	return b.SaveState()
}

// ResetStartingEquityToCurrent implements the session startup's "stale
// drawdown reset" guard: restarting flat with a persisted drawdown that
// already meets the trading breaker's trip threshold would otherwise trip
// the breaker on the very first equity update. Resetting the starting
// mark to the current one gives the new session a clean baseline.
func (b *Broker) ResetStartingEquityToCurrent() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startingEquity = b.currentEquity
	if b.tradingCB != nil {
		b.tradingCB.SetStartingEquity(b.currentEquity)
	}
}

// LoadState restores broker state from the configured state manager. It is
// a no-op if no prior snapshot exists under the broker's key, matching the
// "start empty" recovery behavior of StateManager.Load.
func (b *Broker) LoadState() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stateMgr == nil {
		return nil
	}

	var snap domain.SessionState
	ok, err := b.stateMgr.Get(stateKey, &snap)
	if err != nil || !ok {
		return err
	}

	b.startingEquity = snap.StartingEquity
	b.currentEquity = snap.CurrentEquity
	b.realizedPnL = snap.RealizedPnL
	b.pos = copyPosition(snap.Pos)
	b.workingOrders = append([]domain.WorkingOrder(nil), snap.WorkingOrders...)
	b.orderHistory = append([]domain.OrderHistoryEntry(nil), snap.OrderHistory...)

	for _, id := range snap.ProcessedOrderIDs {
		b.processedOrderIDs.Add(id, domain.Fill{ClientOrderID: id})
	}

	if b.tradingCB != nil {
		b.tradingCB.SetStartingEquity(b.startingEquity)
	}

	return nil
}
