package ledger

// SeedBalance is a test helper that credits a user directly when using the
// in-memory store.
func SeedBalance(s Store, userID, amount int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.append(Entry{
			UserID: userID,
			Amount: amount,
			Kind:   KindDeposit,
			Status: StatusConfirmed,
		})
	}
}
