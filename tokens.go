// tokens.go
package chatuser

import (
	"context"
	"strconv"
)

// Tokens sums the user's token balances across every recorded stream.
// Malformed ledger values are skipped with a warning; they never fail the
// read.
func (u *User) Tokens(ctx context.Context) (int64, error) {
	balances, err := u.store.TokenBalances(ctx, u.stream.Streamer(), u.username)
	if err != nil {
		return 0, err
	}

	var total int64
	for streamID, v := range balances {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			u.logger.Warn("invalid token value in ledger",
				"username", u.username, "stream_id", streamID, "value", v)
			continue
		}
		total += n
	}
	return total, nil
}

// CanAffordWithTokens reports whether the user's total token balance covers
// cost.
func (u *User) CanAffordWithTokens(ctx context.Context, cost int64) (bool, error) {
	total, err := u.Tokens(ctx)
	if err != nil {
		return false, err
	}
	return total >= cost, nil
}

// SpendTokens drains amount from the user's per-stream balances, writing back
// each decremented entry as it goes. Entries are visited in whatever order
// the store enumerates them. It reports false when the combined balances fall
// short; decrements applied up to that point are not rolled back.
func (u *User) SpendTokens(ctx context.Context, amount int64) (bool, error) {
	streamer := u.stream.Streamer()
	balances, err := u.store.TokenBalances(ctx, streamer, u.username)
	if err != nil {
		return false, err
	}

	remaining := amount
	for streamID, v := range balances {
		balance, err := strconv.ParseInt(v, 10, 64)
		if err != nil || balance == 0 {
			continue
		}

		decrease := remaining
		if balance < decrease {
			decrease = balance
		}
		remaining -= decrease
		balance -= decrease

		if err := u.store.SetTokenBalance(ctx, streamer, u.username, streamID, balance); err != nil {
			return false, err
		}
		if remaining == 0 {
			return true, nil
		}
	}
	return false, nil
}

// AwardTokens credits amount to the current broadcast's ledger entry. Without
// force the award is idempotent per stream id: it only succeeds when no entry
// exists yet, and a success fires the configured token-award handler. With
// force the entry is overwritten unconditionally and no handler fires.
// Awarding is refused while no broadcast is active.
func (u *User) AwardTokens(ctx context.Context, amount int64, force bool) (bool, error) {
	streamID, live := u.stream.CurrentStreamID()
	if !live {
		u.logger.Debug("token award refused, no active stream", "username", u.username)
		return false, nil
	}

	streamer := u.stream.Streamer()
	if force {
		if err := u.store.SetTokenBalance(ctx, streamer, u.username, streamID, amount); err != nil {
			return false, err
		}
		return true, nil
	}

	awarded, err := u.store.SetTokenBalanceIfAbsent(ctx, streamer, u.username, streamID, amount)
	if err != nil {
		return false, err
	}
	if awarded && u.onTokenAward != nil {
		u.onTokenAward(u, amount)
	}
	return awarded, nil
}
