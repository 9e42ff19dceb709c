// warnings.go
package chatuser

import (
	"context"
	"fmt"
)

// warningKeyFormat builds the redis key recording one consumed warning
// chance: <prefix>_<username>_warning_<n>.
const warningKeyFormat = "%s_%s_warning_%d"

// warningKeys returns the ordered per-chance redis keys for this user.
func (u *User) warningKeys(totalChances int, prefix string) []string {
	keys := make([]string, 0, totalChances)
	for i := 0; i < totalChances; i++ {
		keys = append(keys, fmt.Sprintf(warningKeyFormat, prefix, u.username, i))
	}
	return keys
}

// Timeout resolves a requested timeout against the graduated warning policy.
// It returns the effective timeout length in seconds and a human-readable
// punishment label.
//
// While the user still has unused chances the requested length is overridden
// with policy.BaseTimeout times the number of chances used plus one, the
// label is marked as a warning, and the first unused chance is consumed (its
// redis key set with the policy's lifetime). Once every chance is used the
// caller's requested length and label pass through unchanged. With warnings
// disabled or no policy supplied the requested length is applied as-is.
func (u *User) Timeout(ctx context.Context, requested int, policy *WarningPolicy, useWarnings bool) (int, string, error) {
	length := requested
	punishment := fmt.Sprintf("timed out for %d seconds", length)

	if !useWarnings || policy == nil {
		return length, punishment, nil
	}

	keys := u.warningKeys(policy.TotalChances, policy.Prefix)
	set, err := u.store.Warnings(ctx, keys)
	if err != nil {
		return 0, "", err
	}

	used := 0
	for _, s := range set {
		if s {
			used++
		}
	}

	if used < policy.TotalChances {
		length = policy.BaseTimeout * (used + 1)
		punishment = fmt.Sprintf("timed out for %d seconds (warning)", length)

		for i, s := range set {
			if !s {
				if err := u.store.AddWarning(ctx, keys[i], policy.Lifetime); err != nil {
					return 0, "", err
				}
				break
			}
		}
	}

	return length, punishment, nil
}
