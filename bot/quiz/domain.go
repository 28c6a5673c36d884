// Package quiz contains the domain model and the session state machine of the
// test bot: registration dialog, test delivery, answer scoring, and the
// statistics contract implemented by the storage layer.
package quiz

import (
	"context"
	"sort"
)

// Registration holds the data collected during the /start dialog.
type Registration struct {
	FirstName string
	LastName  string
}

// UserRecord is the durable per-user statistics entry. Scores accumulates one
// 0/1 entry per answered question across every attempt the user ever
// submitted; new attempts are appended, never replace prior ones.
type UserRecord struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Scores    []int  `json:"scores"`
}

// Total returns the number of correct answers across all attempts.
func (r UserRecord) Total() int {
	total := 0
	for _, s := range r.Scores {
		total += s
	}
	return total
}

// Clone returns a deep copy so cached records never share score slices with
// callers.
func (r UserRecord) Clone() UserRecord {
	out := r
	if r.Scores != nil {
		out.Scores = append([]int(nil), r.Scores...)
	}
	return out
}

// CloneUsers deep-copies a statistics snapshot.
func CloneUsers(users map[string]UserRecord) map[string]UserRecord {
	if users == nil {
		return nil
	}
	out := make(map[string]UserRecord, len(users))
	for id, rec := range users {
		out[id] = rec.Clone()
	}
	return out
}

// RankedUser is one row of the descending ranking produced by Rank.
type RankedUser struct {
	UserID string
	UserRecord
}

// Rank orders a statistics snapshot by total correct answers, descending.
// Ties break deterministically: last name, then first name, then user id.
func Rank(users map[string]UserRecord) []RankedUser {
	ranked := make([]RankedUser, 0, len(users))
	for id, rec := range users {
		ranked = append(ranked, RankedUser{UserID: id, UserRecord: rec})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ti, tj := ranked[i].Total(), ranked[j].Total(); ti != tj {
			return ti > tj
		}
		if ranked[i].LastName != ranked[j].LastName {
			return ranked[i].LastName < ranked[j].LastName
		}
		if ranked[i].FirstName != ranked[j].FirstName {
			return ranked[i].FirstName < ranked[j].FirstName
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	return ranked
}

// AnswerKeySource supplies the ordered list of correct answers. An empty
// result means the key is unavailable; callers must not score against it.
type AnswerKeySource interface {
	Load(ctx context.Context) []string
}

// StatsStore is the durable, cached statistics mapping keyed by user id.
type StatsStore interface {
	// Load hydrates the cache from storage on first call and returns a
	// snapshot; later calls serve the cache without re-reading storage.
	Load(ctx context.Context) (map[string]UserRecord, error)
	// Save replaces the stored mapping. Structurally identical state is a
	// no-op; otherwise the full document is rewritten and the tabular
	// export regenerated.
	Save(ctx context.Context, users map[string]UserRecord) error
	// RecordAttempt inserts a new record or appends the score vector to an
	// existing one, as a single critical section. Called exactly once per
	// completed submission.
	RecordAttempt(ctx context.Context, userID string, reg Registration, vector []int) error
	// Reload drops the cache and re-hydrates from durable storage.
	Reload(ctx context.Context) error
	// Export regenerates the tabular export from the current state.
	Export(ctx context.Context) error
}
