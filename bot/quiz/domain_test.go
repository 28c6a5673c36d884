package quiz

import (
	"reflect"
	"testing"
)

func TestUserRecordTotal(t *testing.T) {
	rec := UserRecord{Scores: []int{1, 0, 1, 1}}
	if got := rec.Total(); got != 3 {
		t.Fatalf("Total = %d, want 3", got)
	}
	if got := (UserRecord{}).Total(); got != 0 {
		t.Fatalf("empty Total = %d, want 0", got)
	}
}

func TestUserRecordCloneIsolation(t *testing.T) {
	rec := UserRecord{FirstName: "Anna", Scores: []int{1, 0}}
	clone := rec.Clone()
	clone.Scores[0] = 9
	if rec.Scores[0] != 1 {
		t.Fatal("Clone shares the scores slice with the original")
	}
}

func TestCloneUsers(t *testing.T) {
	src := map[string]UserRecord{
		"1": {FirstName: "Anna", Scores: []int{1}},
	}
	out := CloneUsers(src)
	out["1"].Scores[0] = 7
	if src["1"].Scores[0] != 1 {
		t.Fatal("CloneUsers shares score slices with the source")
	}
	if CloneUsers(nil) != nil {
		t.Fatal("CloneUsers(nil) should stay nil")
	}
}

func TestRankOrdering(t *testing.T) {
	users := map[string]UserRecord{
		"3": {FirstName: "Clara", LastName: "Young", Scores: []int{1, 1, 1}},
		"1": {FirstName: "Anna", LastName: "Lee", Scores: []int{1, 0}},
		"2": {FirstName: "Boris", LastName: "Lee", Scores: []int{0, 1}},
	}
	ranked := Rank(users)

	wantIDs := []string{"3", "1", "2"}
	gotIDs := make([]string, len(ranked))
	for i, r := range ranked {
		gotIDs[i] = r.UserID
	}
	if !reflect.DeepEqual(gotIDs, wantIDs) {
		t.Fatalf("rank order = %v, want %v", gotIDs, wantIDs)
	}
}

func TestRankTieBreakByUserID(t *testing.T) {
	users := map[string]UserRecord{
		"20": {FirstName: "Anna", LastName: "Lee", Scores: []int{1}},
		"10": {FirstName: "Anna", LastName: "Lee", Scores: []int{1}},
	}
	ranked := Rank(users)
	if ranked[0].UserID != "10" || ranked[1].UserID != "20" {
		t.Fatalf("tie-break order = %s, %s", ranked[0].UserID, ranked[1].UserID)
	}
}
