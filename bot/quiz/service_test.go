package quiz

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/m3rciful/quizbot/core/telegram/state"
)

type staticKey []string

func (k staticKey) Load(context.Context) []string { return k }

type recordedAttempt struct {
	userID string
	reg    Registration
	vector []int
}

type memStats struct {
	users     map[string]UserRecord
	records   []recordedAttempt
	loadErr   error
	recordErr error
	reloads   int
	exports   int
}

func (m *memStats) Load(context.Context) (map[string]UserRecord, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return CloneUsers(m.users), nil
}

func (m *memStats) Save(_ context.Context, users map[string]UserRecord) error {
	m.users = CloneUsers(users)
	return nil
}

func (m *memStats) RecordAttempt(_ context.Context, userID string, reg Registration, vector []int) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.records = append(m.records, recordedAttempt{userID: userID, reg: reg, vector: vector})
	return nil
}

func (m *memStats) Reload(context.Context) error { m.reloads++; return nil }

func (m *memStats) Export(context.Context) error { m.exports++; return nil }

func newTestService(key []string, stats *memStats, assets ...string) (*Service, state.Manager) {
	sessions := state.NewMemoryManager()
	return NewService(sessions, staticKey(key), stats, assets), sessions
}

const testUser int64 = 42

func register(t *testing.T, svc *Service, first, last string) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Start(ctx, testUser); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.HandleText(ctx, testUser, first); err != nil {
		t.Fatalf("first name: %v", err)
	}
	if _, err := svc.HandleText(ctx, testUser, last); err != nil {
		t.Fatalf("last name: %v", err)
	}
}

func TestRegistrationFlow(t *testing.T) {
	svc, sessions := newTestService([]string{"a"}, &memStats{})
	ctx := context.Background()

	out, err := svc.Start(ctx, testUser)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(out) != 1 || out[0].Text != TextAskFirstName {
		t.Fatalf("start reply = %+v", out)
	}
	if st := sessions.GetState(testUser); st != StateAwaitingFirstName {
		t.Fatalf("state = %s", st)
	}

	out, err = svc.HandleText(ctx, testUser, " Anna ")
	if err != nil {
		t.Fatalf("first name: %v", err)
	}
	if out[0].Text != TextAskLastName {
		t.Fatalf("first name reply = %q", out[0].Text)
	}

	out, err = svc.HandleText(ctx, testUser, "Lee")
	if err != nil {
		t.Fatalf("last name: %v", err)
	}
	if !strings.Contains(out[0].Text, "Anna Lee") {
		t.Fatalf("greeting = %q", out[0].Text)
	}
	if !out[0].Keyboard || !out[0].Markdown {
		t.Fatalf("greeting should carry the action keyboard and markdown: %+v", out[0])
	}
	if st := sessions.GetState(testUser); st != StateRegistered {
		t.Fatalf("state = %s", st)
	}
}

func TestStartRestartsDialogMidFlow(t *testing.T) {
	svc, _ := newTestService([]string{"a"}, &memStats{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, testUser); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.HandleText(ctx, testUser, "Anna"); err != nil {
		t.Fatalf("first name: %v", err)
	}
	if _, err := svc.Start(ctx, testUser); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := svc.HandleText(ctx, testUser, "Bob"); err != nil {
		t.Fatalf("first name after restart: %v", err)
	}
	out, err := svc.HandleText(ctx, testUser, "Smith")
	if err != nil {
		t.Fatalf("last name after restart: %v", err)
	}
	if !strings.Contains(out[0].Text, "Bob Smith") {
		t.Fatalf("greeting after restart = %q", out[0].Text)
	}
}

func TestGreetingEscapesMarkdown(t *testing.T) {
	svc, _ := newTestService([]string{"a"}, &memStats{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, testUser); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.HandleText(ctx, testUser, "An*na"); err != nil {
		t.Fatalf("first name: %v", err)
	}
	out, err := svc.HandleText(ctx, testUser, "Lee_")
	if err != nil {
		t.Fatalf("last name: %v", err)
	}
	if !strings.Contains(out[0].Text, `An\*na`) || !strings.Contains(out[0].Text, `Lee\_`) {
		t.Fatalf("greeting should escape user markup: %q", out[0].Text)
	}
}

func TestRegisteredTextPromptsButtons(t *testing.T) {
	svc, _ := newTestService([]string{"a"}, &memStats{})
	register(t, svc, "Anna", "Lee")

	out, err := svc.HandleText(context.Background(), testUser, "hello")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out[0].Text != TextUseButtons || !out[0].Keyboard {
		t.Fatalf("registered text reply = %+v", out[0])
	}
}

func TestUnregisteredTextAsksForStart(t *testing.T) {
	svc, _ := newTestService([]string{"a"}, &memStats{})
	out, err := svc.HandleText(context.Background(), testUser, "hello")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out[0].Text != TextNotRegistered {
		t.Fatalf("reply = %q", out[0].Text)
	}
}

func TestRequestTestDeliversAssetsInOrder(t *testing.T) {
	dir := t.TempDir()
	img1 := filepath.Join(dir, "q1.png")
	img3 := filepath.Join(dir, "q3.png")
	if err := os.WriteFile(img1, []byte("png-1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(img3, []byte("png-3"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "q2.png")

	svc, sessions := newTestService([]string{"a"}, &memStats{}, img1, missing, img3)
	register(t, svc, "Anna", "Lee")

	out, err := svc.RequestTest(context.Background(), testUser)
	if err != nil {
		t.Fatalf("request test: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("outbound count = %d, want 4", len(out))
	}
	if string(out[0].Photo) != "png-1" {
		t.Errorf("first asset = %q", out[0].Photo)
	}
	if out[1].Text != "Image 2 of 3 could not be delivered." {
		t.Errorf("missing asset reply = %q", out[1].Text)
	}
	if string(out[2].Photo) != "png-3" {
		t.Errorf("third asset = %q", out[2].Photo)
	}
	if out[3].Text != TextInstructions {
		t.Errorf("instructions = %q", out[3].Text)
	}
	if st := sessions.GetState(testUser); st != StateTestSent {
		t.Fatalf("state = %s", st)
	}
}

func TestRequestTestOnlyOnce(t *testing.T) {
	svc, _ := newTestService([]string{"a"}, &memStats{})
	register(t, svc, "Anna", "Lee")
	ctx := context.Background()

	if _, err := svc.RequestTest(ctx, testUser); err != nil {
		t.Fatalf("first request: %v", err)
	}
	out, err := svc.RequestTest(ctx, testUser)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if len(out) != 1 || out[0].Text != TextAlreadyReceived {
		t.Fatalf("second request reply = %+v", out)
	}
}

func TestSubmitCountMismatch(t *testing.T) {
	stats := &memStats{}
	svc, sessions := newTestService([]string{"a", "b", "c"}, stats)
	register(t, svc, "Anna", "Lee")
	ctx := context.Background()
	if _, err := svc.RequestTest(ctx, testUser); err != nil {
		t.Fatalf("request test: %v", err)
	}

	out, err := svc.HandleText(ctx, testUser, "ab")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := "The number of answers (2) does not match the number of questions (3). Try again."
	if out[0].Text != want {
		t.Fatalf("mismatch reply = %q", out[0].Text)
	}
	if len(stats.records) != 0 {
		t.Fatal("mismatched submission must not be recorded")
	}
	if st := sessions.GetState(testUser); st != StateTestSent {
		t.Fatalf("state after mismatch = %s, want %s", st, StateTestSent)
	}
}

func TestSubmitRecordsAndAdvances(t *testing.T) {
	stats := &memStats{}
	svc, sessions := newTestService([]string{"a", "B", "c"}, stats)
	register(t, svc, "Anna", "Lee")
	ctx := context.Background()
	if _, err := svc.RequestTest(ctx, testUser); err != nil {
		t.Fatalf("request test: %v", err)
	}

	out, err := svc.HandleText(ctx, testUser, "abc")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasPrefix(out[0].Text, "Results:\n") {
		t.Fatalf("report = %q", out[0].Text)
	}
	if !strings.Contains(out[0].Text, "1. a ✅") {
		t.Fatalf("report lines = %q", out[0].Text)
	}

	if len(stats.records) != 1 {
		t.Fatalf("recorded attempts = %d, want 1", len(stats.records))
	}
	rec := stats.records[0]
	if rec.userID != "42" {
		t.Errorf("recorded user id = %q", rec.userID)
	}
	if rec.reg.FirstName != "Anna" || rec.reg.LastName != "Lee" {
		t.Errorf("recorded registration = %+v", rec.reg)
	}
	if want := []int{1, 1, 1}; !reflect.DeepEqual(rec.vector, want) {
		t.Errorf("recorded vector = %v, want %v", rec.vector, want)
	}
	if st := sessions.GetState(testUser); st != StateAnswersSubmitted {
		t.Fatalf("state = %s", st)
	}
}

func TestSubmitWithoutRegistrationData(t *testing.T) {
	stats := &memStats{}
	svc, sessions := newTestService([]string{"a"}, stats)
	// Session claims the test was sent but holds no registration data.
	sessions.SetState(testUser, StateTestSent)

	out, err := svc.HandleText(context.Background(), testUser, "a")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out[0].Text != TextDataNotFound {
		t.Fatalf("reply = %q", out[0].Text)
	}
	if len(stats.records) != 0 {
		t.Fatal("unknown user submission must not be recorded")
	}
	if st := sessions.GetState(testUser); st != StateTestSent {
		t.Fatalf("state = %s", st)
	}
}

func TestSubmitStorageFailureKeepsState(t *testing.T) {
	stats := &memStats{recordErr: errors.New("disk full")}
	svc, sessions := newTestService([]string{"a"}, stats)
	register(t, svc, "Anna", "Lee")
	ctx := context.Background()
	if _, err := svc.RequestTest(ctx, testUser); err != nil {
		t.Fatalf("request test: %v", err)
	}

	if _, err := svc.HandleText(ctx, testUser, "a"); err == nil {
		t.Fatal("expected error when recording fails")
	}
	if st := sessions.GetState(testUser); st != StateTestSent {
		t.Fatalf("state after failed record = %s, want %s", st, StateTestSent)
	}
}

func TestRepeatSubmission(t *testing.T) {
	stats := &memStats{}
	svc, _ := newTestService([]string{"a"}, stats)
	register(t, svc, "Anna", "Lee")
	ctx := context.Background()
	if _, err := svc.RequestTest(ctx, testUser); err != nil {
		t.Fatalf("request test: %v", err)
	}
	if _, err := svc.HandleText(ctx, testUser, "a"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	out, err := svc.HandleText(ctx, testUser, "a")
	if err != nil {
		t.Fatalf("repeat submit: %v", err)
	}
	if out[0].Text != TextAlreadySubmitted {
		t.Fatalf("repeat reply = %q", out[0].Text)
	}
	if len(stats.records) != 1 {
		t.Fatalf("recorded attempts = %d, want 1", len(stats.records))
	}
}

func TestShowStatsRanking(t *testing.T) {
	stats := &memStats{users: map[string]UserRecord{
		"1": {FirstName: "Anna", LastName: "Lee", Scores: []int{1, 0, 1}},
		"2": {FirstName: "Boris", LastName: "Young", Scores: []int{1, 1, 1}},
	}}
	svc, _ := newTestService([]string{"a"}, stats)

	out, err := svc.ShowStats(context.Background())
	if err != nil {
		t.Fatalf("show stats: %v", err)
	}
	lines := strings.Split(out[0].Text, "\n")
	if lines[0] != "Statistics 📊:" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "1. Boris Young - 3 correct answers" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if lines[2] != "2. Anna Lee - 2 correct answers" {
		t.Errorf("line 2 = %q", lines[2])
	}
}

func TestShowStatsEmpty(t *testing.T) {
	svc, _ := newTestService([]string{"a"}, &memStats{})
	out, err := svc.ShowStats(context.Background())
	if err != nil {
		t.Fatalf("show stats: %v", err)
	}
	if out[0].Text != TextNoStats {
		t.Fatalf("reply = %q", out[0].Text)
	}
}

func TestShowStatsLoadFailure(t *testing.T) {
	stats := &memStats{loadErr: ErrStorageUnavailable}
	svc, _ := newTestService([]string{"a"}, stats)
	if _, err := svc.ShowStats(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}
