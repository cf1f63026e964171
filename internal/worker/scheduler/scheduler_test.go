package schedulerworker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aidanalabs/agenda-bot/internal/business"
	"github.com/aidanalabs/agenda-bot/internal/conversation"
	"github.com/aidanalabs/agenda-bot/internal/reservation"
)

type sentMessage struct {
	conversationID uuid.UUID
	to             string
	body           string
}

type recordingSender struct {
	sent []sentMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, conversationID uuid.UUID, to, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{conversationID: conversationID, to: to, body: body})
	return nil
}

type staticProfiles struct {
	profile *business.Profile
}

func (s *staticProfiles) Get(_ context.Context, orgID string) (*business.Profile, error) {
	if s.profile != nil {
		return s.profile, nil
	}
	return business.DefaultProfile(orgID), nil
}

// fakeReminderStore hands out the same due reservations on every list call
// but lets each claim succeed only once, like the flag-guarded UPDATE does.
type fakeReminderStore struct {
	due24     []reservation.Reservation
	due1      []reservation.Reservation
	claimed24 map[uuid.UUID]bool
	claimed1  map[uuid.UUID]bool
}

func newFakeReminderStore() *fakeReminderStore {
	return &fakeReminderStore{claimed24: map[uuid.UUID]bool{}, claimed1: map[uuid.UUID]bool{}}
}

func (f *fakeReminderStore) ListDue24hReminders(_ context.Context, _, _ time.Time) ([]reservation.Reservation, error) {
	return f.due24, nil
}

func (f *fakeReminderStore) ListDue1hReminders(_ context.Context, _, _ time.Time) ([]reservation.Reservation, error) {
	return f.due1, nil
}

func (f *fakeReminderStore) MarkReminder24hSent(_ context.Context, id uuid.UUID) (bool, error) {
	if f.claimed24[id] {
		return false, nil
	}
	f.claimed24[id] = true
	return true, nil
}

func (f *fakeReminderStore) MarkReminder1hSent(_ context.Context, id uuid.UUID) (bool, error) {
	if f.claimed1[id] {
		return false, nil
	}
	f.claimed1[id] = true
	return true, nil
}

type fakeAttendanceStore struct {
	due     []reservation.Reservation
	claimed map[uuid.UUID]bool
}

func (f *fakeAttendanceStore) ListAttendanceDue(_ context.Context, _, _ time.Time) ([]reservation.Reservation, error) {
	return f.due, nil
}

func (f *fakeAttendanceStore) MarkAwaitingAttendance(_ context.Context, id uuid.UUID) (bool, error) {
	if f.claimed == nil {
		f.claimed = map[uuid.UUID]bool{}
	}
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

type fakeSurveyStore struct {
	due     []reservation.Reservation
	claimed map[uuid.UUID]bool
}

func (f *fakeSurveyStore) ListSurveyDue(_ context.Context, _ int) ([]reservation.Reservation, error) {
	return f.due, nil
}

func (f *fakeSurveyStore) MarkSurveySent(_ context.Context, id uuid.UUID) (bool, error) {
	if f.claimed == nil {
		f.claimed = map[uuid.UUID]bool{}
	}
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

type stageWrite struct {
	id    uuid.UUID
	stage string
}

type recordingConversations struct {
	stages []stageWrite
	stale  []conversation.Conversation
	sweeps int
}

func (r *recordingConversations) UpdateStage(_ context.Context, id uuid.UUID, stage string) error {
	r.stages = append(r.stages, stageWrite{id: id, stage: stage})
	return nil
}

// ResetStaleStages hands out the stale set once, like the guarded UPDATE
// that clears the stage as it returns the rows.
func (r *recordingConversations) ResetStaleStages(_ context.Context, _ time.Time, _ int) ([]conversation.Conversation, error) {
	r.sweeps++
	if r.sweeps > 1 {
		return nil, nil
	}
	return r.stale, nil
}

type fakePendingStore struct {
	stale   []reservation.Pending
	deleted map[string]bool
}

func (f *fakePendingStore) ListPendingBefore(_ context.Context, _ time.Time, _ int) ([]reservation.Pending, error) {
	return f.stale, nil
}

func (f *fakePendingStore) DeletePending(_ context.Context, userID string) (bool, error) {
	if f.deleted == nil {
		f.deleted = map[string]bool{}
	}
	if f.deleted[userID] {
		return false, nil
	}
	f.deleted[userID] = true
	return true, nil
}

type recordingBuffer struct {
	evicted []string
}

func (r *recordingBuffer) Evict(key string) {
	r.evicted = append(r.evicted, key)
}

type fakeFollowupConversations struct {
	byTier  map[string][]conversation.Conversation
	quoted  []conversation.Conversation
	claimed map[uuid.UUID]int
	cap     int
}

func (f *fakeFollowupConversations) ListFollowupCandidates(_ context.Context, tier string, _ time.Time, _, _ int) ([]conversation.Conversation, error) {
	return f.byTier[tier], nil
}

func (f *fakeFollowupConversations) ListQuoteCandidates(_ context.Context, _ time.Time, _, _ int) ([]conversation.Conversation, error) {
	return f.quoted, nil
}

func (f *fakeFollowupConversations) RecordFollowup(_ context.Context, id uuid.UUID, maxAttempts int, _ time.Time) (bool, error) {
	if f.claimed == nil {
		f.claimed = map[uuid.UUID]int{}
	}
	if f.cap > 0 && maxAttempts > f.cap {
		maxAttempts = f.cap
	}
	if f.claimed[id] >= maxAttempts {
		return false, nil
	}
	f.claimed[id]++
	return true, nil
}
