package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/verification-bot/internal/config"
	"github.com/spec-kit/verification-bot/internal/domain"
	"github.com/spec-kit/verification-bot/internal/repository"
	"github.com/spec-kit/verification-bot/internal/session"
	"github.com/spec-kit/verification-bot/internal/storage"
)

type sentMessage struct {
	To   string
	Text string
}

type fakeMessenger struct {
	mu         sync.Mutex
	replies    []sentMessage
	pushes     []sentMessage
	replyErr   error
	pushErr    error
	contentErr error
}

func (m *fakeMessenger) ReplyText(_ context.Context, token, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replyErr != nil {
		return m.replyErr
	}
	m.replies = append(m.replies, sentMessage{To: token, Text: text})
	return nil
}

func (m *fakeMessenger) PushText(_ context.Context, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return m.pushErr
	}
	m.pushes = append(m.pushes, sentMessage{To: to, Text: text})
	return nil
}

func (m *fakeMessenger) Content(_ context.Context, messageID string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contentErr != nil {
		return nil, "", m.contentErr
	}
	return io.NopCloser(strings.NewReader("image:" + messageID)), "image/jpeg", nil
}

func (m *fakeMessenger) replyTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.replies))
	for _, r := range m.replies {
		out = append(out, r.Text)
	}
	return out
}

func (m *fakeMessenger) pushTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pushes))
	for _, p := range m.pushes {
		out = append(out, p.Text)
	}
	return out
}

type fakeMembers struct {
	mu      sync.Mutex
	members map[string]bool
	err     error
	calls   int
}

func (f *fakeMembers) Exists(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.members[userID], nil
}

// scriptedIngestor returns queued errors first, then a reference derived from the body.
type scriptedIngestor struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	inline *storage.InlineIngestor
}

func (s *scriptedIngestor) Ingest(ctx context.Context, artifact storage.Artifact) (string, error) {
	s.mu.Lock()
	s.calls++
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.inline.Ingest(ctx, artifact)
}

type fakeRecords struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	records []domain.VerificationRecord
}

func (f *fakeRecords) Append(_ context.Context, record domain.VerificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeRecords) appended() []domain.VerificationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.VerificationRecord(nil), f.records...)
}

type failingDeliveries struct{}

func (failingDeliveries) MarkProcessed(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

type fixture struct {
	svc       *VerificationService
	messenger *fakeMessenger
	members   *fakeMembers
	ingestor  *scriptedIngestor
	records   *fakeRecords
	store     *session.MemoryStore
	clock     *time.Time
}

func newFixture(deliveries repository.DeliveryRepository) *fixture {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		messenger: &fakeMessenger{},
		members:   &fakeMembers{members: map[string]bool{}},
		ingestor:  &scriptedIngestor{inline: storage.NewInlineIngestor()},
		records:   &fakeRecords{},
		store:     session.NewMemoryStore(),
		clock:     &now,
	}
	f.svc = NewVerificationService(config.VerificationConfig{
		TriggerKeywords: []string{"驗證", "認證"},
		PendingMarker:   "待審核",
		MaxConcurrency:  4,
	}, VerificationDependencies{
		Sessions:   f.store,
		Members:    f.members,
		Ingestor:   f.ingestor,
		Records:    f.records,
		Messenger:  f.messenger,
		Deliveries: deliveries,
		Clock:      func() time.Time { return *f.clock },
	})
	return f
}

func textEvent(userID, text string) domain.InboundEvent {
	return domain.InboundEvent{Kind: domain.EventKindText, UserID: userID, ReplyToken: "rt-" + text, Text: text}
}

func imageEvent(userID, contentID string) domain.InboundEvent {
	return domain.InboundEvent{Kind: domain.EventKindImage, UserID: userID, ReplyToken: "rt-img", ContentID: contentID}
}
