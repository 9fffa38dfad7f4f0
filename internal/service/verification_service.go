package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/verification-bot/internal/config"
	"github.com/spec-kit/verification-bot/internal/domain"
	"github.com/spec-kit/verification-bot/internal/events"
	"github.com/spec-kit/verification-bot/internal/repository"
	"github.com/spec-kit/verification-bot/internal/session"
	"github.com/spec-kit/verification-bot/internal/storage"
)

// Failure stages reported in outcomes and events.
const (
	StageIngest = "ingest"
	StageAppend = "append"
)

// Messenger sends conversation messages and fetches submitted content.
type Messenger interface {
	ReplyText(ctx context.Context, replyToken, text string) error
	PushText(ctx context.Context, to, text string) error
	Content(ctx context.Context, messageID string) (io.ReadCloser, string, error)
}

// MembershipLookup answers whether a user already has a finalized record.
type MembershipLookup interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// RecordWriter appends finalized verification records.
type RecordWriter interface {
	Append(ctx context.Context, record domain.VerificationRecord) error
}

// VerificationService drives the per-user verification conversation.
type VerificationService struct {
	sessions      session.Store
	locks         *session.KeyedLocker
	members       MembershipLookup
	ingestor      storage.Ingestor
	records       RecordWriter
	messenger     Messenger
	deliveries    repository.DeliveryRepository
	dispatcher    events.Dispatcher
	messages      Messages
	triggers      map[string]struct{}
	pendingMarker string
	concurrency   int
	logger        *zap.Logger
	now           func() time.Time
}

// VerificationDependencies bundles collaborators for the verification service.
type VerificationDependencies struct {
	Sessions   session.Store
	Members    MembershipLookup
	Ingestor   storage.Ingestor
	Records    RecordWriter
	Messenger  Messenger
	Deliveries repository.DeliveryRepository
	Dispatcher events.Dispatcher
	Messages   *Messages
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewVerificationService constructs the service.
func NewVerificationService(cfg config.VerificationConfig, deps VerificationDependencies) *VerificationService {
	triggers := make(map[string]struct{}, len(cfg.TriggerKeywords))
	for _, kw := range cfg.TriggerKeywords {
		triggers[strings.TrimSpace(kw)] = struct{}{}
	}

	messages := DefaultMessages()
	if deps.Messages != nil {
		messages = *deps.Messages
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 16
	}

	return &VerificationService{
		sessions:      sessions,
		locks:         session.NewKeyedLocker(),
		members:       deps.Members,
		ingestor:      deps.Ingestor,
		records:       deps.Records,
		messenger:     deps.Messenger,
		deliveries:    deps.Deliveries,
		dispatcher:    deps.Dispatcher,
		messages:      messages,
		triggers:      triggers,
		pendingMarker: cfg.PendingMarker,
		concurrency:   concurrency,
		logger:        logger,
		now:           clock,
	}
}

// Handle applies one inbound event to its user's session. Events that match no
// transition return a nil outcome and no error.
func (s *VerificationService) Handle(ctx context.Context, ev domain.InboundEvent) (*domain.Outcome, error) {
	if !ev.Actionable() {
		return nil, nil
	}

	unlock := s.locks.Lock(ev.UserID)
	defer unlock()

	sess, ok := s.sessions.Get(ev.UserID)

	switch ev.Kind {
	case domain.EventKindText:
		text := strings.TrimSpace(ev.Text)
		if !ok {
			if !s.isTrigger(text) {
				return nil, nil
			}
			return s.start(ctx, ev)
		}
		switch step := sess.Step.(type) {
		case domain.AwaitingPhone:
			return s.advance(ctx, ev, sess, domain.AwaitingHandle{Phone: text}, s.messages.AskHandle, domain.ActionPromptHandle)
		case domain.AwaitingHandle:
			return s.advance(ctx, ev, sess, domain.AwaitingImage{Phone: step.Phone, Handle: text}, s.messages.AskImage, domain.ActionPromptImage)
		default:
			return nil, nil
		}

	case domain.EventKindImage:
		if !ok {
			return nil, nil
		}
		step, waiting := sess.Step.(domain.AwaitingImage)
		if !waiting {
			return nil, nil
		}
		return s.complete(ctx, ev, step)
	}

	return nil, nil
}

// Session returns a copy of the user's active session.
func (s *VerificationService) Session(userID string) (domain.Session, bool) {
	return s.sessions.Get(userID)
}

func (s *VerificationService) isTrigger(text string) bool {
	_, ok := s.triggers[text]
	return ok
}

func (s *VerificationService) start(ctx context.Context, ev domain.InboundEvent) (*domain.Outcome, error) {
	if s.isMember(ctx, ev.UserID) {
		s.publishEvent(ctx, events.Event{Type: events.EventVerificationDuplicate, UserID: ev.UserID})
		outcome := &domain.Outcome{UserID: ev.UserID, Action: domain.ActionAlreadyMember}
		return outcome, s.respond(ctx, ev, s.messages.AlreadyMember)
	}

	now := s.now()
	s.sessions.Put(domain.Session{
		UserID:    ev.UserID,
		Step:      domain.AwaitingPhone{},
		StartedAt: now,
		UpdatedAt: now,
	})
	s.logger.Info("verification started", zap.String("user_id", ev.UserID))
	s.publishEvent(ctx, events.Event{Type: events.EventVerificationStarted, UserID: ev.UserID})

	outcome := &domain.Outcome{UserID: ev.UserID, Action: domain.ActionPromptPhone, State: domain.StateAwaitingPhone}
	return outcome, s.respond(ctx, ev, s.messages.AskPhone)
}

// isMember fails open: a lookup error is treated as "not a member".
func (s *VerificationService) isMember(ctx context.Context, userID string) bool {
	if s.members == nil {
		return false
	}
	exists, err := s.members.Exists(ctx, userID)
	if err != nil {
		s.logger.Warn("membership lookup failed; treating as new user",
			zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return exists
}

func (s *VerificationService) advance(ctx context.Context, ev domain.InboundEvent, sess domain.Session, next domain.Step, prompt string, action domain.OutcomeAction) (*domain.Outcome, error) {
	from := sess.State()
	s.sessions.Put(sess.Advance(next, s.now()))

	s.logger.Info("verification step advanced",
		zap.String("user_id", ev.UserID),
		zap.String("from", string(from)),
		zap.String("to", string(next.State())))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventVerificationStepAdvanced,
		UserID:  ev.UserID,
		Payload: events.StepAdvancedPayload{From: from, To: next.State()},
	})

	outcome := &domain.Outcome{UserID: ev.UserID, Action: action, State: next.State()}
	return outcome, s.respond(ctx, ev, prompt)
}

func (s *VerificationService) complete(ctx context.Context, ev domain.InboundEvent, step domain.AwaitingImage) (*domain.Outcome, error) {
	if err := s.messenger.PushText(ctx, ev.UserID, s.messages.Processing); err != nil {
		s.logger.Warn("processing notice not delivered", zap.String("user_id", ev.UserID), zap.Error(err))
	}

	reference, err := s.ingest(ctx, ev)
	if err != nil {
		return s.fail(ctx, ev, StageIngest, s.messages.IngestFailedReason, err)
	}

	record := domain.VerificationRecord{
		UserID:       ev.UserID,
		Phone:        step.Phone,
		Handle:       step.Handle,
		Reference:    reference,
		ReviewStatus: s.pendingMarker,
	}
	if err := s.records.Append(ctx, record); err != nil {
		return s.fail(ctx, ev, StageAppend, s.messages.AppendFailedReason, err)
	}

	s.sessions.Delete(ev.UserID)
	s.logger.Info("verification completed",
		zap.String("user_id", ev.UserID),
		zap.Int("reference_length", len(reference)))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventVerificationCompleted,
		UserID:  ev.UserID,
		Payload: events.CompletedPayload{Phone: step.Phone, Handle: step.Handle, Reference: reference},
	})

	outcome := &domain.Outcome{UserID: ev.UserID, Action: domain.ActionCompleted, Reference: reference}
	if err := s.messenger.PushText(ctx, ev.UserID, s.messages.Success); err != nil {
		return outcome, fmt.Errorf("push success to %s: %w", ev.UserID, err)
	}
	return outcome, nil
}

func (s *VerificationService) ingest(ctx context.Context, ev domain.InboundEvent) (string, error) {
	body, contentType, err := s.messenger.Content(ctx, ev.ContentID)
	if err != nil {
		return "", fmt.Errorf("fetch content %s: %w", ev.ContentID, err)
	}
	defer body.Close()

	return s.ingestor.Ingest(ctx, storage.Artifact{
		UserID:      ev.UserID,
		ContentType: contentType,
		Body:        body,
	})
}

// fail reports a final-step failure to the user. The session is left untouched so the
// next image retries both ingest and append with the stored phone and handle.
func (s *VerificationService) fail(ctx context.Context, ev domain.InboundEvent, stage, reason string, cause error) (*domain.Outcome, error) {
	s.logger.Error("verification step failed",
		zap.String("user_id", ev.UserID),
		zap.String("stage", stage),
		zap.Error(cause))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventVerificationFailed,
		UserID:  ev.UserID,
		Payload: events.FailedPayload{Stage: stage, Reason: cause.Error()},
	})

	outcome := &domain.Outcome{
		UserID: ev.UserID,
		Action: domain.ActionFailed,
		State:  domain.StateAwaitingImage,
		Reason: stage + "_failed",
	}
	if err := s.messenger.PushText(ctx, ev.UserID, s.messages.Failure(reason)); err != nil {
		return outcome, fmt.Errorf("push failure to %s: %w", ev.UserID, err)
	}
	return outcome, nil
}

// respond uses the reply token when present and falls back to push otherwise.
func (s *VerificationService) respond(ctx context.Context, ev domain.InboundEvent, text string) error {
	if ev.ReplyToken != "" {
		if err := s.messenger.ReplyText(ctx, ev.ReplyToken, text); err != nil {
			return fmt.Errorf("reply to %s: %w", ev.UserID, err)
		}
		return nil
	}
	if err := s.messenger.PushText(ctx, ev.UserID, text); err != nil {
		return fmt.Errorf("push to %s: %w", ev.UserID, err)
	}
	return nil
}

// EvictIdle drops sessions untouched for longer than idle and returns the evicted user ids.
func (s *VerificationService) EvictIdle(ctx context.Context, idle time.Duration) []string {
	if idle <= 0 {
		return nil
	}
	cutoff := s.now().Add(-idle)

	var evicted []string
	for _, userID := range s.sessions.IdleSince(cutoff) {
		if s.evictIfIdle(ctx, userID, cutoff) {
			evicted = append(evicted, userID)
		}
	}
	return evicted
}

func (s *VerificationService) evictIfIdle(ctx context.Context, userID string, cutoff time.Time) bool {
	unlock := s.locks.Lock(userID)
	defer unlock()

	sess, ok := s.sessions.Get(userID)
	if !ok || !sess.UpdatedAt.Before(cutoff) {
		return false
	}
	s.sessions.Delete(userID)
	s.logger.Info("idle session evicted",
		zap.String("user_id", userID),
		zap.String("state", string(sess.State())))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventVerificationEvicted,
		UserID:  userID,
		Payload: events.EvictedPayload{State: sess.State(), IdleSince: sess.UpdatedAt},
	})
	return true
}

func (s *VerificationService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
