package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/verification-bot/internal/domain"
	"github.com/spec-kit/verification-bot/internal/events"
	"github.com/spec-kit/verification-bot/internal/repository"
)

func walkToImage(t *testing.T, f *fixture, userID string) {
	t.Helper()
	ctx := context.Background()
	for _, text := range []string{"驗證", "0912345678", "lineid123"} {
		_, err := f.svc.Handle(ctx, textEvent(userID, text))
		require.NoError(t, err)
	}
}

func TestHandleFullConversation(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	msgs := DefaultMessages()

	out, err := f.svc.Handle(ctx, textEvent("U1", "驗證"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPromptPhone, out.Action)
	sess, ok := f.store.Get("U1")
	require.True(t, ok)
	assert.Equal(t, domain.AwaitingPhone{}, sess.Step)

	out, err = f.svc.Handle(ctx, textEvent("U1", "0912345678"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPromptHandle, out.Action)
	sess, _ = f.store.Get("U1")
	assert.Equal(t, domain.AwaitingHandle{Phone: "0912345678"}, sess.Step)

	out, err = f.svc.Handle(ctx, textEvent("U1", "lineid123"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingImage, out.State)
	sess, _ = f.store.Get("U1")
	assert.Equal(t, domain.AwaitingImage{Phone: "0912345678", Handle: "lineid123"}, sess.Step)

	assert.Equal(t, []string{msgs.AskPhone, msgs.AskHandle, msgs.AskImage}, f.messenger.replyTexts())

	out, err = f.svc.Handle(ctx, imageEvent("U1", "m-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCompleted, out.Action)

	_, ok = f.store.Get("U1")
	assert.False(t, ok)

	records := f.records.appended()
	require.Len(t, records, 1)
	assert.Equal(t, []interface{}{"U1", "0912345678", "lineid123", out.Reference, "待審核"}, records[0].Row())
	assert.Equal(t, "data:image/jpeg;base64,aW1hZ2U6bS0x", out.Reference)
	assert.Equal(t, []string{msgs.Processing, msgs.Success}, f.messenger.pushTexts())
}

func TestHandleAlreadyMember(t *testing.T) {
	f := newFixture(nil)
	f.members.members["U1"] = true

	out, err := f.svc.Handle(context.Background(), textEvent("U1", "認證"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAlreadyMember, out.Action)
	assert.Equal(t, []string{DefaultMessages().AlreadyMember}, f.messenger.replyTexts())
	assert.Equal(t, 0, f.store.Len())
}

func TestHandleLookupFailureFailsOpen(t *testing.T) {
	f := newFixture(nil)
	f.members.err = errors.New("sheets: 503")

	out, err := f.svc.Handle(context.Background(), textEvent("U1", "驗證"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPromptPhone, out.Action)
	_, ok := f.store.Get("U1")
	assert.True(t, ok)
}

func TestHandleIgnoresUnrelatedText(t *testing.T) {
	f := newFixture(nil)

	out, err := f.svc.Handle(context.Background(), textEvent("U1", "hello"))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Empty(t, f.messenger.replyTexts())
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.members.calls)
}

func TestHandleTrimsTriggerAndInputs(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, textEvent("U1", "  驗證 \n"))
	require.NoError(t, err)
	_, err = f.svc.Handle(ctx, textEvent("U1", " 0912345678 "))
	require.NoError(t, err)

	sess, ok := f.store.Get("U1")
	require.True(t, ok)
	assert.Equal(t, domain.AwaitingHandle{Phone: "0912345678"}, sess.Step)
}

func TestHandleTriggerMidFlowIsTreatedAsInput(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, textEvent("U1", "驗證"))
	require.NoError(t, err)
	_, err = f.svc.Handle(ctx, textEvent("U1", "驗證"))
	require.NoError(t, err)

	sess, _ := f.store.Get("U1")
	assert.Equal(t, domain.AwaitingHandle{Phone: "驗證"}, sess.Step)
	assert.Equal(t, 1, f.members.calls)
}

func TestHandleIgnoresTextWhileAwaitingImage(t *testing.T) {
	f := newFixture(nil)
	walkToImage(t, f, "U1")

	out, err := f.svc.Handle(context.Background(), textEvent("U1", "where do I upload?"))
	require.NoError(t, err)
	assert.Nil(t, out)

	sess, _ := f.store.Get("U1")
	assert.Equal(t, domain.AwaitingImage{Phone: "0912345678", Handle: "lineid123"}, sess.Step)
	assert.Len(t, f.messenger.replyTexts(), 3)
}

func TestHandleIgnoresImageOutsideImageStep(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	out, err := f.svc.Handle(ctx, imageEvent("U1", "m-1"))
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = f.svc.Handle(ctx, textEvent("U1", "驗證"))
	require.NoError(t, err)
	out, err = f.svc.Handle(ctx, imageEvent("U1", "m-2"))
	require.NoError(t, err)
	assert.Nil(t, out)

	assert.Equal(t, 0, f.ingestor.calls)
	sess, _ := f.store.Get("U1")
	assert.Equal(t, domain.StateAwaitingPhone, sess.State())
}

func TestHandleIgnoresNonActionableEvents(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	for _, ev := range []domain.InboundEvent{
		{Kind: domain.EventKindOther, UserID: "U1"},
		{Kind: domain.EventKindText, Text: "驗證"},
		{Kind: domain.EventKindImage, UserID: "U1"},
	} {
		out, err := f.svc.Handle(ctx, ev)
		require.NoError(t, err)
		assert.Nil(t, out)
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestHandleAppendFailureKeepsSession(t *testing.T) {
	f := newFixture(nil)
	f.records.errs = []error{errors.New("quota exceeded")}
	walkToImage(t, f, "U1")
	ctx := context.Background()

	out, err := f.svc.Handle(ctx, imageEvent("U1", "m-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFailed, out.Action)
	assert.Equal(t, "append_failed", out.Reason)

	sess, ok := f.store.Get("U1")
	require.True(t, ok)
	assert.Equal(t, domain.AwaitingImage{Phone: "0912345678", Handle: "lineid123"}, sess.Step)
	assert.Empty(t, f.records.appended())

	msgs := DefaultMessages()
	assert.Equal(t, []string{msgs.Processing, msgs.Failure(msgs.AppendFailedReason)}, f.messenger.pushTexts())

	out, err = f.svc.Handle(ctx, imageEvent("U1", "m-2"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCompleted, out.Action)

	records := f.records.appended()
	require.Len(t, records, 1)
	assert.Equal(t, "0912345678", records[0].Phone)
	assert.Equal(t, "lineid123", records[0].Handle)
	assert.Equal(t, 2, f.ingestor.calls)
}

func TestHandleIngestFailureKeepsSession(t *testing.T) {
	f := newFixture(nil)
	f.ingestor.errs = []error{errors.New("drive: 500")}
	walkToImage(t, f, "U1")

	out, err := f.svc.Handle(context.Background(), imageEvent("U1", "m-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFailed, out.Action)
	assert.Equal(t, "ingest_failed", out.Reason)
	assert.Equal(t, 0, f.records.calls)

	sess, ok := f.store.Get("U1")
	require.True(t, ok)
	assert.Equal(t, domain.StateAwaitingImage, sess.State())
}

func TestHandleContentFetchFailureKeepsSession(t *testing.T) {
	f := newFixture(nil)
	walkToImage(t, f, "U1")
	f.messenger.contentErr = errors.New("content expired")

	out, err := f.svc.Handle(context.Background(), imageEvent("U1", "m-1"))
	require.NoError(t, err)
	assert.Equal(t, "ingest_failed", out.Reason)
	assert.Equal(t, 0, f.ingestor.calls)
	_, ok := f.store.Get("U1")
	assert.True(t, ok)
}

func TestHandleReplyFailureAfterStateChange(t *testing.T) {
	f := newFixture(nil)
	f.messenger.replyErr = errors.New("invalid reply token")

	out, err := f.svc.Handle(context.Background(), textEvent("U1", "驗證"))
	require.Error(t, err)
	require.NotNil(t, out)
	assert.Equal(t, domain.ActionPromptPhone, out.Action)

	_, ok := f.store.Get("U1")
	assert.True(t, ok)
}

func TestHandleFallsBackToPushWithoutReplyToken(t *testing.T) {
	f := newFixture(nil)
	ev := textEvent("U1", "驗證")
	ev.ReplyToken = ""

	_, err := f.svc.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, f.messenger.replyTexts())
	assert.Equal(t, []string{DefaultMessages().AskPhone}, f.messenger.pushTexts())
}

func TestHandleConcurrentUsersAreIsolated(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		userID := fmt.Sprintf("U%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, text := range []string{"驗證", "09" + userID, "id-" + userID} {
				_, err := f.svc.Handle(ctx, textEvent(userID, text))
				assert.NoError(t, err)
			}
			_, err := f.svc.Handle(ctx, imageEvent(userID, "m-"+userID))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records := f.records.appended()
	require.Len(t, records, 20)
	for _, r := range records {
		assert.Equal(t, "09"+r.UserID, r.Phone)
		assert.Equal(t, "id-"+r.UserID, r.Handle)
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestHandlePublishesLifecycleEvents(t *testing.T) {
	f := newFixture(nil)
	dispatcher := events.NewInMemoryDispatcher(nil)
	f.svc.dispatcher = dispatcher

	var mu sync.Mutex
	var seen []events.EventType
	record := func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		return nil
	}
	for _, typ := range []events.EventType{
		events.EventVerificationStarted,
		events.EventVerificationStepAdvanced,
		events.EventVerificationCompleted,
	} {
		dispatcher.Subscribe(typ, record)
	}

	walkToImage(t, f, "U1")
	_, err := f.svc.Handle(context.Background(), imageEvent("U1", "m-1"))
	require.NoError(t, err)

	assert.Equal(t, []events.EventType{
		events.EventVerificationStarted,
		events.EventVerificationStepAdvanced,
		events.EventVerificationStepAdvanced,
		events.EventVerificationCompleted,
	}, seen)
}

func TestEvictIdle(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, textEvent("U1", "驗證"))
	require.NoError(t, err)
	*f.clock = f.clock.Add(20 * time.Minute)
	_, err = f.svc.Handle(ctx, textEvent("U2", "驗證"))
	require.NoError(t, err)
	*f.clock = f.clock.Add(15 * time.Minute)

	assert.Nil(t, f.svc.EvictIdle(ctx, 0))

	evicted := f.svc.EvictIdle(ctx, 30*time.Minute)
	assert.Equal(t, []string{"U1"}, evicted)

	_, ok := f.svc.Session("U1")
	assert.False(t, ok)
	_, ok = f.svc.Session("U2")
	assert.True(t, ok)
}

func TestHandleBatchKeepsPerUserOrder(t *testing.T) {
	f := newFixture(nil)

	batch := []domain.InboundEvent{
		textEvent("U1", "驗證"),
		textEvent("U2", "驗證"),
		textEvent("U1", "0912345678"),
		{Kind: domain.EventKindOther, UserID: "U3"},
		textEvent("U2", "0987654321"),
		textEvent("U1", "lineid123"),
		imageEvent("U1", "m-1"),
	}

	outcomes, err := f.svc.HandleBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, outcomes, len(batch))

	assert.Equal(t, domain.ActionPromptPhone, outcomes[0].Action)
	assert.Equal(t, domain.ActionPromptPhone, outcomes[1].Action)
	assert.Equal(t, domain.ActionPromptHandle, outcomes[2].Action)
	assert.Nil(t, outcomes[3])
	assert.Equal(t, domain.ActionPromptHandle, outcomes[4].Action)
	assert.Equal(t, domain.ActionPromptImage, outcomes[5].Action)
	assert.Equal(t, domain.ActionCompleted, outcomes[6].Action)

	sess, ok := f.store.Get("U2")
	require.True(t, ok)
	assert.Equal(t, domain.AwaitingHandle{Phone: "0987654321"}, sess.Step)
	require.Len(t, f.records.appended(), 1)
}

func TestHandleBatchSkipsSeenDeliveries(t *testing.T) {
	f := newFixture(repository.NewMemoryDeliveryRepository(time.Minute))
	ctx := context.Background()

	ev := textEvent("U1", "驗證")
	ev.WebhookEventID = "01HX-1"

	outcomes, err := f.svc.HandleBatch(ctx, []domain.InboundEvent{ev})
	require.NoError(t, err)
	require.NotNil(t, outcomes[0])

	ev.Redelivery = true
	outcomes, err = f.svc.HandleBatch(ctx, []domain.InboundEvent{ev})
	require.NoError(t, err)
	assert.Nil(t, outcomes[0])

	sess, _ := f.store.Get("U1")
	assert.Equal(t, domain.StateAwaitingPhone, sess.State())
	assert.Len(t, f.messenger.replyTexts(), 1)
}

func TestHandleBatchDedupFailsOpen(t *testing.T) {
	f := newFixture(failingDeliveries{})

	ev := textEvent("U1", "驗證")
	ev.WebhookEventID = "01HX-1"

	outcomes, err := f.svc.HandleBatch(context.Background(), []domain.InboundEvent{ev})
	require.NoError(t, err)
	require.NotNil(t, outcomes[0])
	assert.Equal(t, domain.ActionPromptPhone, outcomes[0].Action)
}

func TestHandleBatchJoinsErrorsAndContinues(t *testing.T) {
	f := newFixture(nil)
	f.messenger.replyErr = errors.New("invalid reply token")

	batch := []domain.InboundEvent{
		textEvent("U1", "驗證"),
		textEvent("U1", "0912345678"),
		textEvent("U2", "驗證"),
	}
	outcomes, err := f.svc.HandleBatch(context.Background(), batch)
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid reply token")

	for _, out := range outcomes {
		assert.NotNil(t, out)
	}
	sess, _ := f.store.Get("U1")
	assert.Equal(t, domain.StateAwaitingHandle, sess.State())
}

func TestHandleBatchEmpty(t *testing.T) {
	f := newFixture(nil)

	outcomes, err := f.svc.HandleBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestHandleBatchSameUserConcurrentDeliveries(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	answers := []string{"0912345678", "lineid123"}

	for round := 0; round < 200; round++ {
		f.store.Put(domain.Session{UserID: "U1", Step: domain.AwaitingPhone{}})

		var wg sync.WaitGroup
		for _, text := range answers {
			ev := textEvent("U1", text)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.HandleBatch(ctx, []domain.InboundEvent{ev})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		sess, ok := f.store.Get("U1")
		require.True(t, ok)
		step, ok := sess.Step.(domain.AwaitingImage)
		require.Truef(t, ok, "round %d ended in %s", round, sess.State())
		assert.ElementsMatch(t, answers, []string{step.Phone, step.Handle})
	}
}
