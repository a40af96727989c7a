package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/internal/models"
)

func consumeReq(id uuid.UUID) models.ConsumeCreditRequest {
	return models.ConsumeCreditRequest{UserID: id.String(), Theme: "noir", Location: "Lisbon", Size: "A3"}
}

func TestCreditService_SignupThenExhaust(t *testing.T) {
	store := newMemoryStore()
	svc := NewCreditService(store, store, zaptest.NewLogger(t))
	profiles := NewProfileService(store, store, 1, zaptest.NewLogger(t))

	id := uuid.New()
	snapshot, err := profiles.GetProfile(context.Background(), id, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Credits)

	resp, err := svc.ConsumeCredit(context.Background(), consumeReq(id))
	require.NoError(t, err)
	assert.Equal(t, &models.ConsumeCreditResponse{Success: true, Credits: 0, IsPro: false}, resp)

	_, err = svc.ConsumeCredit(context.Background(), consumeReq(id))
	require.Error(t, err)
	appErr := apperror.From(err)
	assert.Equal(t, 403, appErr.Kind.Status())
	assert.Equal(t, "No credits remaining", appErr.Message)
	assert.Equal(t, 0, appErr.Fields["credits"])

	assert.Equal(t, 0, store.profile(id).Credits)
	assert.Equal(t, 1, store.downloadCount())
}

func TestCreditService_ActiveProIsUnlimited(t *testing.T) {
	store := newMemoryStore()
	until := time.Now().Add(24 * time.Hour)
	p := store.addProfile(models.Profile{Email: "pro@example.com", Credits: 3, IsPro: true, ProExpiresAt: &until})
	svc := NewCreditService(store, store, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		resp, err := svc.ConsumeCredit(context.Background(), consumeReq(p.ID))
		require.NoError(t, err)
		assert.Equal(t, CreditsUnlimited, resp.Credits)
		assert.True(t, resp.IsPro)
	}

	assert.Equal(t, 3, store.profile(p.ID).Credits)
	assert.Equal(t, 5, store.downloadCount())
}

func TestCreditService_ExpiredProFallsThrough(t *testing.T) {
	store := newMemoryStore()
	expired := time.Now().Add(-time.Hour)
	p := store.addProfile(models.Profile{Email: "lapsed@example.com", Credits: 2, IsPro: true, ProExpiresAt: &expired})
	svc := NewCreditService(store, store, zaptest.NewLogger(t))

	resp, err := svc.ConsumeCredit(context.Background(), consumeReq(p.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Credits)
	assert.False(t, resp.IsPro)
}

func TestCreditService_ProFlagWithoutExpiryIsNotPro(t *testing.T) {
	store := newMemoryStore()
	p := store.addProfile(models.Profile{Email: "flag@example.com", Credits: 0, IsPro: true})
	svc := NewCreditService(store, store, zaptest.NewLogger(t))

	_, err := svc.ConsumeCredit(context.Background(), consumeReq(p.ID))
	assert.True(t, apperror.Is(err, apperror.KindInsufficientEntitlement))
}

func TestCreditService_Errors(t *testing.T) {
	store := newMemoryStore()
	svc := NewCreditService(store, store, zaptest.NewLogger(t))

	_, err := svc.ConsumeCredit(context.Background(), models.ConsumeCreditRequest{UserID: "not-a-uuid"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.ConsumeCredit(context.Background(), models.ConsumeCreditRequest{})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.ConsumeCredit(context.Background(), consumeReq(uuid.New()))
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCreditService_UsageLogFailureIsSwallowed(t *testing.T) {
	store := newMemoryStore()
	p := store.addProfile(models.Profile{Email: "a@example.com", Credits: 2})
	store.downloadErr = errors.New("disk full")
	svc := NewCreditService(store, store, zaptest.NewLogger(t))

	resp, err := svc.ConsumeCredit(context.Background(), consumeReq(p.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Credits)
	assert.Equal(t, 1, store.profile(p.ID).Credits)
}

func TestCreditService_ConcurrentLastCredit(t *testing.T) {
	store := newMemoryStore()
	p := store.addProfile(models.Profile{Email: "race@example.com", Credits: 1})
	svc := NewCreditService(store, store, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.ConsumeCredit(context.Background(), consumeReq(p.ID))
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.Is(err, apperror.KindInsufficientEntitlement):
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 0, store.profile(p.ID).Credits)
}

func TestCreditService_BalanceNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	store := newMemoryStore()
	svc := NewCreditService(store, store, zaptest.NewLogger(t))

	for round := 0; round < 20; round++ {
		start := rng.Intn(5)
		p := store.addProfile(models.Profile{Email: "p@example.com", Credits: start})
		calls := rng.Intn(10)

		var wg sync.WaitGroup
		for i := 0; i < calls; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = svc.ConsumeCredit(context.Background(), consumeReq(p.ID))
			}()
		}
		wg.Wait()

		got := store.profile(p.ID).Credits
		assert.GreaterOrEqual(t, got, 0)
		assert.Equal(t, max(0, start-calls), got)
	}
}
