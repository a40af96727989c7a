package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sefazor/mapcraft-backend/internal/models"
	"github.com/sefazor/mapcraft-backend/internal/repository"
	"github.com/sefazor/mapcraft-backend/pkg/email"
	"github.com/sefazor/mapcraft-backend/pkg/payment"
)

// memoryStore mirrors the SQL semantics of the repositories: each method
// holds the lock for the whole statement or transaction.
type memoryStore struct {
	mu        sync.Mutex
	profiles  map[uuid.UUID]*models.Profile
	processed map[string]bool
	payments  []models.Payment
	downloads []models.MapDownload

	downloadErr error
	grantErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		profiles:  map[uuid.UUID]*models.Profile{},
		processed: map[string]bool{},
	}
}

func (m *memoryStore) addProfile(p models.Profile) *models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.profiles[p.ID] = &p
	return &p
}

func (m *memoryStore) profile(id uuid.UUID) models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.profiles[id]
}

func (m *memoryStore) paymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *memoryStore) downloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.downloads)
}

func (m *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryStore) EnsureProfile(_ context.Context, id uuid.UUID, email string, signupCredits int) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		for _, p := range m.profiles {
			if strings.EqualFold(p.Email, email) {
				return nil, repository.ErrEmailTaken
			}
		}
		m.profiles[id] = &models.Profile{ID: id, Email: email, Credits: signupCredits}
	}
	cp := *m.profiles[id]
	return &cp, nil
}

func (m *memoryStore) ConsumeCredit(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok || p.Credits <= 0 {
		return 0, repository.ErrInsufficientCredits
	}
	p.Credits--
	return p.Credits, nil
}

func (m *memoryStore) ApplyGrant(_ context.Context, grant *models.Grant) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.grantErr != nil {
		return nil, m.grantErr
	}

	var profile *models.Profile
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, grant.Email) {
			profile = p
			break
		}
	}
	if profile == nil {
		return nil, repository.ErrProfileNotFound
	}
	if m.processed[grant.EventKey] {
		return nil, repository.ErrDuplicateEvent
	}
	m.processed[grant.EventKey] = true

	profile.Credits += grant.Credits
	if grant.ProExpiresAt != nil {
		profile.IsPro = true
		until := *grant.ProExpiresAt
		profile.ProExpiresAt = &until
	}
	if grant.Payment != nil {
		grant.Payment.UserID = profile.ID
		m.payments = append(m.payments, *grant.Payment)
	}

	cp := *profile
	return &cp, nil
}

func (m *memoryStore) GetUserPaymentHistory(_ context.Context, userID uuid.UUID, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for i := len(m.payments) - 1; i >= 0 && len(out) < limit; i-- {
		if m.payments[i].UserID == userID {
			out = append(out, m.payments[i])
		}
	}
	return out, nil
}

func (m *memoryStore) Create(_ context.Context, d *models.MapDownload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.downloadErr != nil {
		return m.downloadErr
	}
	m.downloads = append(m.downloads, *d)
	return nil
}

func (m *memoryStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.downloadErr != nil {
		return 0, m.downloadErr
	}
	return int64(len(m.downloads)), nil
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []payment.CheckoutRequest
	create   func(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error)
}

func (f *fakeProvider) Name() string            { return "fake" }
func (f *fakeProvider) SignatureHeader() string { return "X-Signature" }

func (f *fakeProvider) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.create != nil {
		return f.create(ctx, req)
	}
	return &payment.CheckoutSession{ID: "chk_1", URL: "https://checkout.example/chk_1"}, nil
}

func (f *fakeProvider) ParseWebhook([]byte, string) (*models.WebhookEvent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) lastRequest() payment.CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeReceipts struct {
	sent chan email.Receipt
	err  error
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{sent: make(chan email.Receipt, 16)}
}

func (f *fakeReceipts) SendReceipt(r email.Receipt) error {
	f.sent <- r
	return f.err
}
