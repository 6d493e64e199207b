package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
)

// FakeProvider is an in-memory payout.Provider. Submissions are idempotent on the
// request's IdempotencyKey, like the real provider.
type FakeProvider struct {
	mu sync.Mutex

	// Unverified accounts report RequiresOnboarding.
	Unverified map[string]bool
	// SubmitErr, when set, is returned by CreateTransfer and CreatePayout.
	SubmitErr error
	// Statuses overrides what GetTransfer and GetPayout report per external id.
	Statuses map[string]string
	// VerifyErr, when set, is returned by VerifyAccount.
	VerifyErr error
	// LoseResponses makes CreateTransfer and CreatePayout record the object and then
	// fail as if the response never arrived.
	LoseResponses bool

	objects     map[string]string
	Submissions int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Unverified: make(map[string]bool),
		Statuses:   make(map[string]string),
		objects:    make(map[string]string),
	}
}

func (f *FakeProvider) SetUnverified(accountID string, unverified bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Unverified[accountID] = unverified
}

func (f *FakeProvider) SetSubmitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SubmitErr = err
}

func (f *FakeProvider) SetVerifyErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VerifyErr = err
}

func (f *FakeProvider) SetLoseResponses(lose bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LoseResponses = lose
}

// Created returns the provider id recorded under an idempotency key.
func (f *FakeProvider) Created(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.objects[key]
	return id, ok
}

func (f *FakeProvider) SetStatus(externalID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[externalID] = status
}

func (f *FakeProvider) SubmissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Submissions
}

func (f *FakeProvider) VerifyAccount(_ context.Context, accountID string) (*payout.AccountStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.VerifyErr != nil {
		return nil, f.VerifyErr
	}
	if f.Unverified[accountID] {
		return &payout.AccountStatus{RequiresOnboarding: true}, nil
	}
	return &payout.AccountStatus{Verified: true}, nil
}

func (f *FakeProvider) CreateTransfer(_ context.Context, req payout.TransferRequest) (*payout.TransferResult, error) {
	id, err := f.create("tr_", req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return &payout.TransferResult{ExternalID: id}, nil
}

func (f *FakeProvider) CreatePayout(_ context.Context, req payout.PayoutRequest) (*payout.PayoutResult, error) {
	id, err := f.create("po_", req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return &payout.PayoutResult{ExternalID: id}, nil
}

func (f *FakeProvider) GetTransfer(_ context.Context, id string) (*payout.ObjectStatus, error) {
	return f.status(id)
}

func (f *FakeProvider) GetPayout(_ context.Context, id string) (*payout.ObjectStatus, error) {
	return f.status(id)
}

func (f *FakeProvider) create(prefix, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Submissions++
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	id, ok := f.objects[key]
	if !ok {
		id = prefix + key
		f.objects[key] = id
	}
	if f.LoseResponses {
		return "", errors.New("read provider response: connection reset by peer")
	}
	return id, nil
}

func (f *FakeProvider) status(id string) (*payout.ObjectStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.Statuses[id]; ok {
		return &payout.ObjectStatus{Status: s}, nil
	}
	for _, known := range f.objects {
		if known == id {
			return &payout.ObjectStatus{Status: payout.ProviderStatusPending}, nil
		}
	}
	return nil, fmt.Errorf("get %s: %w", id, domain.ErrExternalProvider)
}

var _ payout.Provider = (*FakeProvider)(nil)
