package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

// Magic inputs that let local runs exercise every settlement path.
const (
	// Accounts with this prefix need onboarding until POST /v1/accounts/{id}/verify.
	pendingAccountPrefix = "acct_pending"
	// Destinations with this prefix are rejected with 400.
	rejectedAccountPrefix = "acct_reject"
	// Objects for this exact amount fail instead of settling.
	failingAmount int64 = 1313
)

type objectKind string

const (
	kindTransfer objectKind = "transfer"
	kindPayout   objectKind = "payout"
)

type object struct {
	ID               string            `json:"id"`
	Kind             objectKind        `json:"-"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Destination      string            `json:"destination"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	FailureReason    *string           `json:"failure_reason,omitempty"`
	EstimatedArrival *time.Time        `json:"estimated_arrival,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

type account struct {
	ID                 string `json:"id"`
	Verified           bool   `json:"verified"`
	RequiresOnboarding bool   `json:"requires_onboarding"`
}

type createRequest struct {
	Destination string            `json:"destination"`
	Account     string            `json:"account"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

type eventSink interface {
	Send(ctx context.Context, event domain.ProviderWebhook)
}

type provider struct {
	mu          sync.Mutex
	objects     map[string]*object
	byKey       map[string]string
	verified    map[string]bool
	deauthed    map[string]bool
	events      eventSink
	settleAfter time.Duration
	now         func() time.Time
}

func newProvider(events eventSink, settleAfter time.Duration) *provider {
	return &provider{
		objects:     make(map[string]*object),
		byKey:       make(map[string]string),
		verified:    make(map[string]bool),
		deauthed:    make(map[string]bool),
		events:      events,
		settleAfter: settleAfter,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (p *provider) routes(apiKey string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/accounts/{id}", p.getAccount)
	api.HandleFunc("POST /v1/accounts/{id}/verify", p.verifyAccount)
	api.HandleFunc("POST /v1/accounts/{id}/deauthorize", p.deauthorizeAccount)
	api.HandleFunc("POST /v1/transfers", p.create(kindTransfer))
	api.HandleFunc("POST /v1/payouts", p.create(kindPayout))
	api.HandleFunc("GET /v1/transfers/{id}", p.get(kindTransfer))
	api.HandleFunc("GET /v1/payouts/{id}", p.get(kindPayout))
	api.HandleFunc("POST /v1/transfers/{id}/reverse", p.reverse)

	mux.Handle("/v1/", requireKey(apiKey, api))
	return mux
}

func requireKey(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey != "" && r.Header.Get("Authorization") != "Bearer "+apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *provider) accountLocked(id string) account {
	onboarding := strings.HasPrefix(id, pendingAccountPrefix) && !p.verified[id]
	return account{
		ID:                 id,
		Verified:           !onboarding && !p.deauthed[id],
		RequiresOnboarding: onboarding || p.deauthed[id],
	}
}

func (p *provider) getAccount(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	acct := p.accountLocked(r.PathValue("id"))
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, acct)
}

func (p *provider) verifyAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p.mu.Lock()
	p.verified[id] = true
	delete(p.deauthed, id)
	acct := p.accountLocked(id)
	p.mu.Unlock()

	p.emit(r.Context(), domain.WebhookAccountUpdated, id, "verified", nil, nil)
	writeJSON(w, http.StatusOK, acct)
}

func (p *provider) deauthorizeAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p.mu.Lock()
	p.deauthed[id] = true
	acct := p.accountLocked(id)
	p.mu.Unlock()

	p.emit(r.Context(), domain.WebhookAccountDeauthorized, id, "deauthorized", nil, nil)
	writeJSON(w, http.StatusOK, acct)
}

func (p *provider) create(kind objectKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		key := r.Header.Get("Idempotency-Key")

		// A known key replays the original object whatever the account looks like now.
		p.mu.Lock()
		if id, ok := p.byKey[key]; ok && key != "" {
			obj := *p.objects[id]
			p.mu.Unlock()
			writeJSON(w, http.StatusOK, obj)
			return
		}
		p.mu.Unlock()

		dest := req.Destination
		if kind == kindPayout {
			dest = req.Account
		}
		if dest == "" || req.Amount <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "destination and positive amount required"})
			return
		}
		if strings.HasPrefix(dest, rejectedAccountPrefix) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "destination account cannot receive funds"})
			return
		}

		p.mu.Lock()
		if id, ok := p.byKey[key]; ok && key != "" {
			obj := *p.objects[id]
			p.mu.Unlock()
			writeJSON(w, http.StatusOK, obj)
			return
		}
		if acct := p.accountLocked(dest); !acct.Verified {
			p.mu.Unlock()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "account requires onboarding"})
			return
		}

		prefix := "tr_"
		if kind == kindPayout {
			prefix = "po_"
		}
		now := p.now()
		obj := &object{
			ID:          prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
			Kind:        kind,
			Status:      "pending",
			Amount:      req.Amount,
			Currency:    req.Currency,
			Destination: dest,
			Metadata:    req.Metadata,
			CreatedAt:   now,
		}
		if kind == kindPayout {
			eta := now.Add(p.settleAfter)
			obj.EstimatedArrival = &eta
			obj.Status = "in_transit"
		}
		p.objects[obj.ID] = obj
		if key != "" {
			p.byKey[key] = obj.ID
		}
		snapshot := *obj
		p.mu.Unlock()

		slog.Info("object created", "id", obj.ID, "kind", kind, "amount", req.Amount, "destination", dest)
		if kind == kindTransfer {
			p.emit(r.Context(), domain.WebhookTransferCreated, obj.ID, "pending", obj.Metadata, nil)
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

func (p *provider) get(kind objectKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		obj, ok := p.objects[r.PathValue("id")]
		var snapshot object
		if ok {
			snapshot = *obj
		}
		p.mu.Unlock()

		if !ok || snapshot.Kind != kind {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such object"})
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

func (p *provider) reverse(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	obj, ok := p.objects[r.PathValue("id")]
	if !ok || obj.Kind != kindTransfer {
		p.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such transfer"})
		return
	}
	obj.Status = "reversed"
	snapshot := *obj
	p.mu.Unlock()

	p.emit(r.Context(), domain.WebhookTransferReversed, snapshot.ID, snapshot.Status, snapshot.Metadata, nil)
	writeJSON(w, http.StatusOK, snapshot)
}

// settleLoop moves objects older than settleAfter to their final state and reports
// each change as a webhook.
func (p *provider) settleLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.settleDue(ctx, p.now())
		}
	}
}

func (p *provider) settleDue(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-p.settleAfter)

	p.mu.Lock()
	var settled []object
	for _, obj := range p.objects {
		if obj.Status != "pending" && obj.Status != "in_transit" {
			continue
		}
		if obj.CreatedAt.After(cutoff) {
			continue
		}
		if obj.Amount == failingAmount {
			obj.Status = "failed"
			reason := "account_closed"
			obj.FailureReason = &reason
		} else {
			obj.Status = "paid"
		}
		settled = append(settled, *obj)
	}
	p.mu.Unlock()

	for _, obj := range settled {
		p.emit(ctx, settledEvent(obj), obj.ID, obj.Status, obj.Metadata, obj.FailureReason)
	}
	return len(settled)
}

func settledEvent(obj object) domain.WebhookEventType {
	switch {
	case obj.Kind == kindTransfer && obj.Status == "paid":
		return domain.WebhookTransferPaid
	case obj.Kind == kindTransfer:
		return domain.WebhookTransferFailed
	case obj.Status == "paid":
		return domain.WebhookPayoutPaid
	default:
		return domain.WebhookPayoutFailed
	}
}

func (p *provider) emit(ctx context.Context, eventType domain.WebhookEventType, objectID, status string, metadata map[string]string, reason *string) {
	p.events.Send(ctx, domain.ProviderWebhook{
		EventID:       fmt.Sprintf("evt_%s", strings.ReplaceAll(uuid.NewString(), "-", "")),
		Type:          eventType,
		ObjectID:      objectID,
		Status:        status,
		Metadata:      metadata,
		FailureReason: reason,
		CreatedAt:     p.now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
