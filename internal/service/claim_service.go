package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmynk/splitclaim/internal/metrics"
	"github.com/mmynk/splitclaim/internal/models"
	"github.com/mmynk/splitclaim/internal/realtime"
	"github.com/mmynk/splitclaim/internal/storage"
)

const maxBodyBytes = 1 << 20

type claimRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	UserID   string `json:"user_id" validate:"required"`
	UserName string `json:"user_name" validate:"required"`
}

type claimResponse struct {
	Status   string `json:"status"`
	NewCount int    `json:"new_count"`
}

type importItem struct {
	Name     string  `json:"name" validate:"required"`
	Quantity int     `json:"quantity" validate:"gte=0"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

type importRequest struct {
	ExternalID  string       `json:"external_id"`
	Currency    string       `json:"currency"`
	TaxAmount   float64      `json:"tax_amount" validate:"gte=0"`
	TipAmount   float64      `json:"tip_amount" validate:"gte=0"`
	TotalAmount float64      `json:"total_amount" validate:"gte=0"`
	Items       []importItem `json:"items" validate:"dive"`
}

type importResponse struct {
	Status string `json:"status"`
	BillID string `json:"bill_id"`
}

const notifyTimeout = 10 * time.Second

// BillReadyNotifier is told when an imported bill that came from a chat is
// ready to be claimed.
type BillReadyNotifier interface {
	BillReady(ctx context.Context, bill *models.Bill) error
}

// ClaimService serves the claim toggle and bill import endpoints.
type ClaimService struct {
	store     storage.Store
	publisher realtime.Publisher
	notifier  BillReadyNotifier
	validator *requestValidator
}

// Option configures a ClaimService.
type Option func(*ClaimService)

// WithBillReadyNotifier notifies n after importing a bill with an external ID.
func WithBillReadyNotifier(n BillReadyNotifier) Option {
	return func(s *ClaimService) { s.notifier = n }
}

// NewClaimService creates a ClaimService. Every applied toggle is published
// on publisher.
func NewClaimService(store storage.Store, publisher realtime.Publisher, opts ...Option) *ClaimService {
	s := &ClaimService{
		store:     store,
		publisher: publisher,
		validator: newRequestValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts the service's routes on mux.
func (s *ClaimService) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", Health)
	mux.HandleFunc("POST /v1/bills", s.ImportBill)
	mux.HandleFunc("POST /v1/bills/{billID}/claim", s.ToggleClaim)
}

// Health reports that the API is up.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "active",
		"service": "Bill Splitter API",
	})
}

// ToggleClaim joins the user to an item's split, or removes them if they are
// already on it. The response carries the item's new claim count.
func (s *ClaimService) ToggleClaim(w http.ResponseWriter, r *http.Request) {
	billID := r.PathValue("billID")

	var req claimRequest
	if err := s.decode(w, r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := s.store.ToggleClaim(r.Context(), billID, req.ItemID, req.UserID, req.UserName)
	if errors.Is(err, storage.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Item not found on bill")
		return
	}
	if err != nil {
		slog.Error("ToggleClaim failed", "bill_id", billID, "item_id", req.ItemID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to toggle claim")
		return
	}

	event := realtime.Event{BillID: billID}
	action := "insert"
	if res.Inserted != nil {
		event.Type = realtime.EventInsert
		event.New = res.Inserted
	} else {
		event.Type = realtime.EventDelete
		event.Old = res.Deleted
		action = "delete"
	}
	metrics.ClaimsToggledTotal.WithLabelValues(action).Inc()

	slog.Info("Claim toggled",
		"bill_id", billID,
		"item_id", req.ItemID,
		"user_id", req.UserID,
		"action", action,
		"new_count", res.Count,
	)

	// The toggle is committed; subscribers that miss this event catch up on
	// their next refetch.
	if err := s.publisher.Publish(r.Context(), event); err != nil {
		metrics.EventsPublishErrorsTotal.Inc()
		slog.Warn("Failed to publish claim event", "bill_id", billID, "error", err)
	}

	writeJSON(w, http.StatusOK, claimResponse{Status: "updated", NewCount: res.Count})
}

// ImportBill stores a bill from extracted receipt data. Tax and tip rows are
// carried on the bill, not as items.
func (s *ClaimService) ImportBill(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := s.decode(w, r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	bill, items := billFromImport(req)
	if err := s.store.CreateBill(r.Context(), bill, items); err != nil {
		slog.Error("ImportBill failed", "external_id", req.ExternalID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to store bill")
		return
	}
	metrics.BillsImportedTotal.Inc()

	slog.Info("Bill imported", "bill_id", bill.ID, "items", len(items), "currency", bill.Currency)
	s.notifyReady(r.Context(), bill)
	writeJSON(w, http.StatusOK, importResponse{Status: "success", BillID: bill.ID})
}

// notifyReady reports the bill to the notifier. The import has already
// succeeded, so failures are only logged.
func (s *ClaimService) notifyReady(ctx context.Context, bill *models.Bill) {
	if s.notifier == nil || bill.ExternalID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.BillReady(ctx, bill); err != nil {
		slog.Warn("Failed to send bill ready notification", "bill_id", bill.ID, "external_id", bill.ExternalID, "error", err)
	}
}

func billFromImport(req importRequest) (*models.Bill, []models.Item) {
	items := make([]models.Item, 0, len(req.Items))
	subtotal := 0.0
	for _, in := range req.Items {
		category := strings.ToUpper(strings.TrimSpace(in.Category))
		if category == models.CategoryTax || category == models.CategoryTip {
			continue
		}
		quantity := in.Quantity
		if quantity == 0 {
			quantity = 1
		}
		items = append(items, models.Item{
			Name:      in.Name,
			Quantity:  quantity,
			UnitPrice: in.Price,
			Category:  category,
		})
		subtotal += in.Price
	}

	total := req.TotalAmount
	if total == 0 {
		total = subtotal + req.TaxAmount + req.TipAmount
	}

	bill := &models.Bill{
		Status:      models.BillStatusOpen,
		Currency:    req.Currency,
		TotalAmount: total,
		TaxAmount:   req.TaxAmount,
		TipAmount:   req.TipAmount,
		ExternalID:  req.ExternalID,
	}
	return bill, items
}

func (s *ClaimService) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return s.validator.Validate(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
