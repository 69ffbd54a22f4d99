package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitclaim/internal/billrpc"
	"github.com/mmynk/splitclaim/internal/storage"
)

// Ensure BillStoreService implements billrpc.Handler
var _ billrpc.Handler = (*BillStoreService)(nil)

// BillStoreService serves bill store reads over Connect.
type BillStoreService struct {
	store storage.Reader
}

// NewBillStoreService creates a new BillStoreService with the given storage backend.
func NewBillStoreService(store storage.Reader) *BillStoreService {
	return &BillStoreService{store: store}
}

// GetBill returns one bill.
func (s *BillStoreService) GetBill(ctx context.Context, req *connect.Request[billrpc.GetBillRequest]) (*connect.Response[billrpc.GetBillResponse], error) {
	if req.Msg.BillID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("bill_id is required"))
	}

	bill, err := s.store.GetBill(ctx, req.Msg.BillID)
	if err != nil {
		return nil, toConnectError("GetBill", err)
	}
	return connect.NewResponse(&billrpc.GetBillResponse{Bill: bill}), nil
}

// ListItems returns the bill's items, most expensive first.
func (s *BillStoreService) ListItems(ctx context.Context, req *connect.Request[billrpc.ListItemsRequest]) (*connect.Response[billrpc.ListItemsResponse], error) {
	if req.Msg.BillID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("bill_id is required"))
	}

	items, err := s.store.ListItems(ctx, req.Msg.BillID)
	if err != nil {
		return nil, toConnectError("ListItems", err)
	}
	return connect.NewResponse(&billrpc.ListItemsResponse{Items: items}), nil
}

// ListClaims returns every claim on the given items.
func (s *BillStoreService) ListClaims(ctx context.Context, req *connect.Request[billrpc.ListClaimsRequest]) (*connect.Response[billrpc.ListClaimsResponse], error) {
	claims, err := s.store.ListClaims(ctx, req.Msg.ItemIDs)
	if err != nil {
		return nil, toConnectError("ListClaims", err)
	}
	return connect.NewResponse(&billrpc.ListClaimsResponse{Claims: claims}), nil
}

func toConnectError(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return connect.NewError(connect.CodeNotFound, err)
	}
	slog.Error(op+" failed", "error", err)
	return connect.NewError(connect.CodeInternal, errors.New("storage error"))
}
