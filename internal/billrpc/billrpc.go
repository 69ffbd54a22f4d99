// Package billrpc is the Connect API in front of the bill store: the three
// reads a client needs to build its snapshot. Messages are plain structs
// carried by a JSON codec.
package billrpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/splitclaim/internal/models"
)

// ServiceName is the fully-qualified name of the bill store service.
const ServiceName = "splitclaim.v1.BillStoreService"

// Procedure paths, relative to the server's base URL.
const (
	GetBillProcedure    = "/" + ServiceName + "/GetBill"
	ListItemsProcedure  = "/" + ServiceName + "/ListItems"
	ListClaimsProcedure = "/" + ServiceName + "/ListClaims"
)

type GetBillRequest struct {
	BillID string `json:"bill_id"`
}

type GetBillResponse struct {
	Bill *models.Bill `json:"bill"`
}

type ListItemsRequest struct {
	BillID string `json:"bill_id"`
}

type ListItemsResponse struct {
	Items []models.Item `json:"items"`
}

type ListClaimsRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type ListClaimsResponse struct {
	Claims []models.Claim `json:"claims"`
}

// Handler is implemented by the server side of the bill store service.
type Handler interface {
	GetBill(context.Context, *connect.Request[GetBillRequest]) (*connect.Response[GetBillResponse], error)
	ListItems(context.Context, *connect.Request[ListItemsRequest]) (*connect.Response[ListItemsResponse], error)
	ListClaims(context.Context, *connect.Request[ListClaimsRequest]) (*connect.Response[ListClaimsResponse], error)
}

// NewHandler builds an HTTP handler for svc. It returns the path to mount the
// handler on and the handler itself.
func NewHandler(svc Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	getBill := connect.NewUnaryHandler(GetBillProcedure, svc.GetBill, opts...)
	listItems := connect.NewUnaryHandler(ListItemsProcedure, svc.ListItems, opts...)
	listClaims := connect.NewUnaryHandler(ListClaimsProcedure, svc.ListClaims, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetBillProcedure:
			getBill.ServeHTTP(w, r)
		case ListItemsProcedure:
			listItems.ServeHTTP(w, r)
		case ListClaimsProcedure:
			listClaims.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
