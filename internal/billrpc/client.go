package billrpc

import (
	"context"
	"fmt"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitclaim/internal/models"
	"github.com/mmynk/splitclaim/internal/storage"
)

// Ensure Client implements storage.Reader
var _ storage.Reader = (*Client)(nil)

// Client reads the bill store through the Connect API.
type Client struct {
	getBill    *connect.Client[GetBillRequest, GetBillResponse]
	listItems  *connect.Client[ListItemsRequest, ListItemsResponse]
	listClaims *connect.Client[ListClaimsRequest, ListClaimsResponse]
}

// NewClient creates a client for the service at baseURL
// (e.g. "http://localhost:8080").
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)

	return &Client{
		getBill:    connect.NewClient[GetBillRequest, GetBillResponse](httpClient, baseURL+GetBillProcedure, opts...),
		listItems:  connect.NewClient[ListItemsRequest, ListItemsResponse](httpClient, baseURL+ListItemsProcedure, opts...),
		listClaims: connect.NewClient[ListClaimsRequest, ListClaimsResponse](httpClient, baseURL+ListClaimsProcedure, opts...),
	}
}

// GetBill implements storage.Reader.
func (c *Client) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	resp, err := c.getBill.CallUnary(ctx, connect.NewRequest(&GetBillRequest{BillID: billID}))
	if err != nil {
		return nil, fromConnectError("get bill", err)
	}
	if resp.Msg.Bill == nil {
		return nil, fmt.Errorf("bill %s: %w", billID, storage.ErrNotFound)
	}
	return resp.Msg.Bill, nil
}

// ListItems implements storage.Reader.
func (c *Client) ListItems(ctx context.Context, billID string) ([]models.Item, error) {
	resp, err := c.listItems.CallUnary(ctx, connect.NewRequest(&ListItemsRequest{BillID: billID}))
	if err != nil {
		return nil, fromConnectError("list items", err)
	}
	return resp.Msg.Items, nil
}

// ListClaims implements storage.Reader.
func (c *Client) ListClaims(ctx context.Context, itemIDs []string) ([]models.Claim, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	resp, err := c.listClaims.CallUnary(ctx, connect.NewRequest(&ListClaimsRequest{ItemIDs: itemIDs}))
	if err != nil {
		return nil, fromConnectError("list claims", err)
	}
	return resp.Msg.Claims, nil
}

// fromConnectError maps CodeNotFound back to storage.ErrNotFound.
func fromConnectError(op string, err error) error {
	if connect.CodeOf(err) == connect.CodeNotFound {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
