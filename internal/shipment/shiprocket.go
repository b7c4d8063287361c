package shipment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Placeholder package dimensions sent with every shipment. Product
// dimensions are not tracked in the catalog, so a fixed 10x10x5 cm,
// 0.5 kg parcel is declared regardless of actual size.
const (
	defaultLengthCm = 10
	defaultWidthCm  = 10
	defaultHeightCm = 5
	defaultWeightKg = 0.5
)

const dateLayout = "2006-01-02 15:04"

// ShiprocketGateway implements the Gateway interface using the Shiprocket
// external API. Shiprocket publishes no Go SDK, so requests are shaped
// directly against its REST surface.
type ShiprocketGateway struct {
	cfg    ShiprocketConfig
	client *http.Client
	logger *slog.Logger
	tokens *tokenCache
}

// ShiprocketConfig contains configuration for the Shiprocket gateway.
type ShiprocketConfig struct {
	Email          string
	Password       string
	BaseURL        string
	PickupLocation string

	// HTTPClient is optional; defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

// Compile-time check that ShiprocketGateway implements Gateway.
var _ Gateway = (*ShiprocketGateway)(nil)

// NewShiprocketGateway creates a new Shiprocket shipment gateway.
func NewShiprocketGateway(cfg ShiprocketConfig) (*ShiprocketGateway, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://apiv2.shiprocket.in/v1/external"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.PickupLocation == "" {
		cfg.PickupLocation = "Primary"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &ShiprocketGateway{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
	g.tokens = newTokenCache(g.loginOnce)

	return g, nil
}

// loginOnce performs a credential login and returns the bearer token.
func (g *ShiprocketGateway) loginOnce(ctx context.Context) (string, time.Time, error) {
	body := map[string]string{
		"email":    g.cfg.Email,
		"password": g.cfg.Password,
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := g.post(ctx, "/auth/login", "", body, &resp); err != nil {
		return "", time.Time{}, fmt.Errorf("shiprocket login failed: %w", err)
	}
	if resp.Token == "" {
		return "", time.Time{}, ErrProvider("login", http.StatusOK, "empty token")
	}

	g.logger.Info("shiprocket token refreshed")
	return resp.Token, time.Now().Add(tokenValidity), nil
}

// CreateShipment registers a forward order with Shiprocket.
func (g *ShiprocketGateway) CreateShipment(ctx context.Context, params CreateShipmentParams) (*Shipment, error) {
	if len(params.Items) == 0 {
		return nil, ErrNoItems
	}

	logger := g.logger.With("order_ref", params.OrderRef)
	logger.Info("creating shiprocket order")

	req := g.toCreateOrderRequest(params)

	var resp struct {
		OrderID    int64  `json:"order_id"`
		ShipmentID int64  `json:"shipment_id"`
		Status     string `json:"status"`
	}
	if err := g.authedPost(ctx, "/orders/create/adhoc", req, &resp); err != nil {
		logger.Error("failed to create shiprocket order", "error", err)
		return nil, err
	}

	logger.Info("shiprocket order created",
		"sr_order_id", resp.OrderID,
		"sr_shipment_id", resp.ShipmentID,
	)

	return &Shipment{
		OrderID:    resp.OrderID,
		ShipmentID: resp.ShipmentID,
		Status:     resp.Status,
	}, nil
}

// AssignCourier requests an AWB for the shipment. courierID 0 lets
// Shiprocket pick the courier.
func (g *ShiprocketGateway) AssignCourier(ctx context.Context, shipmentID int64, courierID int64) (*CourierAssignment, error) {
	logger := g.logger.With("sr_shipment_id", shipmentID)
	logger.Info("assigning courier")

	req := map[string]interface{}{"shipment_id": shipmentID}
	if courierID != 0 {
		req["courier_id"] = courierID
	}

	var resp struct {
		AWBAssignStatus int `json:"awb_assign_status"`
		Response        struct {
			Data struct {
				AWBCode          string `json:"awb_code"`
				CourierCompanyID int64  `json:"courier_company_id"`
				CourierName      string `json:"courier_name"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := g.authedPost(ctx, "/courier/assign/awb", req, &resp); err != nil {
		logger.Error("failed to assign courier", "error", err)
		return nil, err
	}

	if resp.AWBAssignStatus != 1 || resp.Response.Data.AWBCode == "" {
		return nil, ErrNoCourier
	}

	logger.Info("courier assigned",
		"awb", resp.Response.Data.AWBCode,
		"courier", resp.Response.Data.CourierName,
	)

	return &CourierAssignment{
		AWBCode:     resp.Response.Data.AWBCode,
		CourierID:   resp.Response.Data.CourierCompanyID,
		CourierName: resp.Response.Data.CourierName,
	}, nil
}

// GenerateLabel produces a printable label for the shipment.
func (g *ShiprocketGateway) GenerateLabel(ctx context.Context, shipmentID int64) (*Label, error) {
	logger := g.logger.With("sr_shipment_id", shipmentID)
	logger.Info("generating label")

	req := map[string]interface{}{"shipment_id": []int64{shipmentID}}

	var resp struct {
		LabelCreated int    `json:"label_created"`
		LabelURL     string `json:"label_url"`
	}
	if err := g.authedPost(ctx, "/courier/generate/label", req, &resp); err != nil {
		logger.Error("failed to generate label", "error", err)
		return nil, err
	}

	return &Label{LabelURL: resp.LabelURL}, nil
}

// Track returns the live tracking payload for a waybill.
func (g *ShiprocketGateway) Track(ctx context.Context, awb string) (*TrackingInfo, error) {
	logger := g.logger.With("awb", awb)
	logger.Info("fetching tracking info")

	var resp struct {
		TrackingData struct {
			ShipmentTrack []struct {
				CurrentStatus string `json:"current_status"`
				CourierName   string `json:"courier_name"`
				ETD           string `json:"etd"`
			} `json:"shipment_track"`
			ShipmentTrackActivities []struct {
				Date     string `json:"date"`
				Status   string `json:"status"`
				Activity string `json:"activity"`
				Location string `json:"location"`
			} `json:"shipment_track_activities"`
		} `json:"tracking_data"`
	}
	if err := g.authedGet(ctx, "/courier/track/awb/"+awb, &resp); err != nil {
		logger.Error("failed to fetch tracking", "error", err)
		return nil, ErrTrackingFailed
	}

	info := &TrackingInfo{AWB: awb}
	if len(resp.TrackingData.ShipmentTrack) > 0 {
		t := resp.TrackingData.ShipmentTrack[0]
		info.CurrentStatus = t.CurrentStatus
		info.CourierName = t.CourierName
		info.ETD = t.ETD
	}
	for _, a := range resp.TrackingData.ShipmentTrackActivities {
		info.Events = append(info.Events, TrackingEvent{
			Date:     a.Date,
			Status:   a.Status,
			Activity: a.Activity,
			Location: a.Location,
		})
	}

	logger.Info("tracking info fetched", "status", info.CurrentStatus)
	return info, nil
}

// CancelShipment cancels by provider order id first, then by shipment id.
// Provider errors are absorbed here: only a fully failed cancellation is
// reported to the caller.
func (g *ShiprocketGateway) CancelShipment(ctx context.Context, params CancelParams) (*CancelResult, error) {
	logger := g.logger.With(
		"sr_order_id", params.OrderID,
		"sr_shipment_id", params.ShipmentID,
	)

	if params.OrderID != 0 {
		req := map[string]interface{}{"ids": []int64{params.OrderID}}
		var resp json.RawMessage
		if err := g.authedPost(ctx, "/orders/cancel", req, &resp); err == nil {
			logger.Info("shipment cancelled", "strategy", "order_id")
			return &CancelResult{Strategy: "order_id"}, nil
		} else {
			logger.Warn("cancel by order id failed, trying shipment id", "error", err)
		}
	}

	if params.ShipmentID != 0 {
		req := map[string]interface{}{"shipment_id": []int64{params.ShipmentID}}
		var resp json.RawMessage
		if err := g.authedPost(ctx, "/orders/cancel/shipment", req, &resp); err == nil {
			logger.Info("shipment cancelled", "strategy", "shipment_id")
			return &CancelResult{Strategy: "shipment_id"}, nil
		} else {
			logger.Error("cancel by shipment id failed", "error", err)
		}
	}

	return nil, ErrCancelFailed
}

// CreateReturnPickup builds a reverse-logistics request. Phone and pincode
// are validated up front so malformed data fails with a descriptive error
// instead of an opaque provider rejection.
func (g *ShiprocketGateway) CreateReturnPickup(ctx context.Context, params ReturnPickupParams) (*ReturnPickup, error) {
	if len(params.Items) == 0 {
		return nil, ErrNoItems
	}

	phone, ok := NormalizePhone(params.Pickup.Phone)
	if !ok {
		return nil, ErrInvalidPhone(params.Pickup.Phone)
	}
	if !validPincode(params.Pickup.Pincode) {
		return nil, ErrInvalidPincode(params.Pickup.Pincode)
	}

	logger := g.logger.With("order_ref", params.OrderRef)
	logger.Info("creating return pickup")

	req := g.toReturnOrderRequest(params, phone)

	var resp struct {
		OrderID    int64  `json:"order_id"`
		ShipmentID int64  `json:"shipment_id"`
		AWBCode    string `json:"awb_code"`
	}
	if err := g.authedPost(ctx, "/orders/create/return", req, &resp); err != nil {
		logger.Error("failed to create return pickup", "error", err)
		return nil, err
	}

	logger.Info("return pickup created",
		"sr_order_id", resp.OrderID,
		"awb", resp.AWBCode,
	)

	return &ReturnPickup{
		OrderID:    resp.OrderID,
		ShipmentID: resp.ShipmentID,
		AWBCode:    resp.AWBCode,
	}, nil
}

// toCreateOrderRequest maps internal order fields to the provider's
// expected request shape.
func (g *ShiprocketGateway) toCreateOrderRequest(params CreateShipmentParams) map[string]interface{} {
	items := make([]map[string]interface{}, len(params.Items))
	for i, it := range params.Items {
		items[i] = map[string]interface{}{
			"name":          it.Name,
			"sku":           it.SKU,
			"units":         it.Units,
			"selling_price": it.Price,
		}
	}

	method := "Prepaid"
	if strings.EqualFold(params.PaymentMethod, "COD") {
		method = "COD"
	}

	return map[string]interface{}{
		"order_id":          params.OrderRef,
		"order_date":        params.OrderDate.Format(dateLayout),
		"pickup_location":   g.cfg.PickupLocation,
		"billing_customer_name": params.Billing.Name,
		"billing_last_name":     "",
		"billing_address":       params.Billing.Address,
		"billing_address_2":     params.Billing.Address2,
		"billing_city":          params.Billing.City,
		"billing_pincode":       params.Billing.Pincode,
		"billing_state":         params.Billing.State,
		"billing_country":       params.Billing.Country,
		"billing_email":         params.Billing.Email,
		"billing_phone":         params.Billing.Phone,
		"shipping_is_billing":   true,
		"order_items":           items,
		"payment_method":        method,
		"sub_total":             params.Subtotal,
		"length":                defaultLengthCm,
		"breadth":               defaultWidthCm,
		"height":                defaultHeightCm,
		"weight":                defaultWeightKg,
	}
}

// toReturnOrderRequest maps a reverse pickup onto the provider's return
// order shape.
func (g *ShiprocketGateway) toReturnOrderRequest(params ReturnPickupParams, phone string) map[string]interface{} {
	items := make([]map[string]interface{}, len(params.Items))
	for i, it := range params.Items {
		items[i] = map[string]interface{}{
			"name":          it.Name,
			"sku":           it.SKU,
			"units":         it.Units,
			"selling_price": it.Price,
		}
	}

	return map[string]interface{}{
		"order_id":   params.OrderRef + "-R",
		"order_date": params.OrderDate.Format(dateLayout),

		"pickup_customer_name": params.Pickup.Name,
		"pickup_address":       params.Pickup.Address,
		"pickup_address_2":     params.Pickup.Address2,
		"pickup_city":          params.Pickup.City,
		"pickup_state":         params.Pickup.State,
		"pickup_pincode":       params.Pickup.Pincode,
		"pickup_country":       params.Pickup.Country,
		"pickup_email":         params.Pickup.Email,
		"pickup_phone":         phone,

		"shipping_customer_name": params.Drop.Name,
		"shipping_address":       params.Drop.Address,
		"shipping_city":          params.Drop.City,
		"shipping_state":         params.Drop.State,
		"shipping_pincode":       params.Drop.Pincode,
		"shipping_country":       params.Drop.Country,
		"shipping_phone":         params.Drop.Phone,

		"order_items":    items,
		"payment_method": "Prepaid",
		"sub_total":      params.Total,
		"length":         defaultLengthCm,
		"breadth":        defaultWidthCm,
		"height":         defaultHeightCm,
		"weight":         defaultWeightKg,
	}
}

// NormalizePhone strips formatting and country prefixes from an Indian
// phone number. Returns the 10-digit form and whether normalization
// succeeded.
func NormalizePhone(phone string) (string, bool) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}

	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}

// validPincode reports whether pin is exactly 6 digits.
func validPincode(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ============================================================================
// HTTP plumbing
// ============================================================================

// authedPost performs a POST with a bearer token, retrying once after a
// token refresh if the provider rejects the token.
func (g *ShiprocketGateway) authedPost(ctx context.Context, path string, body, out interface{}) error {
	return g.authed(ctx, func(token string) error {
		return g.post(ctx, path, token, body, out)
	})
}

// authedGet performs a GET with a bearer token, retrying once after a
// token refresh if the provider rejects the token.
func (g *ShiprocketGateway) authedGet(ctx context.Context, path string, out interface{}) error {
	return g.authed(ctx, func(token string) error {
		return g.get(ctx, path, token, out)
	})
}

func (g *ShiprocketGateway) authed(ctx context.Context, call func(token string) error) error {
	token, err := g.tokens.Get(ctx)
	if err != nil {
		return err
	}

	err = call(token)
	if isUnauthorized(err) {
		g.tokens.Invalidate()
		token, err = g.tokens.Get(ctx)
		if err != nil {
			return err
		}
		return call(token)
	}
	return err
}

func (g *ShiprocketGateway) post(ctx context.Context, path, token string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return g.do(req, path, out)
}

func (g *ShiprocketGateway) get(ctx context.Context, path, token string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return g.do(req, path, out)
}

func (g *ShiprocketGateway) do(req *http.Request, op string, out interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("shiprocket request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ErrProvider(op, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var errUnauthorized = newShipmentError(codeInternal, "Shiprocket rejected the auth token")

func isUnauthorized(err error) bool {
	return err == errUnauthorized
}
