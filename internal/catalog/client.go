package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/noah-isme/backend-dansa/internal/pricing"
	"github.com/noah-isme/backend-dansa/internal/resilience"
)

var (
	// ErrNotFound means the catalog does not know the requested unit.
	ErrNotFound = errors.New("catalog: not found")
	// ErrCourseFull means the course has no remaining spaces.
	ErrCourseFull = errors.New("catalog: course full")
	// ErrInvalidPromo means the promo code is unknown, expired or malformed.
	ErrInvalidPromo = errors.New("catalog: invalid promo code")
)

// Client is the school catalog collaborator. It is the authority on course
// pricing, capacity, promo code values and account credit balances; this
// service applies the returned values and never recomputes them.
type Client interface {
	ListCourses(ctx context.Context, kind Kind) ([]Course, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	ResolveItem(ctx context.Context, req ResolveRequest) (ResolvedItem, error)
	ValidatePromo(ctx context.Context, code string, itemIDs []string) (PromoQuote, error)
	CreditBalance(ctx context.Context, userID string) (pricing.Money, error)
}

// GraphQLClient speaks GraphQL over HTTP to the upstream catalog service.
type GraphQLClient struct {
	HTTP    resilience.HTTPClient
	BaseURL string
	Token   string
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

const courseFields = `id kind name description price tasterPrice hasTasterClasses spaces thumbnail
  studio { location address depositPrice acceptDeposit weeks }
  online { videoCount accessDays }
  session { courseId startsAt endsAt }`

// ListCourses fetches the published courses, optionally filtered by kind.
func (c *GraphQLClient) ListCourses(ctx context.Context, kind Kind) ([]Course, error) {
	vars := map[string]any{}
	if kind != "" {
		vars["kind"] = string(kind)
	}
	var out struct {
		Courses []Course `json:"courses"`
	}
	query := fmt.Sprintf(`query Courses($kind: String) { courses(kind: $kind) { %s } }`, courseFields)
	if err := c.do(ctx, query, vars, &out); err != nil {
		return nil, err
	}
	return out.Courses, nil
}

// GetCourse fetches a single course by id.
func (c *GraphQLClient) GetCourse(ctx context.Context, id string) (Course, error) {
	var out struct {
		Course *Course `json:"course"`
	}
	query := fmt.Sprintf(`query Course($id: ID!) { course(id: $id) { %s } }`, courseFields)
	if err := c.do(ctx, query, map[string]any{"id": id}, &out); err != nil {
		return Course{}, err
	}
	if out.Course == nil {
		return Course{}, ErrNotFound
	}
	return *out.Course, nil
}

// ResolveItem prices one basket line. The upstream answer is authoritative:
// capacity, taster pricing and deposit split all come from here.
func (c *GraphQLClient) ResolveItem(ctx context.Context, req ResolveRequest) (ResolvedItem, error) {
	course, err := c.GetCourse(ctx, req.ItemID)
	if err != nil {
		return ResolvedItem{}, err
	}
	return resolveFromCourse(course, req)
}

// ValidatePromo asks the catalog to price a promo code against the basket
// contents. Unknown or malformed codes map to ErrInvalidPromo.
func (c *GraphQLClient) ValidatePromo(ctx context.Context, code string, itemIDs []string) (PromoQuote, error) {
	var out struct {
		ValidatePromoCode *struct {
			Code     string        `json:"code"`
			Discount pricing.Money `json:"discount"`
			Valid    bool          `json:"valid"`
		} `json:"validatePromoCode"`
	}
	query := `query ValidatePromo($code: String!, $itemIds: [ID!]!) {
  validatePromoCode(code: $code, itemIds: $itemIds) { code discount valid }
}`
	err := c.do(ctx, query, map[string]any{"code": code, "itemIds": itemIDs}, &out)
	if err != nil {
		return PromoQuote{}, err
	}
	if out.ValidatePromoCode == nil || !out.ValidatePromoCode.Valid {
		return PromoQuote{}, ErrInvalidPromo
	}
	return PromoQuote{Code: out.ValidatePromoCode.Code, Discount: out.ValidatePromoCode.Discount}, nil
}

// CreditBalance returns the account's available credit in pence.
func (c *GraphQLClient) CreditBalance(ctx context.Context, userID string) (pricing.Money, error) {
	var out struct {
		CreditBalance pricing.Money `json:"creditBalance"`
	}
	query := `query Credit($userId: ID!) { creditBalance(userId: $userId) }`
	if err := c.do(ctx, query, map[string]any{"userId": userID}, &out); err != nil {
		return 0, err
	}
	return out.CreditBalance, nil
}

func (c *GraphQLClient) do(ctx context.Context, query string, vars map[string]any, dst any) error {
	payload, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("catalog: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("catalog: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var envelope gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("catalog: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return mapGraphQLError(envelope.Errors[0])
	}
	if dst != nil {
		if err := json.Unmarshal(envelope.Data, dst); err != nil {
			return fmt.Errorf("catalog: decode data: %w", err)
		}
	}
	return nil
}

func mapGraphQLError(e gqlError) error {
	switch e.Extensions.Code {
	case "COURSE_FULL":
		return fmt.Errorf("%w: %s", ErrCourseFull, e.Message)
	case "INVALID_PROMO":
		return fmt.Errorf("%w: %s", ErrInvalidPromo, e.Message)
	case "NOT_FOUND":
		return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
	default:
		return fmt.Errorf("catalog: upstream error: %s", e.Message)
	}
}

// resolveFromCourse turns a course payload plus the caller's taster/deposit
// choice into the line pricing the basket stores.
func resolveFromCourse(course Course, req ResolveRequest) (ResolvedItem, error) {
	if course.Spaces <= 0 {
		return ResolvedItem{}, fmt.Errorf("%w: %s", ErrCourseFull, course.Name)
	}

	item := ResolvedItem{
		ItemID:    course.ID,
		Kind:      course.Kind,
		Name:      course.Name,
		Price:     course.Price,
		FullPrice: course.Price,
	}

	if req.Taster {
		if !course.HasTaster {
			return ResolvedItem{}, fmt.Errorf("catalog: course %s has no taster classes", course.ID)
		}
		item.Taster = true
		item.Price = course.TasterPrice
		item.FullPrice = course.TasterPrice
		return item, nil
	}

	if req.PayDeposit {
		if course.Studio == nil || !course.Studio.AcceptDeposit || course.Studio.DepositPrice <= 0 {
			return ResolvedItem{}, fmt.Errorf("catalog: course %s does not accept deposits", course.ID)
		}
		item.Deposit = true
		item.Price = course.Studio.DepositPrice
	}
	return item, nil
}
