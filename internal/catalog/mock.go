package catalog

import (
	"context"
	"fmt"

	"github.com/noah-isme/backend-dansa/internal/pricing"
)

// MockConfig is the explicit fixture set a MockClient serves. Tests and
// local development construct one per scenario; there is no shared mutable
// process state to toggle.
type MockConfig struct {
	Courses map[string]Course
	Promos  map[string]pricing.Money
	Credits map[string]pricing.Money
	// Err, when set, is returned by every call. Simulates upstream outage.
	Err error
}

// MockClient serves canned catalog answers from a MockConfig.
type MockClient struct {
	Config MockConfig
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) ListCourses(_ context.Context, kind Kind) ([]Course, error) {
	if m.Config.Err != nil {
		return nil, m.Config.Err
	}
	out := make([]Course, 0, len(m.Config.Courses))
	for _, course := range m.Config.Courses {
		if kind == "" || course.Kind == kind {
			out = append(out, course)
		}
	}
	return out, nil
}

func (m *MockClient) GetCourse(_ context.Context, id string) (Course, error) {
	if m.Config.Err != nil {
		return Course{}, m.Config.Err
	}
	course, ok := m.Config.Courses[id]
	if !ok {
		return Course{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return course, nil
}

func (m *MockClient) ResolveItem(ctx context.Context, req ResolveRequest) (ResolvedItem, error) {
	course, err := m.GetCourse(ctx, req.ItemID)
	if err != nil {
		return ResolvedItem{}, err
	}
	return resolveFromCourse(course, req)
}

func (m *MockClient) ValidatePromo(_ context.Context, code string, _ []string) (PromoQuote, error) {
	if m.Config.Err != nil {
		return PromoQuote{}, m.Config.Err
	}
	discount, ok := m.Config.Promos[code]
	if !ok {
		return PromoQuote{}, fmt.Errorf("%w: %s", ErrInvalidPromo, code)
	}
	return PromoQuote{Code: code, Discount: discount}, nil
}

func (m *MockClient) CreditBalance(_ context.Context, userID string) (pricing.Money, error) {
	if m.Config.Err != nil {
		return 0, m.Config.Err
	}
	return m.Config.Credits[userID], nil
}
