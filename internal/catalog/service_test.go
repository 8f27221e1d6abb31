package catalog

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type countingClient struct {
	*MockClient
	calls int
}

func (c *countingClient) GetCourse(ctx context.Context, id string) (Course, error) {
	c.calls++
	return c.MockClient.GetCourse(ctx, id)
}

func TestServiceGetCourseReadThrough(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	upstream := &countingClient{MockClient: &MockClient{Config: MockConfig{
		Courses: map[string]Course{
			"crs_1": {ID: "crs_1", Kind: KindStudio, Name: "Salsa Beginners", Price: 4500, Spaces: 5},
		},
	}}}

	svc, err := NewService(ServiceConfig{Client: upstream, Cache: NewCache(rdb, time.Minute), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx := context.Background()
	first, err := svc.GetCourse(ctx, "crs_1")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := svc.GetCourse(ctx, "crs_1")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first.Name != second.Name {
		t.Fatalf("cache returned different payload: %+v vs %+v", first, second)
	}
	if upstream.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", upstream.calls)
	}
}

func TestServiceListCoursesFiltersKind(t *testing.T) {
	upstream := &MockClient{Config: MockConfig{
		Courses: map[string]Course{
			"crs_1": {ID: "crs_1", Kind: KindStudio, Name: "Salsa", Price: 4500, Spaces: 5},
			"crs_2": {ID: "crs_2", Kind: KindOnline, Name: "Ballet Online", Price: 3000, Spaces: 100},
		},
	}}
	svc, err := NewService(ServiceConfig{Client: upstream, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	courses, err := svc.ListCourses(context.Background(), KindOnline)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(courses) != 1 || courses[0].ID != "crs_2" {
		t.Fatalf("unexpected listing: %+v", courses)
	}
}
