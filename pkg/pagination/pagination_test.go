package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext(""))
	if p.Limit != DefaultLimit {
		t.Errorf("expected limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(newContext("limit=50&offset=10"))
	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := FromContext(newContext("limit=500"))
	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	p := FromContext(newContext("offset=-5"))
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 50, 20, 0)
	if resp.Total != 50 {
		t.Errorf("expected total 50, got %d", resp.Total)
	}
	if !resp.HasMore {
		t.Error("expected has_more to be true")
	}

	resp = NewResponse([]string{"a"}, 21, 20, 20)
	if resp.HasMore {
		t.Error("expected has_more to be false on the last page")
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name    string
		params  Params
		want    []int
		hasMore bool
	}{
		{"first page", Params{Limit: 2, Offset: 0}, []int{1, 2}, true},
		{"middle page", Params{Limit: 2, Offset: 2}, []int{3, 4}, true},
		{"last page", Params{Limit: 2, Offset: 4}, []int{5}, false},
		{"past the end", Params{Limit: 2, Offset: 10}, []int{}, false},
		{"whole set", Params{Limit: 20, Offset: 0}, []int{1, 2, 3, 4, 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Page(items, tt.params)
			got := resp.Data.([]int)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
			if resp.Total != len(items) {
				t.Errorf("expected total %d, got %d", len(items), resp.Total)
			}
			if resp.HasMore != tt.hasMore {
				t.Errorf("expected has_more %v, got %v", tt.hasMore, resp.HasMore)
			}
		})
	}
}
