package scope

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRejectsZero(t *testing.T) {
	if _, err := New(0); err != ErrMissingAgency {
		t.Fatalf("expected ErrMissingAgency, got %v", err)
	}
	sc, err := New(7)
	if err != nil || sc.AgencyID != 7 || !sc.Valid() {
		t.Fatalf("got %+v %v", sc, err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := FromContext(r.Context()); ok {
		t.Fatal("empty context must not carry a scope")
	}
	ctx := WithScope(r.Context(), Scope{AgencyID: 3})
	sc, ok := FromContext(ctx)
	if !ok || sc.AgencyID != 3 {
		t.Fatalf("got %+v %v", sc, ok)
	}
	// A stored zero scope is as good as none.
	if _, ok := FromContext(WithScope(r.Context(), Scope{})); ok {
		t.Fatal("zero scope must not resolve")
	}
}

func TestMiddlewareInjectsHeader(t *testing.T) {
	var got Scope
	var found bool
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = FromContext(r.Context())
	}))

	cases := []struct {
		header string
		want   uint
		ok     bool
	}{
		{"42", 42, true},
		{"", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"-1", 0, false},
	}
	for _, c := range cases {
		found = false
		got = Scope{}
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.header != "" {
			r.Header.Set(HeaderAgencyID, c.header)
		}
		h.ServeHTTP(httptest.NewRecorder(), r)
		if found != c.ok || got.AgencyID != c.want {
			t.Fatalf("header %q: got %+v found=%v", c.header, got, found)
		}
	}
}

func TestRequireAgency(t *testing.T) {
	h := RequireAgency(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unscoped request: %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithScope(r.Context(), Scope{AgencyID: 1}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("scoped request: %d", w.Code)
	}
}
