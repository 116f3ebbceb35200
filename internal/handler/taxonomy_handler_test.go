package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"taxonomy_admin/internal/model"
	"taxonomy_admin/internal/service"
	"taxonomy_admin/pkg/token"

	"github.com/gin-gonic/gin"
)

func newTaxonomyRouter(h *TaxonomyHandler, claims *token.CustomClaims) *gin.Engine {
	r := gin.New()
	r.Use(withClaims(claims))
	r.POST("/taxonomies", h.Create)
	r.GET("/taxonomies", h.List)
	r.GET("/taxonomies/:tid", h.Get)
	r.DELETE("/taxonomies/:tid", h.Delete)
	r.POST("/taxonomies/:tid/attributes", h.AddAttribute)
	r.GET("/taxonomies/:tid/attributes", h.ListAttributes)
	return r
}

func TestTaxonomyHandler_Create(t *testing.T) {
	var gotActor string
	svc := &fakeTaxonomyService{
		createFn: func(name, description, actor string) (*model.Taxonomy, error) {
			gotActor = actor
			return &model.Taxonomy{ID: 3, Name: name, Description: description}, nil
		},
	}
	r := newTaxonomyRouter(NewTaxonomyHandler(svc), admin())

	w := doReq(r, http.MethodPost, "/taxonomies", `{"name":"Subjects","description":"curriculum"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expect 201, got %d, body=%s", w.Code, w.Body.String())
	}
	if gotActor != "root" {
		t.Fatalf("expect actor from claims, got %q", gotActor)
	}
}

func TestTaxonomyHandler_Create_InvalidBody(t *testing.T) {
	r := newTaxonomyRouter(NewTaxonomyHandler(&fakeTaxonomyService{}), admin())

	for _, body := range []string{`{}`, `not json`, `{"description":"x"}`} {
		w := doReq(r, http.MethodPost, "/taxonomies", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expect 400, got %d", body, w.Code)
		}
	}
}

func TestTaxonomyHandler_Create_Duplicate(t *testing.T) {
	svc := &fakeTaxonomyService{
		createFn: func(name, description, actor string) (*model.Taxonomy, error) {
			return nil, service.ErrTaxonomyAlreadyExists
		},
	}
	r := newTaxonomyRouter(NewTaxonomyHandler(svc), admin())

	w := doReq(r, http.MethodPost, "/taxonomies", `{"name":"Subjects"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expect 409, got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestTaxonomyHandler_Create_NoClaims(t *testing.T) {
	r := newTaxonomyRouter(NewTaxonomyHandler(&fakeTaxonomyService{}), nil)

	w := doReq(r, http.MethodPost, "/taxonomies", `{"name":"Subjects"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expect 401, got %d, body=%s", w.Code, w.Body.String())
	}
}

// List 边界：没有分类树时 data 仍是数组而不是 null。
func TestTaxonomyHandler_List_Empty(t *testing.T) {
	r := newTaxonomyRouter(NewTaxonomyHandler(&fakeTaxonomyService{}), curator())

	w := doReq(r, http.MethodGet, "/taxonomies", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if _, ok := resp["data"].([]any); !ok {
		t.Fatalf("expect data to be array, got %T", resp["data"])
	}
}

func TestTaxonomyHandler_Get(t *testing.T) {
	svc := &fakeTaxonomyService{
		findByIDFn: func(id uint) (*model.Taxonomy, error) {
			if id == 404 {
				return nil, service.ErrTaxonomyNotFound
			}
			return &model.Taxonomy{ID: id}, nil
		},
	}
	r := newTaxonomyRouter(NewTaxonomyHandler(svc), curator())

	if w := doReq(r, http.MethodGet, "/taxonomies/1", ""); w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d", w.Code)
	}
	if w := doReq(r, http.MethodGet, "/taxonomies/404", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expect 404, got %d", w.Code)
	}
	if w := doReq(r, http.MethodGet, "/taxonomies/abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expect 400 for non-numeric id, got %d", w.Code)
	}
	if w := doReq(r, http.MethodGet, "/taxonomies/0", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expect 400 for zero id, got %d", w.Code)
	}
}

func TestTaxonomyHandler_Delete_NotEmpty(t *testing.T) {
	svc := &fakeTaxonomyService{
		deleteFn: func(id uint) error { return service.ErrTaxonomyNotEmpty },
	}
	r := newTaxonomyRouter(NewTaxonomyHandler(svc), admin())

	w := doReq(r, http.MethodDelete, "/taxonomies/1", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expect 409, got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestTaxonomyHandler_AddAttribute(t *testing.T) {
	var gotNodeName, gotMultiple bool
	svc := &fakeTaxonomyService{
		addAttributeFn: func(taxonomyID uint, name string, isNodeName, isMultiple bool) (*model.TaxonomyAttribute, error) {
			if taxonomyID != 2 || name != "Color" {
				t.Fatalf("unexpected args: %d %q", taxonomyID, name)
			}
			gotNodeName, gotMultiple = isNodeName, isMultiple
			return &model.TaxonomyAttribute{ID: 9, TaxonomyID: taxonomyID, Name: name}, nil
		},
	}
	r := newTaxonomyRouter(NewTaxonomyHandler(svc), admin())

	w := doReq(r, http.MethodPost, "/taxonomies/2/attributes", `{"name":"Color","isMultiple":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expect 201, got %d, body=%s", w.Code, w.Body.String())
	}
	if gotNodeName || !gotMultiple {
		t.Fatalf("expect isNodeName=false isMultiple=true, got %v %v", gotNodeName, gotMultiple)
	}
}

func TestTaxonomyHandler_AddAttribute_Invalid(t *testing.T) {
	svc := &fakeTaxonomyService{
		addAttributeFn: func(taxonomyID uint, name string, isNodeName, isMultiple bool) (*model.TaxonomyAttribute, error) {
			return nil, service.ErrInvalidInput
		},
	}
	r := newTaxonomyRouter(NewTaxonomyHandler(svc), admin())

	w := doReq(r, http.MethodPost, "/taxonomies/2/attributes", `{"name":"Name","isNodeName":true,"isMultiple":true}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expect 400, got %d, body=%s", w.Code, w.Body.String())
	}
}
