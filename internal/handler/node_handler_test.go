package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"taxonomy_admin/internal/model"
	"taxonomy_admin/internal/service"
	"taxonomy_admin/pkg/token"

	"github.com/gin-gonic/gin"
)

type nodeDeps struct {
	nodes   *fakeNodeService
	tree    *fakeTreeService
	editors *fakeEditorService
	opts    NodeOptions
}

func newNodeRouter(d nodeDeps, claims *token.CustomClaims) *gin.Engine {
	if d.nodes == nil {
		d.nodes = &fakeNodeService{}
	}
	if d.tree == nil {
		d.tree = &fakeTreeService{}
	}
	if d.editors == nil {
		d.editors = &fakeEditorService{}
	}
	h := NewNodeHandler(d.nodes, d.tree, d.editors, d.opts)

	r := gin.New()
	r.Use(withClaims(claims))
	g := r.Group("/taxonomies/:tid")
	g.GET("/nodes", h.Query)
	g.POST("/nodes", h.Create)
	g.GET("/nodes/:nid", h.Get)
	g.DELETE("/nodes/:nid", h.Delete)
	g.PUT("/nodes/:nid/parent", h.Reparent)
	g.PUT("/nodes/:nid/archive", h.Archive)
	g.PUT("/nodes/:nid/selectable", h.SetSelectable)
	g.PUT("/nodes/:nid/in-use", h.MarkInUse)
	g.PUT("/nodes/:nid/attributes", h.UpdateAttributes)
	g.GET("/nodes/:nid/ancestors", h.Ancestors)
	g.GET("/nodes/:nid/elders", h.Elders)
	g.GET("/nodes/:nid/descendants", h.Descendants)
	g.GET("/nodes/:nid/editors", h.Editors)
	g.PUT("/nodes/:nid/editors", h.SetEditors)
	g.GET("/nodes/:nid/edges", h.RelatedNodes)
	g.POST("/nodes/:nid/edges", h.SetEdge)
	g.DELETE("/nodes/:nid/edges", h.ClearEdges)
	g.POST("/repair-leaf-flags", h.RepairLeafFlags)
	return r
}

// captureQuery 返回一个记录最后一次树查询请求的 fake
func captureQuery(got *service.TreeRequest) *fakeTreeService {
	return &fakeTreeService{
		queryNodesFn: func(req service.TreeRequest) ([]model.NodeView, error) {
			*got = req
			return []model.NodeView{}, nil
		},
	}
}

func TestNodeHandler_Query_Modes(t *testing.T) {
	skip := uint(7)
	cases := []struct {
		name  string
		query string
		want  service.TreeMode
	}{
		{"default", "", service.NormalMode{}},
		{"normal", "?mode=normal", service.NormalMode{}},
		{"no children", "?mode=no_children&anchor=4", service.NoChildrenMode{Anchor: 4}},
		{"only children upper", "?mode=ONLY_CHILDREN&anchor=4", service.OnlyChildrenMode{Anchor: 4}},
		{"only children skip", "?mode=only-children&anchor=4&skip=7", service.OnlyChildrenMode{Anchor: 4, Skip: &skip}},
		{"top level", "?mode=top_level&skip=7", service.TopLevelMode{Skip: &skip}},
		{"minimal", "?mode=minimal&picked=3,5,3", service.MinimalMode{AlreadyPicked: []uint{3, 5}}},
		{"minimal empty", "?mode=minimal", service.MinimalMode{AlreadyPicked: []uint{}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got service.TreeRequest
			r := newNodeRouter(nodeDeps{tree: captureQuery(&got)}, curator())

			w := doReq(r, http.MethodGet, "/taxonomies/1/nodes"+tc.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("expect 200, got %d, body=%s", w.Code, w.Body.String())
			}
			if !reflect.DeepEqual(got.Mode, tc.want) {
				t.Fatalf("expect mode %#v, got %#v", tc.want, got.Mode)
			}
			if got.TaxonomyID != 1 {
				t.Fatalf("expect taxonomy 1, got %d", got.TaxonomyID)
			}
		})
	}
}

func TestNodeHandler_Query_InvalidParams(t *testing.T) {
	called := false
	tree := &fakeTreeService{
		queryNodesFn: func(req service.TreeRequest) ([]model.NodeView, error) {
			called = true
			return nil, nil
		},
	}
	r := newNodeRouter(nodeDeps{tree: tree}, curator())

	for _, q := range []string{
		"?mode=no_children",
		"?mode=only_children&anchor=x",
		"?mode=minimal&picked=1,a",
		"?mode=sideways",
		"?mode=top_level&skip=-1",
		"?lang=abc",
		"?excludeDisabled=maybe",
	} {
		w := doReq(r, http.MethodGet, "/taxonomies/1/nodes"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("query %s: expect 400, got %d", q, w.Code)
		}
	}
	if called {
		t.Fatal("tree service should not be called for invalid params")
	}
}

func TestNodeHandler_Query_Defaults(t *testing.T) {
	var got service.TreeRequest
	r := newNodeRouter(nodeDeps{
		tree: captureQuery(&got),
		opts: NodeOptions{DefaultLanguageID: 2, ExcludeDisabled: true},
	}, curator())

	doReq(r, http.MethodGet, "/taxonomies/1/nodes", "")
	if got.LanguageID != 2 || !got.ExcludeDisabled {
		t.Fatalf("expect configured defaults, got lang=%d exclude=%v", got.LanguageID, got.ExcludeDisabled)
	}

	doReq(r, http.MethodGet, "/taxonomies/1/nodes?lang=5&excludeDisabled=false", "")
	if got.LanguageID != 5 || got.ExcludeDisabled {
		t.Fatalf("expect query overrides, got lang=%d exclude=%v", got.LanguageID, got.ExcludeDisabled)
	}
}

func TestNodeHandler_Query_ResponseShape(t *testing.T) {
	parent := uint(1)
	tree := &fakeTreeService{
		queryNodesFn: func(req service.TreeRequest) ([]model.NodeView, error) {
			return []model.NodeView{
				{ID: 1, DisplayName: "R", Title: "Name: R", HasChildren: true, Selectable: true, StatusID: model.NodeStatusActive},
				{ID: 2, ParentID: &parent, DisplayName: "C1", Title: "Name: C1", Selectable: true, StatusID: model.NodeStatusActive},
			}, nil
		},
	}
	r := newNodeRouter(nodeDeps{tree: tree}, curator())

	w := doReq(r, http.MethodGet, "/taxonomies/1/nodes", "")
	var resp struct {
		Data []model.NodeView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Data) != 2 || !resp.Data[0].HasChildren || resp.Data[1].ParentID == nil || *resp.Data[1].ParentID != 1 {
		t.Fatalf("unexpected views: %+v", resp.Data)
	}
}

func TestNodeHandler_Query_TaxonomyNotFound(t *testing.T) {
	tree := &fakeTreeService{
		queryNodesFn: func(req service.TreeRequest) ([]model.NodeView, error) {
			return nil, service.ErrTaxonomyNotFound
		},
	}
	r := newNodeRouter(nodeDeps{tree: tree}, curator())

	w := doReq(r, http.MethodGet, "/taxonomies/9/nodes", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expect 404, got %d", w.Code)
	}
}

func TestNodeHandler_Create(t *testing.T) {
	var (
		gotParent *uint
		gotLang   uint
		gotValues []service.AttributeInput
		gotActor  string
	)
	nodes := &fakeNodeService{
		createChildFn: func(taxonomyID uint, parentID *uint, languageID uint, values []service.AttributeInput, actor string) (*model.Node, error) {
			gotParent, gotLang, gotValues, gotActor = parentID, languageID, values, actor
			return &model.Node{ID: 10, TaxonomyID: taxonomyID, ParentID: parentID}, nil
		},
	}
	r := newNodeRouter(nodeDeps{nodes: nodes, opts: NodeOptions{DefaultLanguageID: 1}}, curator())

	w := doReq(r, http.MethodPost, "/taxonomies/1/nodes", `{"parentId":4,"values":[{"attributeId":2,"value":"G2"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expect 201, got %d, body=%s", w.Code, w.Body.String())
	}
	if gotParent == nil || *gotParent != 4 {
		t.Fatalf("expect parent 4, got %v", gotParent)
	}
	if gotLang != 1 || gotActor != "curator" {
		t.Fatalf("expect default language and actor, got lang=%d actor=%q", gotLang, gotActor)
	}
	if len(gotValues) != 1 || gotValues[0].AttributeID != 2 || gotValues[0].Value != "G2" {
		t.Fatalf("unexpected values: %+v", gotValues)
	}

	// 不带 parentId 时新建根节点
	doReq(r, http.MethodPost, "/taxonomies/1/nodes", `{"values":[]}`)
	if gotParent != nil {
		t.Fatalf("expect root node, got parent %d", *gotParent)
	}
}

func TestNodeHandler_Create_ServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrNodeNotFound, http.StatusNotFound},
		{service.ErrCrossTaxonomy, http.StatusBadRequest},
		{service.ErrInvalidInput, http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		nodes := &fakeNodeService{
			createChildFn: func(uint, *uint, uint, []service.AttributeInput, string) (*model.Node, error) {
				return nil, tc.err
			},
		}
		r := newNodeRouter(nodeDeps{nodes: nodes}, curator())
		w := doReq(r, http.MethodPost, "/taxonomies/1/nodes", `{"parentId":4}`)
		if w.Code != tc.want {
			t.Fatalf("%v: expect %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestNodeHandler_Reparent(t *testing.T) {
	var gotParent *uint
	nodes := &fakeNodeService{
		reparentFn: func(taxonomyID, nodeID uint, newParentID *uint, actor string) (*model.Node, error) {
			if nodeID == 1 && newParentID != nil && *newParentID == 4 {
				return nil, service.ErrCyclicParent
			}
			gotParent = newParentID
			return &model.Node{ID: nodeID, ParentID: newParentID}, nil
		},
	}
	r := newNodeRouter(nodeDeps{nodes: nodes}, curator())

	w := doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/parent", `{"parentId":5}`)
	if w.Code != http.StatusOK || gotParent == nil || *gotParent != 5 {
		t.Fatalf("expect move under 5, got %d parent=%v", w.Code, gotParent)
	}

	w = doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/parent", `{"parentId":null}`)
	if w.Code != http.StatusOK || gotParent != nil {
		t.Fatalf("expect move to root, got %d parent=%v", w.Code, gotParent)
	}

	w = doReq(r, http.MethodPut, "/taxonomies/1/nodes/1/parent", `{"parentId":4}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expect 409 for cyclic move, got %d", w.Code)
	}
}

func TestNodeHandler_FlagEndpoints(t *testing.T) {
	var archived, selectable, inUse *bool
	nodes := &fakeNodeService{
		archiveFn: func(_, nodeID uint, v bool, _ string) (*model.Node, error) {
			archived = &v
			return &model.Node{ID: nodeID}, nil
		},
		setSelectableFn: func(_, nodeID uint, v bool, _ string) (*model.Node, error) {
			selectable = &v
			return &model.Node{ID: nodeID}, nil
		},
		markInUseFn: func(_, _ uint, v bool) error {
			inUse = &v
			return nil
		},
	}
	r := newNodeRouter(nodeDeps{nodes: nodes}, curator())

	if w := doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/archive", `{"archived":true}`); w.Code != http.StatusOK {
		t.Fatalf("archive: expect 200, got %d", w.Code)
	}
	if w := doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/selectable", `{"selectable":false}`); w.Code != http.StatusOK {
		t.Fatalf("selectable: expect 200, got %d", w.Code)
	}
	if w := doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/in-use", `{"inUse":true}`); w.Code != http.StatusOK {
		t.Fatalf("in-use: expect 200, got %d", w.Code)
	}
	if archived == nil || !*archived || selectable == nil || *selectable || inUse == nil || !*inUse {
		t.Fatalf("unexpected flags: archived=%v selectable=%v inUse=%v", archived, selectable, inUse)
	}

	// 缺少字段时拒绝，而不是按 false 处理
	for _, path := range []string{"archive", "selectable", "in-use"} {
		if w := doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/"+path, `{}`); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expect 400 for missing flag, got %d", path, w.Code)
		}
	}
}

func TestNodeHandler_UpdateAttributes(t *testing.T) {
	var gotLang uint
	nodes := &fakeNodeService{
		updateAttributesFn: func(_, _, languageID uint, values []service.AttributeInput, _ string) error {
			gotLang = languageID
			if len(values) != 2 {
				t.Fatalf("expect 2 values, got %d", len(values))
			}
			return nil
		},
	}
	r := newNodeRouter(nodeDeps{nodes: nodes, opts: NodeOptions{DefaultLanguageID: 1}}, curator())

	w := doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/attributes",
		`{"languageId":3,"values":[{"attributeId":3,"value":"red"},{"attributeId":3,"value":"blue"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d, body=%s", w.Code, w.Body.String())
	}
	if gotLang != 3 {
		t.Fatalf("expect language 3, got %d", gotLang)
	}
}

func TestNodeHandler_Delete_Strategies(t *testing.T) {
	var got service.DeleteStrategy
	nodes := &fakeNodeService{
		deleteFn: func(_, nodeID uint, strategy service.DeleteStrategy) error {
			got = strategy
			if strategy == service.DeleteProtect {
				return service.ErrNodeHasChildren
			}
			return nil
		},
	}
	r := newNodeRouter(nodeDeps{nodes: nodes}, curator())

	if w := doReq(r, http.MethodDelete, "/taxonomies/1/nodes/2", ""); w.Code != http.StatusOK || got != service.DeleteCascade {
		t.Fatalf("expect default cascade, got %d %q", w.Code, got)
	}
	if w := doReq(r, http.MethodDelete, "/taxonomies/1/nodes/2?strategy=REPARENT", ""); w.Code != http.StatusOK || got != service.DeleteReparent {
		t.Fatalf("expect reparent, got %d %q", w.Code, got)
	}
	if w := doReq(r, http.MethodDelete, "/taxonomies/1/nodes/2?strategy=protect", ""); w.Code != http.StatusConflict {
		t.Fatalf("expect 409 for protected delete, got %d", w.Code)
	}
	if w := doReq(r, http.MethodDelete, "/taxonomies/1/nodes/2?strategy=unknown", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expect 400 for unknown strategy, got %d", w.Code)
	}
}

func TestNodeHandler_Delete_InUse(t *testing.T) {
	nodes := &fakeNodeService{
		deleteFn: func(uint, uint, service.DeleteStrategy) error { return service.ErrNodeInUse },
	}
	r := newNodeRouter(nodeDeps{nodes: nodes}, curator())

	w := doReq(r, http.MethodDelete, "/taxonomies/1/nodes/2", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expect 409, got %d", w.Code)
	}
}

func TestNodeHandler_HierarchyQueries(t *testing.T) {
	var gotFirstLevel bool
	tree := &fakeTreeService{
		ancestorsFn: func(_, nodeID uint) ([]uint, error) { return []uint{2, 1}, nil },
		eldersFn:    func(_, nodeID uint) ([]uint, error) { return []uint{1}, nil },
		descendantsFn: func(_, nodeID uint, firstLevelOnly bool) ([]uint, error) {
			gotFirstLevel = firstLevelOnly
			return []uint{4}, nil
		},
	}
	r := newNodeRouter(nodeDeps{tree: tree}, curator())

	for _, path := range []string{"ancestors", "elders", "descendants?firstLevelOnly=true"} {
		if w := doReq(r, http.MethodGet, "/taxonomies/1/nodes/4/"+path, ""); w.Code != http.StatusOK {
			t.Fatalf("%s: expect 200, got %d", path, w.Code)
		}
	}
	if !gotFirstLevel {
		t.Fatal("expect firstLevelOnly to be passed through")
	}
}

func TestNodeHandler_SetEditors(t *testing.T) {
	var gotRoles []string
	var gotCascade bool
	editors := &fakeEditorService{
		setEditorsFn: func(_, _ uint, roles []string, applyToChildren bool) error {
			gotRoles, gotCascade = roles, applyToChildren
			return nil
		},
	}

	r := newNodeRouter(nodeDeps{editors: editors}, curator())
	w := doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/editors", `{"roles":["Editor","Reviewer"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d, body=%s", w.Code, w.Body.String())
	}
	if !reflect.DeepEqual(gotRoles, []string{"Editor", "Reviewer"}) || gotCascade {
		t.Fatalf("unexpected call: roles=%v cascade=%v", gotRoles, gotCascade)
	}

	// 级联需要分类树管理员
	gotRoles = nil
	w = doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/editors", `{"roles":["Editor"],"applyToChildren":true}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expect 403, got %d", w.Code)
	}
	if gotRoles != nil {
		t.Fatal("editor service should not be called without capability")
	}

	r = newNodeRouter(nodeDeps{editors: editors}, admin())
	w = doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/editors", `{"roles":["Editor"],"applyToChildren":true}`)
	if w.Code != http.StatusOK || !gotCascade {
		t.Fatalf("expect admin cascade to succeed, got %d cascade=%v", w.Code, gotCascade)
	}
}

func TestNodeHandler_SetEditors_CascadeFailure(t *testing.T) {
	editors := &fakeEditorService{
		setEditorsFn: func(uint, uint, []string, bool) error {
			return &service.CascadeError{NodeID: 4, Applied: []uint{2, 5}, Failed: []uint{4}, Err: errors.New("deadlock")}
		},
	}
	r := newNodeRouter(nodeDeps{editors: editors}, admin())

	w := doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/editors", `{"roles":["Editor"],"applyToChildren":true}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expect 500, got %d", w.Code)
	}
	var resp struct {
		Message string `json:"message"`
		Data    struct {
			FailedNodeID uint   `json:"failedNodeId"`
			Failed       []uint `json:"failed"`
			Applied      []uint `json:"applied"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Message != "Editor cascade partially applied" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if resp.Data.FailedNodeID != 4 || !reflect.DeepEqual(resp.Data.Applied, []uint{2, 5}) || !reflect.DeepEqual(resp.Data.Failed, []uint{4}) {
		t.Fatalf("unexpected cascade report: %+v", resp.Data)
	}
}

func TestNodeHandler_Editors_Empty(t *testing.T) {
	r := newNodeRouter(nodeDeps{}, curator())

	w := doReq(r, http.MethodGet, "/taxonomies/1/nodes/2/editors", "")
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if _, ok := resp["data"].([]any); !ok {
		t.Fatalf("expect data to be array, got %T", resp["data"])
	}
}

func TestNodeHandler_Edges(t *testing.T) {
	var setType model.EdgeType
	var clearType *model.EdgeType
	cleared := false
	nodes := &fakeNodeService{
		setEdgeFn: func(_, _, targetID uint, edgeType model.EdgeType) error {
			setType = edgeType
			if !edgeType.Valid() {
				return service.ErrInvalidEdge
			}
			return nil
		},
		clearEdgesFn: func(_, _ uint, edgeType *model.EdgeType) error {
			cleared = true
			clearType = edgeType
			return nil
		},
	}
	r := newNodeRouter(nodeDeps{nodes: nodes}, curator())

	w := doReq(r, http.MethodPost, "/taxonomies/1/nodes/2/edges", `{"targetId":3,"edgeType":"similar"}`)
	if w.Code != http.StatusCreated || setType != model.EdgeTypeSimilar {
		t.Fatalf("expect SIMILAR edge created, got %d %q", w.Code, setType)
	}
	w = doReq(r, http.MethodPost, "/taxonomies/1/nodes/2/edges", `{"targetId":3,"edgeType":"parent"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expect 400 for invalid edge type, got %d", w.Code)
	}

	doReq(r, http.MethodDelete, "/taxonomies/1/nodes/2/edges", "")
	if !cleared || clearType != nil {
		t.Fatalf("expect clear all types, got cleared=%v type=%v", cleared, clearType)
	}
	doReq(r, http.MethodDelete, "/taxonomies/1/nodes/2/edges?type=related", "")
	if clearType == nil || *clearType != model.EdgeTypeRelated {
		t.Fatalf("expect RELATED filter, got %v", clearType)
	}

	if w := doReq(r, http.MethodGet, "/taxonomies/1/nodes/2/edges", ""); w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d", w.Code)
	}
}

func TestNodeHandler_RepairLeafFlags(t *testing.T) {
	nodes := &fakeNodeService{
		repairLeafFlagsFn: func(taxonomyID uint) (int, error) { return 3, nil },
	}
	r := newNodeRouter(nodeDeps{nodes: nodes}, admin())

	w := doReq(r, http.MethodPost, "/taxonomies/1/repair-leaf-flags", "")
	var resp struct {
		Data struct {
			Fixed int `json:"fixed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if w.Code != http.StatusOK || resp.Data.Fixed != 3 {
		t.Fatalf("expect 3 fixed, got %d %+v", w.Code, resp.Data)
	}
}

func TestNodeHandler_InvalidPath(t *testing.T) {
	r := newNodeRouter(nodeDeps{}, curator())

	if w := doReq(r, http.MethodGet, "/taxonomies/x/nodes/2", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expect 400 for bad taxonomy id, got %d", w.Code)
	}
	if w := doReq(r, http.MethodGet, "/taxonomies/1/nodes/0", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expect 400 for zero node id, got %d", w.Code)
	}
}

func TestNodeHandler_Get(t *testing.T) {
	var gotLang uint
	var gotExclude bool
	tree := &fakeTreeService{
		describeFn: func(taxonomyID, nodeID, languageID uint, excludeDisabled bool) (*model.NodeDetail, error) {
			gotLang, gotExclude = languageID, excludeDisabled
			if nodeID == 9 {
				return nil, service.ErrNodeNotFound
			}
			return &model.NodeDetail{
				Node:        model.Node{ID: nodeID, TaxonomyID: taxonomyID},
				DisplayName: "Red",
				Title:       "Name: Red",
				HasChildren: true,
			}, nil
		},
	}
	r := newNodeRouter(nodeDeps{tree: tree, opts: NodeOptions{DefaultLanguageID: 1}}, curator())

	w := doReq(r, http.MethodGet, "/taxonomies/1/nodes/2?lang=3&excludeDisabled=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			ID          uint   `json:"id"`
			DisplayName string `json:"displayName"`
			Title       string `json:"title"`
			HasChildren bool   `json:"hasChildren"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Data.DisplayName != "Red" || resp.Data.Title != "Name: Red" || !resp.Data.HasChildren {
		t.Fatalf("unexpected detail: %+v", resp.Data)
	}
	if gotLang != 3 || !gotExclude {
		t.Fatalf("expect lang 3 and excludeDisabled, got %d %v", gotLang, gotExclude)
	}

	if w := doReq(r, http.MethodGet, "/taxonomies/1/nodes/2", ""); w.Code != http.StatusOK || gotLang != 1 || gotExclude {
		t.Fatalf("expect defaults, got %d lang=%d exclude=%v", w.Code, gotLang, gotExclude)
	}
	if w := doReq(r, http.MethodGet, "/taxonomies/1/nodes/9", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expect 404, got %d", w.Code)
	}
	if w := doReq(r, http.MethodGet, "/taxonomies/1/nodes/2?excludeDisabled=maybe", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expect 400 for bad excludeDisabled, got %d", w.Code)
	}
}

func TestNodeHandler_Descendants_InvalidFirstLevelOnly(t *testing.T) {
	called := false
	tree := &fakeTreeService{
		descendantsFn: func(uint, uint, bool) ([]uint, error) {
			called = true
			return []uint{}, nil
		},
	}
	r := newNodeRouter(nodeDeps{tree: tree}, curator())

	w := doReq(r, http.MethodGet, "/taxonomies/1/nodes/4/descendants?firstLevelOnly=yes-please", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expect 400, got %d", w.Code)
	}
	if called {
		t.Fatal("tree service should not be called for a malformed flag")
	}
}

func TestNodeHandler_EditorGating(t *testing.T) {
	// 节点 2 只允许 Reviewer 编辑，节点 3 没有配置编辑者
	editorsOf := map[uint][]string{2: {"Reviewer"}}
	editors := &fakeEditorService{
		editorsFn: func(_, nodeID uint) ([]string, error) {
			if nodeID == 9 {
				return nil, service.ErrNodeNotFound
			}
			return editorsOf[nodeID], nil
		},
	}
	mutated := 0
	nodes := &fakeNodeService{
		archiveFn: func(_, nodeID uint, _ bool, _ string) (*model.Node, error) {
			mutated++
			return &model.Node{ID: nodeID}, nil
		},
		deleteFn: func(uint, uint, service.DeleteStrategy) error {
			mutated++
			return nil
		},
		reparentFn: func(_, nodeID uint, parentID *uint, _ string) (*model.Node, error) {
			mutated++
			return &model.Node{ID: nodeID, ParentID: parentID}, nil
		},
		createChildFn: func(taxonomyID uint, parentID *uint, _ uint, _ []service.AttributeInput, _ string) (*model.Node, error) {
			mutated++
			return &model.Node{TaxonomyID: taxonomyID, ParentID: parentID}, nil
		},
	}
	reviewer := &token.CustomClaims{Username: "rev", Roles: []string{"Reviewer"}, TokenType: token.TokenTypeAccess}

	cases := []struct {
		name   string
		claims *token.CustomClaims
		method string
		path   string
		body   string
		want   int
	}{
		{"archive without role", curator(), http.MethodPut, "/taxonomies/1/nodes/2/archive", `{"archived":true}`, http.StatusForbidden},
		{"delete without role", curator(), http.MethodDelete, "/taxonomies/1/nodes/2", "", http.StatusForbidden},
		{"selectable without role", curator(), http.MethodPut, "/taxonomies/1/nodes/2/selectable", `{"selectable":false}`, http.StatusForbidden},
		{"attributes without role", curator(), http.MethodPut, "/taxonomies/1/nodes/2/attributes", `{"values":[]}`, http.StatusForbidden},
		{"editors without role", curator(), http.MethodPut, "/taxonomies/1/nodes/2/editors", `{"roles":["Editor"]}`, http.StatusForbidden},
		{"edge without role", curator(), http.MethodPost, "/taxonomies/1/nodes/2/edges", `{"targetId":3,"edgeType":"related"}`, http.StatusForbidden},
		{"clear edges without role", curator(), http.MethodDelete, "/taxonomies/1/nodes/2/edges", "", http.StatusForbidden},
		{"create under guarded parent", curator(), http.MethodPost, "/taxonomies/1/nodes", `{"parentId":2}`, http.StatusForbidden},
		{"move under guarded parent", curator(), http.MethodPut, "/taxonomies/1/nodes/3/parent", `{"parentId":2}`, http.StatusForbidden},
		{"move guarded node", curator(), http.MethodPut, "/taxonomies/1/nodes/2/parent", `{"parentId":null}`, http.StatusForbidden},
		{"archive with role", reviewer, http.MethodPut, "/taxonomies/1/nodes/2/archive", `{"archived":true}`, http.StatusOK},
		{"admin bypasses editors", admin(), http.MethodDelete, "/taxonomies/1/nodes/2", "", http.StatusOK},
		{"unguarded node", curator(), http.MethodPut, "/taxonomies/1/nodes/3/archive", `{"archived":true}`, http.StatusOK},
		{"create root", curator(), http.MethodPost, "/taxonomies/1/nodes", `{}`, http.StatusCreated},
		{"missing node", curator(), http.MethodPut, "/taxonomies/1/nodes/9/archive", `{"archived":true}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mutated = 0
			r := newNodeRouter(nodeDeps{nodes: nodes, editors: editors}, tc.claims)
			w := doReq(r, tc.method, tc.path, tc.body)
			if w.Code != tc.want {
				t.Fatalf("expect %d, got %d, body=%s", tc.want, w.Code, w.Body.String())
			}
			if w.Code >= http.StatusBadRequest && mutated != 0 {
				t.Fatalf("service should not be called on %d", w.Code)
			}
		})
	}
}

func TestNodeHandler_MarkInUse_NotGated(t *testing.T) {
	editors := &fakeEditorService{
		editorsFn: func(uint, uint) ([]string, error) { return []string{"Reviewer"}, nil },
	}
	r := newNodeRouter(nodeDeps{editors: editors}, curator())

	if w := doReq(r, http.MethodPut, "/taxonomies/1/nodes/2/in-use", `{"inUse":true}`); w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d", w.Code)
	}
}
