package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/router"
	"github.com/madronelabs/formpay/internal/service"
	"github.com/madronelabs/formpay/internal/store"
)

type adminFixture struct {
	router *router.Router
	store  *store.MemoryStore
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	st := store.NewMemoryStore()
	h := NewAdminHandler(service.NewOrderService(st, nil), service.NewStatusService(st, nil), nil)

	r := router.New()
	r.Get("/admin/orders", h.ListOrders)
	r.Get("/admin/orders/{id}", h.GetOrder)
	r.Delete("/admin/orders/{id}", h.DeleteOrder)
	r.Get("/admin/statuses", h.ListStatuses)
	r.Post("/admin/statuses", h.SaveStatus)
	r.Post("/admin/statuses/reorder", h.ReorderStatuses)
	r.Delete("/admin/statuses/{id}", h.DeleteStatus)

	return &adminFixture{router: r, store: st}
}

func (f *adminFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Accept", "application/json")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *adminFixture) seedOrder(t *testing.T, email string) *domain.Order {
	t.Helper()
	order := &domain.Order{
		Number:   domain.NewOrderNumber(time.Now()),
		State:    domain.OrderStateNew,
		FormID:   1,
		Email:    email,
		Quantity: 1,
		Currency: "usd",
	}
	require.NoError(t, f.store.CreateOrder(context.Background(), order))
	return order
}

func Test_AdminOrders_ListAndGet(t *testing.T) {
	f := newAdminFixture(t)
	order := f.seedOrder(t, "a@b.c")
	f.seedOrder(t, "d@e.f")

	rec := f.do(http.MethodGet, "/admin/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Orders []orderView `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Orders, 2)

	rec = f.do(http.MethodGet, "/admin/orders?email=a@b.c", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Orders, 1)
	assert.Equal(t, order.Number, list.Orders[0].Number)

	// Lookup by UUID and by order number both work.
	rec = f.do(http.MethodGet, "/admin/orders/"+order.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/admin/orders/"+order.Number, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got orderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, order.ID.String(), got.ID)
}

func Test_AdminOrders_GetMissing(t *testing.T) {
	f := newAdminFixture(t)
	rec := f.do(http.MethodGet, "/admin/orders/20990101-zzzzzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_AdminOrders_Delete(t *testing.T) {
	f := newAdminFixture(t)
	order := f.seedOrder(t, "a@b.c")

	rec := f.do(http.MethodDelete, "/admin/orders/"+order.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/admin/orders/"+order.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_AdminStatuses_SaveListDelete(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(http.MethodPost, "/admin/statuses", `{"name":"New","handle":"new","color":"green","isDefault":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created statusPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)

	rec = f.do(http.MethodPost, "/admin/statuses", `{"name":"Shipped","handle":"shipped","color":"blue"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/admin/statuses", "")
	var list struct {
		Statuses []statusPayload `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Statuses, 2)

	// Two present: deletion of the non-default succeeds.
	var shippedID int64
	for _, s := range list.Statuses {
		if s.Handle == "shipped" {
			shippedID = s.ID
		}
	}
	rec = f.do(http.MethodDelete, "/admin/statuses/"+jsonInt(shippedID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted": true}`, rec.Body.String())

	// Only one left: deletion is refused without an error.
	rec = f.do(http.MethodDelete, "/admin/statuses/"+jsonInt(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted": false}`, rec.Body.String())
}

func Test_AdminStatuses_SaveValidationFailure(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(http.MethodPost, "/admin/statuses", `{"name":"","handle":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error struct {
			Fields map[string]string `json:"fields"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error.Fields, "name")
	assert.Contains(t, resp.Error.Fields, "handle")
}

func Test_AdminStatuses_Reorder(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	a := &domain.OrderStatus{Name: "A", Handle: "a"}
	b := &domain.OrderStatus{Name: "B", Handle: "b"}
	require.NoError(t, f.store.CreateStatus(ctx, a))
	require.NoError(t, f.store.CreateStatus(ctx, b))

	rec := f.do(http.MethodPost, "/admin/statuses/reorder",
		`{"ids":[`+jsonInt(b.ID)+`,`+jsonInt(a.ID)+`]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	list, err := f.store.ListStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, list[0].ID)
}

func jsonInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
