package modal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/mutation"
	"github.com/deliverly/admin-console/internal/shared"
)

type vendor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type approveForm struct {
	mutation.Attribution
	Reason     string `json:"reason" validate:"required,max=500"`
	ZoneID     string `json:"zoneId" validate:"required"`
	NotifyUser bool   `json:"notifyUser"`
}

type rejectForm struct {
	mutation.Attribution
	Reason string `json:"reason" validate:"required,min=3"`
}

const approveMode Mode = "approve"
const rejectMode Mode = "reject"

func descriptors() []Descriptor[vendor] {
	return []Descriptor[vendor]{
		{
			Mode: approveMode, Title: "Approve Vendor", NeedsEntity: true,
			NewForm: func() any { return &approveForm{} },
			Request: func(v *vendor, form any) (mutation.Request, error) {
				return mutation.Request{Resource: "vendors", Method: mutation.MethodAction, ResourceID: v.ID, Action: "approve", Payload: form, Success: "Vendor approved"}, nil
			},
		},
		{
			Mode: rejectMode, Title: "Reject Vendor", NeedsEntity: true,
			NewForm: func() any { return &rejectForm{} },
			Request: func(v *vendor, form any) (mutation.Request, error) {
				return mutation.Request{Resource: "vendors", Method: mutation.MethodAction, ResourceID: v.ID, Action: "reject", Payload: form}, nil
			},
		},
	}
}

type stubDispatcher struct {
	calls   atomic.Int32
	err     error
	pending bool
	last    mutation.Request
}

func (s *stubDispatcher) Execute(ctx context.Context, key string, req mutation.Request) (mutation.Result, error) {
	s.calls.Add(1)
	s.last = req
	if s.err != nil {
		return mutation.Result{}, s.err
	}
	return mutation.Result{Entity: json.RawMessage(`{}`)}, nil
}

func (s *stubDispatcher) Pending(string) bool { return s.pending }

func TestOpenReplacesAndClose(t *testing.T) {
	o := NewOrchestrator[vendor]("vendors", &stubDispatcher{}, nil, descriptors()...)
	assert.False(t, o.Target().Open())

	a, b := &vendor{ID: "a"}, &vendor{ID: "b"}
	require.NoError(t, o.Open(ModeView, a))
	require.NoError(t, o.Open(approveMode, b))

	target := o.Target()
	assert.Equal(t, approveMode, target.Mode)
	assert.Same(t, b, target.Entity)

	o.Close()
	assert.Equal(t, Target[vendor]{}, o.Target())

	assert.ErrorIs(t, o.Open("explode", a), ErrUnknownMode)
	assert.Error(t, o.Open(approveMode, nil))
}

func TestLocalValidationNeverReachesDispatcher(t *testing.T) {
	d := &stubDispatcher{}
	o := NewOrchestrator[vendor]("vendors", d, nil, descriptors()...)
	require.NoError(t, o.Open(approveMode, &vendor{ID: "v1"}))

	_, err := o.Submit(context.Background(), []byte(`{"reason":""}`))
	require.Error(t, err)
	assert.Equal(t, apiclient.KindValidation, apiclient.KindOf(err))
	assert.Equal(t, map[string]string{"reason": "is required", "zoneId": "is required"}, apiclient.FieldErrors(err))
	assert.Zero(t, d.calls.Load())
	assert.Equal(t, approveMode, o.Target().Mode)
	assert.Equal(t, err, o.LastError())

	_, err = o.Submit(context.Background(), []byte(`{"reason":`))
	assert.Equal(t, apiclient.KindValidation, apiclient.KindOf(err))
	_, err = o.Submit(context.Background(), []byte(`{"reason":"ok","zoneId":"Z","bogus":1}`))
	assert.Equal(t, apiclient.KindValidation, apiclient.KindOf(err))
	assert.Zero(t, d.calls.Load())
}

func TestSubmitSuccessClosesActionModal(t *testing.T) {
	d := &stubDispatcher{}
	o := NewOrchestrator[vendor]("vendors", d, nil, descriptors()...)
	require.NoError(t, o.Open(rejectMode, &vendor{ID: "v9"}))

	_, err := o.Submit(context.Background(), []byte(`{"reason":"duplicate listing"}`))
	require.NoError(t, err)
	assert.Equal(t, ModeNone, o.Target().Mode)
	assert.Equal(t, "v9", d.last.ResourceID)
	assert.Equal(t, "duplicate listing", d.last.Payload.(*rejectForm).Reason)
	assert.NoError(t, o.LastError())
}

func TestSubmitFailureKeepsModalOpen(t *testing.T) {
	serverErr := apiclient.NewValidationError("zone closed", map[string]string{"zoneId": "zone is closed"})
	d := &stubDispatcher{err: serverErr}
	o := NewOrchestrator[vendor]("vendors", d, nil, descriptors()...)
	require.NoError(t, o.Open(approveMode, &vendor{ID: "v1"}))

	_, err := o.Submit(context.Background(), []byte(`{"reason":"ok","zoneId":"Z9"}`))
	assert.ErrorIs(t, err, serverErr)
	assert.Equal(t, approveMode, o.Target().Mode)
	assert.Equal(t, map[string]string{"zoneId": "zone is closed"}, apiclient.FieldErrors(o.LastError()))
}

func TestSubmitWithoutFormOrModal(t *testing.T) {
	o := NewOrchestrator[vendor]("vendors", &stubDispatcher{}, nil, descriptors()...)
	_, err := o.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoModal)

	require.NoError(t, o.Open(ModeView, &vendor{ID: "v1"}))
	_, err = o.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotSubmittable)
	assert.Equal(t, ModeView, o.Target().Mode)
}

func TestPendingDelegatesToDispatcher(t *testing.T) {
	d := &stubDispatcher{pending: true}
	o := NewOrchestrator[vendor]("vendors", d, nil)
	assert.True(t, o.Pending())
}

func TestApproveVendorScenario(t *testing.T) {
	var actionCalls atomic.Int32
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/admin/vendors/v1/approve" {
			actionCalls.Add(1)
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"v1","name":"Mama Put","status":"Approved"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := apiclient.NewClient(apiclient.Config{BaseURL: srv.URL, APIKey: "svc"})
	res := apiclient.NewResource[vendor](client, "vendors", "/admin/vendors", nil)
	d := mutation.NewDispatcher(func() (shared.AdminUser, bool) {
		return shared.AdminUser{ID: "adm-7", FirstName: "Tunde", LastName: "Bello"}, true
	})
	d.Register("vendors", mutation.ForResource(res))
	var invalidated atomic.Int32
	d.Watch("vendors", func() { invalidated.Add(1) })

	o := NewOrchestrator[vendor]("vendors", d, nil, descriptors()...)
	require.NoError(t, o.Open(approveMode, &vendor{ID: "v1", Name: "Mama Put", Status: "Pending"}))

	out, err := o.Submit(context.Background(), []byte(`{"reason":"ok","zoneId":"Z1"}`))
	require.NoError(t, err)

	var updated vendor
	require.NoError(t, out.Decode(&updated))
	assert.Equal(t, "Approved", updated.Status)
	assert.Equal(t, int32(1), actionCalls.Load())
	assert.Equal(t, "ok", body["reason"])
	assert.Equal(t, "Z1", body["zoneId"])
	assert.Equal(t, "adm-7", body["adminUserId"])
	assert.Equal(t, "Tunde Bello", body["adminUserName"])
	assert.Equal(t, int32(1), invalidated.Load())
	assert.Equal(t, ModeNone, o.Target().Mode)
}
