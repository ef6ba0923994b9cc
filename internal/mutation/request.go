package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/shared"
)

// Method names the resource client call a request maps to.
type Method string

const (
	MethodCreate Method = "create"
	MethodUpdate Method = "update"
	MethodAction Method = "action"
	MethodBulk   Method = "bulk"
)

// Request describes one mutation.
type Request struct {
	Resource   string
	Method     Method
	ResourceID string
	Action     string
	Payload    any
	// Invalidates lists the resources whose listings are refreshed on
	// success. Empty means Resource alone.
	Invalidates []string
	// Success is the notification shown on success.
	Success string
}

func (r Request) validate() error {
	switch r.Method {
	case MethodCreate:
	case MethodUpdate:
		if r.ResourceID == "" {
			return errors.New("mutation: update requires a resource id")
		}
	case MethodAction:
		if r.ResourceID == "" || r.Action == "" {
			return errors.New("mutation: action requires a resource id and an action name")
		}
	case MethodBulk:
		if r.Action == "" {
			return errors.New("mutation: bulk requires an action name")
		}
	default:
		return fmt.Errorf("mutation: unsupported method %q", r.Method)
	}
	if r.Resource == "" {
		return errors.New("mutation: resource required")
	}
	return nil
}

func (r Request) label() string {
	if r.Action != "" {
		return r.Action
	}
	return string(r.Method)
}

func (r Request) invalidates() []string {
	if len(r.Invalidates) == 0 {
		return []string{r.Resource}
	}
	return r.Invalidates
}

func (r Request) successMessage() string {
	if r.Success != "" {
		return r.Success
	}
	label := strings.ReplaceAll(r.label(), "-", " ")
	return strings.ToUpper(label[:1]) + label[1:] + " succeeded"
}

// Result is the server response of a mutation: the updated entity or a
// batch summary.
type Result struct {
	Entity json.RawMessage
	Batch  *apiclient.BatchResult
}

// Decode unmarshals the entity into dst.
func (r Result) Decode(dst any) error {
	return apiclient.ActionResult{Entity: r.Entity, Batch: r.Batch}.Decode(dst)
}

// Attribution identifies the admin performing a mutation.
type Attribution struct {
	AdminUserID   string `json:"adminUserId,omitempty"`
	AdminUserName string `json:"adminUserName,omitempty"`
}

// SetAttribution lets structs embedding Attribution receive the admin.
func (a *Attribution) SetAttribution(v Attribution) {
	*a = v
}

// Attributable payloads are stamped with the current admin before sending.
type Attributable interface {
	SetAttribution(Attribution)
}

func attribute(payload any, user shared.AdminUser) {
	attr := Attribution{AdminUserID: user.ID, AdminUserName: user.FullName()}
	switch p := payload.(type) {
	case Attributable:
		p.SetAttribution(attr)
	case map[string]any:
		if p == nil {
			return
		}
		p["adminUserId"] = attr.AdminUserID
		p["adminUserName"] = attr.AdminUserName
	}
}

// Executor performs the remote call for a request.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// ForResource maps requests onto the calls of an API resource.
func ForResource[T any](res *apiclient.Resource[T]) Executor {
	return ExecutorFunc(func(ctx context.Context, req Request) (Result, error) {
		switch req.Method {
		case MethodCreate:
			entity, err := res.Create(ctx, req.Payload)
			return entityResult(entity, err)
		case MethodUpdate:
			entity, err := res.Update(ctx, req.ResourceID, req.Payload)
			return entityResult(entity, err)
		case MethodAction:
			out, err := res.Action(ctx, req.ResourceID, req.Action, req.Payload)
			if err != nil {
				return Result{}, err
			}
			return Result{Entity: out.Entity, Batch: out.Batch}, nil
		case MethodBulk:
			batch, err := res.Bulk(ctx, req.Action, req.Payload)
			if err != nil {
				return Result{}, err
			}
			return Result{Batch: &batch}, nil
		}
		return Result{}, fmt.Errorf("mutation: unsupported method %q", req.Method)
	})
}

func entityResult[T any](entity T, err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return Result{}, fmt.Errorf("encode entity: %w", err)
	}
	return Result{Entity: raw}, nil
}
