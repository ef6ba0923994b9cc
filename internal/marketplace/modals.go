package marketplace

import (
	"fmt"

	"github.com/deliverly/admin-console/internal/modal"
	"github.com/deliverly/admin-console/internal/mutation"
)

// Action modes. Each maps to one form and one endpoint.
const (
	ModeApprove         modal.Mode = "approve"
	ModeReject          modal.Mode = "reject"
	ModeSuspend         modal.Mode = "suspend"
	ModeReactivate      modal.Mode = "reactivate"
	ModeSendInstruction modal.Mode = "send-instruction"
	ModeCreateDeduction modal.Mode = "create-deduction"
	ModeCreateStrike    modal.Mode = "create-strike"
	ModeCancel          modal.Mode = "cancel"
	ModeResolve         modal.Mode = "resolve"
	ModeFundWallet      modal.Mode = "fund-wallet"
	ModeCreate          modal.Mode = "create"
)

// action builds a descriptor posting form F to the entity's action endpoint.
func action[T Entity, F any](resource string, mode modal.Mode, title, name string, success func(T, *F) string, invalidates ...string) modal.Descriptor[T] {
	return modal.Descriptor[T]{
		Mode:        mode,
		Title:       title,
		NeedsEntity: true,
		NewForm:     func() any { return new(F) },
		Request: func(entity *T, form any) (mutation.Request, error) {
			f, ok := form.(*F)
			if !ok {
				return mutation.Request{}, fmt.Errorf("marketplace: unexpected form %T for %s", form, mode)
			}
			return mutation.Request{
				Resource:    resource,
				Method:      mutation.MethodAction,
				ResourceID:  (*entity).EntityID(),
				Action:      name,
				Payload:     f,
				Invalidates: invalidates,
				Success:     success(*entity, f),
			}, nil
		},
	}
}

func edit[T Entity, F any](resource, title string) modal.Descriptor[T] {
	return modal.Descriptor[T]{
		Mode:        modal.ModeEdit,
		Title:       title,
		NeedsEntity: true,
		NewForm:     func() any { return new(F) },
		Request: func(entity *T, form any) (mutation.Request, error) {
			return mutation.Request{
				Resource:   resource,
				Method:     mutation.MethodUpdate,
				ResourceID: (*entity).EntityID(),
				Payload:    form,
				Success:    title + " saved",
			}, nil
		},
	}
}

func fixed[T, F any](msg string) func(T, *F) string {
	return func(T, *F) string { return msg }
}

func sendInstruction[T Entity](resource string) modal.Descriptor[T] {
	return action(resource, ModeSendInstruction, "Send instruction", "send-instruction",
		func(_ T, f *SendInstructionForm) string { return "Instruction sent via " + f.Channel })
}

func vendorModals() []modal.Descriptor[Vendor] {
	return []modal.Descriptor[Vendor]{
		edit[Vendor, VendorForm](Vendors, "Vendor"),
		action(Vendors, ModeApprove, "Approve vendor", "approve",
			func(v Vendor, _ *ApproveForm) string { return v.Name + " approved" }),
		action(Vendors, ModeReject, "Reject vendor", "reject",
			func(v Vendor, _ *ReasonForm) string { return v.Name + " rejected" }),
		action(Vendors, ModeSuspend, "Suspend vendor", "suspend",
			func(v Vendor, _ *SuspendForm) string { return v.Name + " suspended" }),
		action(Vendors, ModeReactivate, "Reactivate vendor", "reactivate",
			func(v Vendor, _ *ReasonForm) string { return v.Name + " reactivated" }),
		sendInstruction[Vendor](Vendors),
	}
}

func riderModals() []modal.Descriptor[Rider] {
	return []modal.Descriptor[Rider]{
		edit[Rider, RiderForm](Riders, "Rider"),
		action(Riders, ModeApprove, "Approve rider", "approve",
			func(r Rider, _ *ApproveForm) string { return r.FullName() + " approved" }),
		action(Riders, ModeReject, "Reject rider", "reject",
			func(r Rider, _ *ReasonForm) string { return r.FullName() + " rejected" }),
		action(Riders, ModeSuspend, "Suspend rider", "suspend",
			func(r Rider, _ *SuspendForm) string { return r.FullName() + " suspended" }),
		action(Riders, ModeReactivate, "Reactivate rider", "reactivate",
			func(r Rider, _ *ReasonForm) string { return r.FullName() + " reactivated" }),
		sendInstruction[Rider](Riders),
		{
			Mode: ModeCreateDeduction, Title: "Create deduction", NeedsEntity: true,
			NewForm: func() any { return &DeductionFields{} },
			Request: func(r *Rider, form any) (mutation.Request, error) {
				f, ok := form.(*DeductionFields)
				if !ok {
					return mutation.Request{}, fmt.Errorf("marketplace: unexpected form %T", form)
				}
				return mutation.Request{
					Resource:    Deductions,
					Method:      mutation.MethodCreate,
					Payload:     &CreateDeductionForm{DeductionFields: *f, RiderID: r.ID},
					Invalidates: []string{Deductions, Riders},
					Success:     fmt.Sprintf("Deduction of %s raised for %s", FormatNaira(f.Amount), r.FullName()),
				}, nil
			},
		},
		{
			Mode: ModeCreateStrike, Title: "Create strike", NeedsEntity: true,
			NewForm: func() any { return &StrikeFields{} },
			Request: func(r *Rider, form any) (mutation.Request, error) {
				f, ok := form.(*StrikeFields)
				if !ok {
					return mutation.Request{}, fmt.Errorf("marketplace: unexpected form %T", form)
				}
				return mutation.Request{
					Resource:    Strikes,
					Method:      mutation.MethodCreate,
					Payload:     &CreateStrikeForm{StrikeFields: *f, RiderID: r.ID},
					Invalidates: []string{Strikes, Riders},
					Success:     fmt.Sprintf("%s strike recorded for %s", f.Severity, r.FullName()),
				}, nil
			},
		},
	}
}

func userModals() []modal.Descriptor[User] {
	return []modal.Descriptor[User]{
		action(Users, ModeSuspend, "Suspend user", "suspend",
			func(u User, _ *SuspendForm) string { return joinName(u.FirstName, u.LastName) + " suspended" }),
		action(Users, ModeReactivate, "Reactivate user", "reactivate",
			func(u User, _ *ReasonForm) string { return joinName(u.FirstName, u.LastName) + " reactivated" }),
		sendInstruction[User](Users),
	}
}

func deductionModals() []modal.Descriptor[Deduction] {
	return []modal.Descriptor[Deduction]{
		{
			Mode: ModeCreate, Title: "Create deduction",
			NewForm: func() any { return &CreateDeductionForm{} },
			Request: func(_ *Deduction, form any) (mutation.Request, error) {
				f, ok := form.(*CreateDeductionForm)
				if !ok {
					return mutation.Request{}, fmt.Errorf("marketplace: unexpected form %T", form)
				}
				return mutation.Request{
					Resource:    Deductions,
					Method:      mutation.MethodCreate,
					Payload:     f,
					Invalidates: []string{Deductions, Riders},
					Success:     "Deduction of " + FormatNaira(f.Amount) + " raised",
				}, nil
			},
		},
		action(Deductions, ModeCancel, "Cancel deduction", "cancel",
			func(d Deduction, _ *ReasonForm) string { return "Deduction of " + FormatNaira(d.Amount) + " cancelled" }),
	}
}

func strikeModals() []modal.Descriptor[Strike] {
	return []modal.Descriptor[Strike]{
		{
			Mode: ModeCreate, Title: "Create strike",
			NewForm: func() any { return &CreateStrikeForm{} },
			Request: func(_ *Strike, form any) (mutation.Request, error) {
				return mutation.Request{
					Resource:    Strikes,
					Method:      mutation.MethodCreate,
					Payload:     form,
					Invalidates: []string{Strikes, Riders},
					Success:     "Strike recorded",
				}, nil
			},
		},
		action(Strikes, ModeResolve, "Resolve strike", "resolve", fixed[Strike, ResolveForm]("Strike resolved"), Strikes, Riders),
		action(Strikes, ModeCancel, "Cancel strike", "cancel", fixed[Strike, ReasonForm]("Strike cancelled"), Strikes, Riders),
	}
}

func featureRequestModals() []modal.Descriptor[FeatureRequest] {
	return []modal.Descriptor[FeatureRequest]{
		{
			Mode: ModeCreate, Title: "New feature request",
			NewForm: func() any { return &FeatureRequestForm{} },
			Request: func(_ *FeatureRequest, form any) (mutation.Request, error) {
				return mutation.Request{
					Resource: FeatureRequests,
					Method:   mutation.MethodCreate,
					Payload:  form,
					Success:  "Feature request created",
				}, nil
			},
		},
		edit[FeatureRequest, FeatureRequestUpdateForm](FeatureRequests, "Feature request"),
		action(FeatureRequests, ModeResolve, "Resolve feature request", "resolve",
			func(f FeatureRequest, _ *ResolveForm) string { return "\"" + f.Title + "\" resolved" }),
	}
}

func walletModals() []modal.Descriptor[Wallet] {
	return []modal.Descriptor[Wallet]{
		action(Wallets, ModeFundWallet, "Fund wallet", "fund",
			func(w Wallet, f *FundWalletForm) string {
				return fmt.Sprintf("Wallet of %s funded with %s", w.OwnerName, FormatNaira(f.Amount))
			}, Wallets, Transactions),
	}
}
