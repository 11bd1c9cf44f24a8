/*
Package factory provides JSON to Go payable conversion.

PURPOSE:
  Converts JSON payable definitions (a single bill or an installment plan)
  into payables.SingleInput / payables.RecurringInput. The admin UI and the
  demo scenarios both post this shape.

JSON SCHEMA:
  Single:
  {
    "type": "single",
    "description": "Shampoo restock",
    "category": "SUPPLIER",
    "due_date": "2025-03-20",
    "purchase_order_id": "po-1"          // amount derived when omitted
  }

  Recurring:
  {
    "type": "recurring",
    "description": "Chair lease",
    "category": "RENT",
    "amount": "300.00",
    "schedule": {
      "start_date": "2025-01-01",
      "installment_count": 3,
      "periodicity": "MONTHLY",
      "fixed_day_of_month": 15
    }
  }

VALIDATION:
  Structure (required fields, enums) is checked with go-playground
  validator; schedule semantics are left to payables.Schedule so errors
  name the same fields everywhere.

SEE ALSO:
  - payables/generator.go: what the parsed inputs feed
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/payables"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

const (
	KindSingle    = "single"
	KindRecurring = "recurring"
)

// PayableJSON is the JSON representation of a payable request.
type PayableJSON struct {
	Type            string           `json:"type" validate:"required,oneof=single recurring"`
	Description     string           `json:"description" validate:"required,max=200"`
	Category        string           `json:"category" validate:"required,oneof=COMMISSION SUPPLIER RENT UTILITIES SALARY OTHER"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	DueDate         string           `json:"due_date,omitempty" validate:"required_if=Type single"`
	SupplierID      string           `json:"supplier_id,omitempty" validate:"omitempty,max=64"`
	PurchaseOrderID string           `json:"purchase_order_id,omitempty" validate:"omitempty,max=64"`
	Schedule        *ScheduleJSON    `json:"schedule,omitempty" validate:"required_if=Type recurring"`
}

// ScheduleJSON represents an installment plan.
type ScheduleJSON struct {
	StartDate        string `json:"start_date"`
	InstallmentCount int    `json:"installment_count"`
	Periodicity      string `json:"periodicity"`
	FixedDayOfMonth  *int   `json:"fixed_day_of_month,omitempty"`
}

// PayableSpec is a parsed request; exactly one field is set.
type PayableSpec struct {
	Single    *payables.SingleInput
	Recurring *payables.RecurringInput
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator wraps go-playground validator and reports errors using JSON
// field names as *core.ValidationError.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates s. The first failing field becomes the error's Field.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return core.Invalid("", "%v", err)
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = fe.Field() + ": " + message(fe)
	}
	return &core.ValidationError{Field: fieldErrs[0].Field(), Message: strings.Join(msgs, "; ")}
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "this field is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "min":
		return "must be at least " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	default:
		return "invalid value"
	}
}

// =============================================================================
// FACTORY
// =============================================================================

type PayableFactory struct {
	validate *Validator
}

func NewPayableFactory() *PayableFactory {
	return &PayableFactory{validate: NewValidator()}
}

// Parse decodes and validates a payable request.
func (f *PayableFactory) Parse(data []byte) (*PayableSpec, error) {
	var pj PayableJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, core.Invalid("body", "invalid JSON: %v", err)
	}
	return f.Convert(pj)
}

// Convert validates an already decoded request.
func (f *PayableFactory) Convert(pj PayableJSON) (*PayableSpec, error) {
	if err := f.validate.Struct(pj); err != nil {
		return nil, err
	}

	var supplier *core.SupplierID
	if pj.SupplierID != "" {
		s := core.SupplierID(pj.SupplierID)
		supplier = &s
	}
	category := core.PayableCategory(pj.Category)

	switch pj.Type {
	case KindSingle:
		due, err := core.ParseDate(pj.DueDate)
		if err != nil {
			return nil, core.Invalid("due_date", "unparseable due date %q (use YYYY-MM-DD)", pj.DueDate)
		}
		var po *core.PurchaseOrderID
		if pj.PurchaseOrderID != "" {
			id := core.PurchaseOrderID(pj.PurchaseOrderID)
			po = &id
		}
		return &PayableSpec{Single: &payables.SingleInput{
			Description:     pj.Description,
			Category:        category,
			Amount:          pj.Amount,
			DueDate:         due,
			SupplierID:      supplier,
			PurchaseOrderID: po,
		}}, nil

	case KindRecurring:
		if pj.Amount == nil {
			return nil, core.Invalid("amount", "amount is required for recurring payables")
		}
		return &PayableSpec{Recurring: &payables.RecurringInput{
			Schedule: payables.RecurringSpec{
				StartDate:        pj.Schedule.StartDate,
				InstallmentCount: pj.Schedule.InstallmentCount,
				Periodicity:      payables.Periodicity(strings.ToUpper(pj.Schedule.Periodicity)),
				FixedDayOfMonth:  pj.Schedule.FixedDayOfMonth,
			},
			Description: pj.Description,
			Category:    category,
			Amount:      *pj.Amount,
			SupplierID:  supplier,
		}}, nil
	}
	return nil, core.Invalid("type", "unknown payable type %q", pj.Type)
}

// Create runs spec through gen and returns the created obligations.
func Create(ctx context.Context, gen *payables.Generator, spec *PayableSpec) ([]core.PayableObligation, error) {
	switch {
	case spec == nil:
		return nil, core.Invalid("", "empty payable spec")
	case spec.Single != nil:
		ob, err := gen.GenerateSingle(ctx, *spec.Single)
		if err != nil {
			return nil, err
		}
		return []core.PayableObligation{ob}, nil
	case spec.Recurring != nil:
		return gen.GenerateRecurring(ctx, *spec.Recurring)
	}
	return nil, fmt.Errorf("payable spec has neither single nor recurring input")
}
