package writeback

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"ledger-reconciliation-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PushRequest classifies an imported transaction for creation in its own
// ledger. Amount, Date and Type default to the imported values.
type PushRequest struct {
	Type          models.RemoteType `json:"type" validate:"omitempty,oneof=income expense"`
	Amount        decimal.Decimal   `json:"amount" validate:"omitempty,gt=0"`
	Date          string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	CategoryID    string            `json:"category_id" validate:"required"`
	CategoryName  string            `json:"category_name"`
	ContactID     string            `json:"contact_id"`
	ContactName   string            `json:"contact_name"`
	PaymentMethod string            `json:"payment_method" validate:"required"`
	Description   string            `json:"description" validate:"max=255"`
	Reference     string            `json:"reference" validate:"max=100"`
}

// TransferRequest moves money between two ledger accounts. Category and
// contact do not apply to transfers.
type TransferRequest struct {
	CounterpartAccountID string          `json:"counterpart_account_id" validate:"required"`
	Amount               decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	Date                 string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	PaymentMethod        string          `json:"payment_method" validate:"required"`
	Description          string          `json:"description" validate:"max=255"`
	Reference            string          `json:"reference" validate:"max=100"`
}

// ReplicateRequest copies an imported transaction into another entity's
// ledger. ExchangeRate is required when the two ledgers keep different base
// currencies.
type ReplicateRequest struct {
	TargetEntityID  uuid.UUID         `json:"target_entity_id" validate:"required"`
	TargetAccountID string            `json:"target_account_id" validate:"required"`
	Type            models.RemoteType `json:"type" validate:"omitempty,oneof=income expense"`
	Date            string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	ExchangeRate    *decimal.Decimal  `json:"exchange_rate" validate:"omitempty,gt=0"`
	CategoryID      string            `json:"category_id" validate:"required"`
	CategoryName    string            `json:"category_name"`
	ContactID       string            `json:"contact_id"`
	ContactName     string            `json:"contact_name"`
	PaymentMethod   string            `json:"payment_method" validate:"required"`
	Description     string            `json:"description" validate:"max=255"`
}

// ValidationError rejects a request before any remote call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		switch d := field.Interface().(type) {
		case decimal.Decimal:
			f, _ := d.Float64()
			return f
		case uuid.UUID:
			if d == uuid.Nil {
				return ""
			}
			return d.String()
		}
		return nil
	}, decimal.Decimal{}, uuid.UUID{})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must be a date in YYYY-MM-DD format", fe.Field()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return &ValidationError{Message: strings.Join(msgs, "; ")}
}
