package ratealerts

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"mortgage-rate-alerts/internal/apperr"
	"mortgage-rate-alerts/internal/storage"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	// Decimal fields are checked at struct level so bounds are compared exactly.
	v.RegisterStructValidation(validateDecimals, CreateInput{}, UpdateInput{})

	_ = v.RegisterValidation("loantype", func(fl validator.FieldLevel) bool {
		return storage.ValidLoanType(fl.Field().String())
	})
	_ = v.RegisterValidation("timeframe", func(fl validator.FieldLevel) bool {
		return storage.ValidTimeframe(fl.Field().String())
	})
	_ = v.RegisterValidation("alertstatus", func(fl validator.FieldLevel) bool {
		return storage.Status(fl.Field().String()).Valid()
	})

	return v
}

var (
	minTargetRate = decimal.RequireFromString("0.5")
	maxTargetRate = decimal.NewFromInt(20)
)

// rateScale matches the NUMERIC(6,3) target_rate column.
const rateScale = 3

func validateDecimals(sl validator.StructLevel) {
	switch in := sl.Current().Interface().(type) {
	case CreateInput:
		if in.TargetRate.IsZero() {
			sl.ReportError(in.TargetRate, "targetRate", "TargetRate", "required", "")
		} else {
			checkTargetRate(sl, in.TargetRate)
		}
		if in.LoanAmount != nil && !in.LoanAmount.IsPositive() {
			sl.ReportError(*in.LoanAmount, "loanAmount", "LoanAmount", "gt", "0")
		}
	case UpdateInput:
		if in.TargetRate != nil {
			checkTargetRate(sl, *in.TargetRate)
		}
	}
}

func checkTargetRate(sl validator.StructLevel, rate decimal.Decimal) {
	switch {
	case rate.LessThan(minTargetRate) || rate.GreaterThan(maxTargetRate):
		sl.ReportError(rate, "targetRate", "TargetRate", "raterange", "")
	case !rate.Equal(rate.Truncate(rateScale)):
		sl.ReportError(rate, "targetRate", "TargetRate", "scale", strconv.Itoa(rateScale))
	}
}

// validationError converts validator output into a VALIDATION_ERROR.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("Invalid request", nil)
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return apperr.Validation("Invalid request", details)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "loantype":
		return "must be one of: " + strings.Join(storage.LoanTypes, ", ")
	case "timeframe":
		return "must be one of: " + strings.Join(storage.Timeframes, ", ")
	case "alertstatus":
		return "must be one of: ACTIVE, INACTIVE, TRIGGERED, EXPIRED"
	case "raterange":
		return fmt.Sprintf("must be between %s and %s", minTargetRate, maxTargetRate)
	case "scale":
		return fmt.Sprintf("must have at most %s decimal places", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}
