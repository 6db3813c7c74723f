package service

import (
	"errors"
	"reflect"
	"strings"

	"checkout-service/internal/apperrors"
	"checkout-service/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return models.ValidPaymentMethod(fl.Field().String())
	})
	v.RegisterValidation("inventory_pool", func(fl validator.FieldLevel) bool {
		return models.InventoryPool(fl.Field().String()).Valid()
	})
	return v
}

// validateStruct runs the struct tags and converts the first failure into a
// validation error naming the field
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return apperrors.Validation("%s failed %s validation", field, fe.Tag())
	}
	return apperrors.Validation("invalid request: %v", err)
}
