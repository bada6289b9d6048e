package identity

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// FieldError はフィールド単位の検証エラーです。
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// FieldErrors は検証エラーの集合です。空であれば入力は有効です。
type FieldErrors []FieldError

// Valid は検証エラーが無いかどうかを返します。
func (fe FieldErrors) Valid() bool {
	return len(fe) == 0
}

// Has は指定フィールドのエラーがあるかどうかを返します。
func (fe FieldErrors) Has(field string) bool {
	for _, e := range fe {
		if e.Field == field {
			return true
		}
	}
	return false
}

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, e := range fe {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator は go-playground/validator をラップし、フォーム名でエラーを返します。
type Validator struct {
	validate *validator.Validate
}

// NewValidator は識別情報フォーム用のカスタムルールを登録した Validator を作成します。
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	// bcrypt は72バイトを超える入力を受け付けないため、文字数ではなくバイト数で制限する
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate は構造体を検証し、フィールドエラーの集合を返します。
func (v *Validator) Validate(req any) FieldErrors {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var out FieldErrors
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out = append(out, FieldError{
				Field:   fe.Field(),
				Tag:     fe.Tag(),
				Message: message(fe),
			})
		}
		return out
	}

	// InvalidValidationError など構造体以外が渡された場合
	return FieldErrors{{Field: "", Tag: "invalid", Message: err.Error()}}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	case "maxbytes":
		return fmt.Sprintf("must be at most %s bytes", fe.Param())
	case "eqfield":
		return "does not match"
	case "username":
		return "may contain only letters, digits, '_', '.' and '-'"
	default:
		return fmt.Sprintf("failed the %q rule", fe.Tag())
	}
}
