package validator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"tekelbayim/internal/usecase"

	"github.com/go-playground/validator/v10"
)

// FieldError は項目ごとのエラー
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError は入力不正（400で返す）
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation error: " + strings.Join(msgs, "; ")
}

// AsValidationError はerrがValidationErrorか
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

type registerForm struct {
	Email       string  `json:"email" validate:"required,email,max=256"`
	Password    string  `json:"password" validate:"required,min=8,max_bytes=72,has_upper,has_lower,has_digit,has_special"`
	DisplayName *string `json:"displayName" validate:"omitempty,max=100"`
	Phone       *string `json:"phone" validate:"omitempty,max=20"`
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authValidator struct {
	v *validator.Validate
}

// Usecaseは interface を依存注入
func NewAuthValidator() usecase.AuthValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	//エラーのFieldはjson名で返す
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "has_upper", runeRule(unicode.IsUpper))
	mustRegister(v, "has_lower", runeRule(unicode.IsLower))
	mustRegister(v, "has_digit", runeRule(unicode.IsDigit))
	mustRegister(v, "has_special", runeRule(func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
	}))
	//bcryptは72バイトまで
	mustRegister(v, "max_bytes", maxBytes)

	return &authValidator{v: v}
}

// サインアップの入力を検証
func (a *authValidator) ValidateRegister(ctx context.Context, req usecase.RegisterRequest) error {
	return a.check(registerForm{
		Email:       strings.TrimSpace(req.Email),
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
}

// ログインの入力を検証
func (a *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	return a.check(loginForm{Email: strings.TrimSpace(email), Password: password})
}

func (a *authValidator) check(form any) error {
	err := a.v.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "A valid email address is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", fe.Field(), fe.Param())
	case "max_bytes":
		return fmt.Sprintf("%s must not exceed %s bytes", fe.Field(), fe.Param())
	case "has_upper":
		return "Password must contain at least one uppercase letter"
	case "has_lower":
		return "Password must contain at least one lowercase letter"
	case "has_digit":
		return "Password must contain at least one digit"
	case "has_special":
		return "Password must contain at least one special character"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// 登録に失敗したらpanic
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// 文字数ではなくUTF-8のバイト数で上限を見る
func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// 文字列にpredを満たす文字が1つでもあるか
func runeRule(pred func(rune) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if pred(r) {
				return true
			}
		}
		return false
	}
}
