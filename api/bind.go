package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return jsonName(field)
	})
	return v
}

var errorMessages = map[string]string{
	"required": "The field '%s' is required.",
	"max":      "The field '%s' must be no longer than %s characters.",
	"min":      "The field '%s' must be at least %s characters long.",
	"gt":       "The field '%s' must be greater than %s.",
	"lte":      "The field '%s' must be at most %s.",
	"oneof":    "The field '%s' must be one of [%s].",
	"numeric":  "The field '%s' must contain only digits.",
}

// bindError carries per-field validation messages.
type bindError struct {
	msg    string
	fields map[string]string
}

func (e *bindError) Error() string { return e.msg }

// bind decodes a JSON or urlencoded body into dst and validates it.
func bind(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return &bindError{msg: "malformed form body"}
		}
		if err := fillFromForm(dst, r.PostForm.Get); err != nil {
			return err
		}
	default:
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			if errors.Is(err, io.EOF) {
				return &bindError{msg: "request body is empty"}
			}
			return &bindError{msg: "malformed JSON body"}
		}
	}

	return validateStruct(dst)
}

func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &bindError{msg: "invalid request"}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = parseMessage(fe)
	}
	return &bindError{msg: "validation failed", fields: fields}
}

func parseMessage(fe validator.FieldError) string {
	if msg, ok := errorMessages[fe.Tag()]; ok {
		if strings.Count(msg, "%s") == 2 {
			return fmt.Sprintf(msg, fe.Field(), fe.Param())
		}
		return fmt.Sprintf(msg, fe.Field())
	}
	return fmt.Sprintf("Field '%s' is invalid: %s", fe.Field(), fe.Tag())
}

// fillFromForm sets string and integer fields of the struct dst points to
// from form values keyed by their json names.
func fillFromForm(dst any, get func(string) string) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bind: %T is not a struct pointer", dst)
	}
	v = v.Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := jsonName(field)
		if name == "" {
			continue
		}
		raw := strings.TrimSpace(get(name))
		if raw == "" {
			continue
		}

		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return &bindError{msg: "validation failed", fields: map[string]string{
					name: fmt.Sprintf("The field '%s' must be an integer.", name),
				}}
			}
			fv.SetInt(n)
		}
	}
	return nil
}

func jsonName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if name := strings.Split(tag, ",")[0]; name != "" {
		return name
	}
	return field.Name
}
