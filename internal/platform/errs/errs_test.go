package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassification(t *testing.T) {
	cases := []struct {
		err   error
		check func(error) bool
	}{
		{Validationf("empty recipients"), IsValidation},
		{NotFoundf("patient %s", "x"), IsNotFound},
		{InvalidStatef("already resolved"), IsInvalidState},
		{Storagef(nil, "insert failed"), IsStorage},
		{Storagef(errors.New("conn refused"), "insert failed"), IsStorage},
	}
	for _, tc := range cases {
		if !tc.check(tc.err) {
			t.Errorf("%v not classified", tc.err)
		}
	}
}

func TestWrappedErrorsStayClassified(t *testing.T) {
	err := fmt.Errorf("create review: %w", Validationf("recipients must not be empty"))
	if !IsValidation(err) {
		t.Error("classification lost through wrapping")
	}
	if IsNotFound(err) {
		t.Error("cross-category match")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validationf("x"), http.StatusBadRequest},
		{NotFoundf("x"), http.StatusNotFound},
		{InvalidStatef("x"), http.StatusConflict},
		{Storagef(nil, "x"), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
