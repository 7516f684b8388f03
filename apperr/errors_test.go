package apperr_test

import (
	"testing"

	"github.com/sabouaram/memkv/apperr"
)

func TestCodeErrorMessage(t *testing.T) {
	err := apperr.CodeNotFound.Error()
	if err.Code() != apperr.CodeNotFound {
		t.Fatalf("expected code %v, got %v", apperr.CodeNotFound, err.Code())
	}
	if err.Error() != apperr.CodeNotFound.Message() {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestErrorWithParent(t *testing.T) {
	root := apperr.CodeSocketFatal.Error()
	wrapped := apperr.New(apperr.CodeAcceptorFatal, "epoll_create failed", root)

	if !wrapped.Is(apperr.CodeAcceptorFatal) {
		t.Fatalf("expected wrapped.Is(CodeAcceptorFatal) to be true")
	}
	if !wrapped.Is(apperr.CodeSocketFatal) {
		t.Fatalf("expected wrapped.Is(CodeSocketFatal) to be true via parent chain")
	}
	if wrapped.Is(apperr.CodeNotFound) {
		t.Fatalf("did not expect wrapped.Is(CodeNotFound)")
	}
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := apperr.CodeProtocolError.Errorf("unexpected byte %q at offset %d", '~', 3)
	want := `unexpected byte '~' at offset 3`
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}
