package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppErrorWrapping(t *testing.T) {
	cause := errors.New("boom")
	app := NewAppError(CodeSessionNotFound, "session not found", http.StatusNotFound, cause)

	if !errors.Is(app, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
	if !IsAppError(app) {
		t.Fatal("expected IsAppError to match")
	}
	if IsAppError(cause) {
		t.Fatal("plain error must not match IsAppError")
	}
	if app.Error() != "boom" {
		t.Fatalf("unexpected message: %q", app.Error())
	}
}

func TestWriteAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteAppError(rr, NewAppError(CodeSessionNotActive, "session is not active", http.StatusConflict, nil))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body struct {
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != CodeSessionNotActive {
		t.Fatalf("unexpected code: %q", body.Error.Code)
	}
}

func TestWriteAppErrorFallsBackToInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteAppError(rr, errors.New("unexpected"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestSha256Hex(t *testing.T) {
	if got := Sha256Hex("abc"); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected digest: %s", got)
	}
}
