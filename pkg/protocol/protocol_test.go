package protocol

import (
	"strings"
	"testing"
)

func TestEncodeDecodeRequest_RoundTrip(t *testing.T) {
	frame, err := EncodeRequest(Request{
		ID:   "c1",
		Type: TypeValidateAndLoad,
		Args: []string{"rslive_v1_abc", "S1"},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame != "c1|VALIDATE_AND_LOAD|rslive_v1_abc|S1" {
		t.Fatalf("unexpected frame %q", frame)
	}

	req, err := DecodeRequest(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.ID != "c1" || req.Type != TypeValidateAndLoad {
		t.Fatalf("decoded header mismatch: %+v", req)
	}
	if req.Args[0] != "rslive_v1_abc" || req.Args[1] != "S1" {
		t.Fatalf("decoded args mismatch: %v", req.Args)
	}
}

func TestDecodeRequest_BlobKeepsDelimiters(t *testing.T) {
	blob := `{"type":"session.update","session":{"instructions":"a|b|c"}}`
	frame := "c2|SAVE_SESSION|acc1|S1|" + blob
	req, err := DecodeRequest(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Args[2] != blob {
		t.Fatalf("blob not reassembled: %q", req.Args[2])
	}
}

func TestDecodeRequest_TrailingDelimitersInBlob(t *testing.T) {
	frame := "c3|APPEND_CONVERSATION|acc1|S1|user:hi||agent:yo||"
	req, err := DecodeRequest(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Args[2] != "user:hi||agent:yo||" {
		t.Fatalf("got blob %q", req.Args[2])
	}
}

func TestDecodeRequest_RejectsShortFrames(t *testing.T) {
	cases := []string{
		"c4",
		"c4|VALIDATE_AND_LOAD",
		"c4|VALIDATE_AND_LOAD|onlykey",
		"c4|UPDATE_USAGE|acc|sess|OPENAI|10",
		"c4|NOT_A_TYPE|x",
	}
	for _, frame := range cases {
		if _, err := DecodeRequest(frame); err == nil {
			t.Fatalf("frame %q should be rejected", frame)
		}
	}
}

func TestDecodeRequest_RejectsNonNumeric(t *testing.T) {
	if _, err := DecodeRequest("c5|UPDATE_USAGE|acc|sess|OPENAI|ten|20"); err == nil {
		t.Fatalf("non-numeric token count should be rejected")
	}
}

func TestDecodeResponse_Success(t *testing.T) {
	blob := `{"type":"session.update","session":{"instructions":"x|y"}}`
	frame := EncodeResponse(TypeValidateAndLoad, "c6", "", []string{"acc1", blob, "1000"})
	resp, err := DecodeResponse(TypeValidateAndLoad, frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "c6" || resp.Err != "" {
		t.Fatalf("header mismatch: %+v", resp)
	}
	if resp.Fields[0] != "acc1" || resp.Fields[1] != blob || resp.Fields[2] != "1000" {
		t.Fatalf("fields mismatch: %v", resp.Fields)
	}
	if Number(resp.Fields[2]) != 1000 {
		t.Fatalf("credits = %d, want 1000", Number(resp.Fields[2]))
	}
}

func TestDecodeResponse_EmptyBlob(t *testing.T) {
	frame := EncodeResponse(TypeValidateAndLoad, "c7", "", []string{"acc1", "", "42"})
	resp, err := DecodeResponse(TypeValidateAndLoad, frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Fields[1] != "" || resp.Fields[2] != "42" {
		t.Fatalf("fields mismatch: %v", resp.Fields)
	}
}

func TestDecodeResponse_Error(t *testing.T) {
	frame := EncodeResponse(TypeValidateAndLoad, "c8", "INVALID_AUTH", nil)
	if !strings.HasPrefix(frame, "c8|INVALID_AUTH") {
		t.Fatalf("unexpected frame %q", frame)
	}
	resp, err := DecodeResponse(TypeValidateAndLoad, frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Err != "INVALID_AUTH" || len(resp.Fields) != 0 {
		t.Fatalf("error response mismatch: %+v", resp)
	}
}

func TestDecodeResponse_ErrorCarriesFields(t *testing.T) {
	frame := EncodeResponse(TypeValidateAndLoad, "c9", "NO_CREDITS", []string{"acc1", "-12"})
	if frame != "c9|NO_CREDITS|acc1|-12" {
		t.Fatalf("unexpected frame %q", frame)
	}
	resp, err := DecodeResponse(TypeValidateAndLoad, frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Err != "NO_CREDITS" {
		t.Fatalf("err = %q", resp.Err)
	}
	if len(resp.Fields) != 2 || resp.Fields[0] != "acc1" || resp.Fields[1] != "-12" {
		t.Fatalf("error fields mismatch: %v", resp.Fields)
	}
}

func TestEncodeRequest_ArgCountValidation(t *testing.T) {
	if _, err := EncodeRequest(Request{ID: "x", Type: TypeGetCredits, Args: nil}); err == nil {
		t.Fatalf("missing args should fail")
	}
	if _, err := EncodeRequest(Request{ID: "x", Type: "BOGUS", Args: []string{"a"}}); err == nil {
		t.Fatalf("unknown type should fail")
	}
}
