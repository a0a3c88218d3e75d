package catalog

import (
	"encoding/json"
	"testing"
)

func TestFlexInt_numberAndString(t *testing.T) {
	var v struct {
		A FlexInt `json:"a"`
		B FlexInt `json:"b"`
		C FlexInt `json:"c"`
		D FlexInt `json:"d"`
		E FlexInt `json:"e"`
	}
	in := `{"a": 42, "b": "42", "c": " 7 ", "d": null, "e": "x1"}`
	if err := json.Unmarshal([]byte(in), &v); err != nil {
		t.Fatal(err)
	}
	if !v.A.Valid || v.A.Int64 != 42 {
		t.Errorf("a = %+v", v.A)
	}
	if !v.B.Valid || v.B.Int64 != 42 {
		t.Errorf("b = %+v", v.B)
	}
	if !v.C.Valid || v.C.Int64 != 7 {
		t.Errorf("c = %+v", v.C)
	}
	if v.D.Valid {
		t.Errorf("d should be invalid; got %+v", v.D)
	}
	if v.E.Valid {
		t.Errorf("e should be invalid; got %+v", v.E)
	}
}

func TestFlexInt_absentField(t *testing.T) {
	var v struct {
		A FlexInt `json:"a"`
	}
	if err := json.Unmarshal([]byte(`{}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.A.Valid {
		t.Errorf("absent field should be invalid; got %+v", v.A)
	}
	if v.A.Ptr() != nil {
		t.Error("Ptr on invalid should be nil")
	}
}

func TestFlexString_numberAndString(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": "12", "b": 12, "c": "  "}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.A != "12" || v.B != "12" {
		t.Errorf("a=%q b=%q", v.A, v.B)
	}
	if !v.C.Empty() {
		t.Errorf("whitespace-only should decode empty; got %q", v.C)
	}
}

func TestEffectiveUserAgent(t *testing.T) {
	s := &Source{}
	if got := s.EffectiveUserAgent(); got != DefaultUserAgent {
		t.Errorf("nil UA: got %q", got)
	}
	s.UserAgent = StrPtr("  ")
	if got := s.EffectiveUserAgent(); got != DefaultUserAgent {
		t.Errorf("blank UA: got %q", got)
	}
	s.UserAgent = StrPtr("Fred TV")
	if got := s.EffectiveUserAgent(); got != "Fred TV" {
		t.Errorf("custom UA: got %q", got)
	}
}

func TestChannelHTTPHeaders_Empty(t *testing.T) {
	h := &ChannelHTTPHeaders{}
	if !h.Empty() {
		t.Error("zero headers should be empty")
	}
	h.Referrer = StrPtr("http://a")
	if h.Empty() {
		t.Error("headers with referrer should not be empty")
	}
}
