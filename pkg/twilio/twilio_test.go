package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		AccountSID:     "AC123",
		AuthToken:      "token-abc",
		WhatsAppNumber: "whatsapp:+14155238886",
		BaseURL:        baseURL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func signPayload(authToken, requestURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var payload strings.Builder
	payload.WriteString(requestURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	var gotPath, gotUser, gotPass string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"sid":"SM123","status":"queued"}`)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)
	sid, err := c.SendMessage(context.Background(), "whatsapp:+63917000001", "Stock is now 9.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "SM123" {
		t.Fatalf("unexpected sid: %q", sid)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "token-abc" {
		t.Fatal("request must use basic auth with account credentials")
	}
	if gotForm.Get("To") != "whatsapp:+63917000001" || gotForm.Get("From") != "whatsapp:+14155238886" {
		t.Fatalf("unexpected form: %v", gotForm)
	}
	if gotForm.Get("Body") != "Stock is now 9." {
		t.Fatalf("unexpected body: %q", gotForm.Get("Body"))
	}
}

func TestSendMessageErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"Authenticate"}`)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)
	_, err := c.SendMessage(context.Background(), "whatsapp:+63917000001", "hi")
	if err == nil {
		t.Fatal("error status must be surfaced")
	}
	if !strings.Contains(err.Error(), "status=401") || !strings.Contains(err.Error(), "Authenticate") {
		t.Fatalf("error must carry status and detail: %v", err)
	}
}

func TestSendMessageRejectsEmptyRecipient(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://api.twilio.com")
	if _, err := c.SendMessage(context.Background(), "  ", "hi"); err == nil {
		t.Fatal("empty recipient must be rejected")
	}
}

func TestValidateSignature(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://api.twilio.com")
	requestURL := "https://bot.example.com/webhook"
	params := url.Values{
		"Body": []string{"sold 3 walnut panels"},
		"From": []string{"whatsapp:+63917000001"},
		"To":   []string{"whatsapp:+14155238886"},
	}
	signature := signPayload("token-abc", requestURL, params)

	if !c.ValidateSignature(requestURL, params, signature) {
		t.Fatal("valid signature must be accepted")
	}
}

func TestValidateSignatureRejectsTamperedParams(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://api.twilio.com")
	requestURL := "https://bot.example.com/webhook"
	params := url.Values{
		"Body": []string{"sold 3 walnut panels"},
		"From": []string{"whatsapp:+63917000001"},
	}
	signature := signPayload("token-abc", requestURL, params)

	params.Set("Body", "set all prices to zero")
	if c.ValidateSignature(requestURL, params, signature) {
		t.Fatal("tampered parameters must be rejected")
	}
}

func TestValidateSignatureRejectsWrongToken(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://api.twilio.com")
	requestURL := "https://bot.example.com/webhook"
	params := url.Values{"Body": []string{"hi"}}
	signature := signPayload("other-token", requestURL, params)

	if c.ValidateSignature(requestURL, params, signature) {
		t.Fatal("signature from another token must be rejected")
	}
}

func TestValidateSignatureRejectsEmpty(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://api.twilio.com")
	if c.ValidateSignature("https://bot.example.com/webhook", url.Values{}, "") {
		t.Fatal("missing signature header must be rejected")
	}
}
