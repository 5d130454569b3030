// fake-receiver is a development stand-in for a customer's webhook
// endpoint. It verifies the delivery signature and can be told to fail
// the first N requests to exercise the courier's retry behavior.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/pagemarkhq/pagehook/internal/courier"
)

type receiverConfig struct {
	FailFirstN     int
	EndpointSecret string
}

var reqCount atomic.Int64

func main() {
	cfg := receiverConfig{}
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FailFirstN = n
		}
	}
	cfg.EndpointSecret = os.Getenv("ENDPOINT_SECRET")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) { handleHook(w, r, cfg) })

	addr := ":8081"
	log.Printf("fake-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleHook(w http.ResponseWriter, r *http.Request, cfg receiverConfig) {
	count := reqCount.Add(1)
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if cfg.EndpointSecret != "" {
		if ok, msg := verifySignature(cfg.EndpointSecret, b, r.Header.Get(courier.SignatureHeader)); !ok {
			log.Printf("fake-receiver failed to verify signature: %s", msg)
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if count <= int64(cfg.FailFirstN) {
		log.Printf("FAILING (%d/%d) %s headers=%d body=%s", count, cfg.FailFirstN, r.URL.Path, len(r.Header), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s  headers=%d body=%q", r.URL.Path, len(r.Header), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// verifySignature recomputes the HMAC over the raw body. The signature
// header carries bare lowercase hex, no scheme prefix.
func verifySignature(secret string, body []byte, sigHeaderVal string) (bool, string) {
	if sigHeaderVal == "" {
		return false, "missing signature header"
	}
	if _, err := hex.DecodeString(sigHeaderVal); err != nil {
		return false, "signature not hex"
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sigHeaderVal), []byte(want)) {
		return false, "sig mismatch"
	}
	return true, ""
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
