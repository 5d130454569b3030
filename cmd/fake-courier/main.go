// fake-courier is a development stand-in for the external publishing
// service. It accepts delivery jobs, POSTs each job's body to its
// endpoint with the job's headers, retries failed attempts, and reports
// the terminal outcome to the job's callback URL with a signed token.
//
// Delivery policy: one initial attempt plus one retry after each of the
// configured delays (1s, 5s, 25s by default).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pagemarkhq/pagehook/internal/courier"
)

const maxResponseBody = 512

var defaultRetryDelays = []time.Duration{time.Second, 5 * time.Second, 25 * time.Second}

type courierConfig struct {
	Token       string
	SigningKey  string
	RetryDelays []time.Duration
}

func main() {
	cfg := courierConfig{
		Token:       os.Getenv("COURIER_TOKEN"),
		SigningKey:  os.Getenv("COURIER_SIGNING_KEY"),
		RetryDelays: defaultRetryDelays,
	}
	if cfg.SigningKey == "" {
		log.Fatal("COURIER_SIGNING_KEY is required")
	}

	client := &http.Client{Timeout: 30 * time.Second}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/v1/publish", func(w http.ResponseWriter, r *http.Request) {
		handlePublish(w, r, cfg, client)
	})

	addr := ":8090"
	if v := os.Getenv("COURIER_ADDR"); v != "" {
		addr = v
	}
	log.Printf("fake-courier listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handlePublish(w http.ResponseWriter, r *http.Request, cfg courierConfig, client *http.Client) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+cfg.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var job courier.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, "bad job payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if job.URL == "" || job.Callback == "" {
		http.Error(w, "job requires url and callback", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"ok":true}`))

	go func() {
		result := deliver(client, job, cfg.RetryDelays)
		if err := reportResult(client, job, result, cfg.SigningKey); err != nil {
			log.Printf("fake-courier callback failed for %s: %v", job.URL, err)
		}
	}()
}

// deliver runs the attempt loop for one job and returns the terminal
// result. A 2xx response ends the loop; anything else retries until the
// delays are exhausted.
func deliver(client *http.Client, job courier.Job, delays []time.Duration) courier.Result {
	var res courier.Result
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1

		status, body, err := attemptDelivery(client, job)
		res.Status = status
		res.Body = body
		switch {
		case err != nil:
			res.Error = err.Error()
		case status < 200 || status >= 300:
			res.Error = fmt.Sprintf("endpoint returned status %d", status)
		default:
			res.Error = ""
			log.Printf("fake-courier delivered to %s after %d attempt(s)", job.URL, res.Attempts)
			return res
		}

		if attempt >= len(delays) {
			log.Printf("fake-courier giving up on %s after %d attempt(s): %s", job.URL, res.Attempts, res.Error)
			return res
		}
		time.Sleep(delays[attempt])
	}
}

func attemptDelivery(client *http.Client, job courier.Job) (int, string, error) {
	req, err := http.NewRequest(http.MethodPost, job.URL, bytes.NewReader(job.Body))
	if err != nil {
		return 0, "", err
	}
	for k, v := range job.Headers {
		// The hide-headers flag is a directive to the courier, not a
		// header the endpoint should see.
		if strings.EqualFold(k, courier.HideHeadersHeader) {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, string(b), nil
}

// reportResult POSTs the terminal result to the job's callback URL.
// Failures go to FailureCallback, which the dispatcher sets to the same
// URL; the callback body's error field is what distinguishes outcomes.
func reportResult(client *http.Client, job courier.Job, result courier.Result, signingKey string) error {
	target := job.Callback
	if result.Failed() && job.FailureCallback != "" {
		target = job.FailureCallback
	}

	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	token, err := courier.SignCallbackToken(signingKey, 5*time.Minute)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(courier.CallbackSignatureHeader, token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
