package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

func main() {
	base := os.Getenv("CAPGATE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	username := "smoke-" + uuid.NewString()[:8]
	password := uuid.NewString()

	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp := mustDo(ctx, client, http.MethodPost, base+"/signup", body, nil)
	expect(resp, http.StatusCreated, "signup")

	resp = mustDo(ctx, client, http.MethodPost, base+"/signin", nil, func(r *http.Request) {
		r.SetBasicAuth(username, password)
	})
	expect(resp, http.StatusOK, "signin")
	token := resp.Header.Get("token")
	if token == "" {
		log.Fatal("signin returned no token header")
	}

	resp = mustDo(ctx, client, http.MethodPost, base+"/signin", nil, func(r *http.Request) {
		r.SetBasicAuth(username, password+"x")
	})
	expect(resp, http.StatusUnauthorized, "signin with wrong password")

	resp = mustDo(ctx, client, http.MethodPost, base+"/roles/seed", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	expect(resp, http.StatusForbidden, "seed roles as default user")

	fmt.Printf("✅ auth smoke test passed: user=%s\n", username)
}

func mustDo(ctx context.Context, client *http.Client, method, url string, body []byte, mutate func(*http.Request)) *http.Response {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build %s %s: %v", method, url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	_ = resp.Body.Close()
	return resp
}

func expect(resp *http.Response, code int, step string) {
	if resp.StatusCode != code {
		log.Fatalf("%s: expected %d, got %d", step, code, resp.StatusCode)
	}
}
