// Command e2e-test is an end-to-end test suite for the identity service.
//
// Purpose:
//   This binary exercises the complete trust-fabric lifecycle against a
//   running admin-api instance: org registration, HMAC-signed signup/login,
//   refresh token rotation (including reuse detection), logout, and
//   bearer+role-gated user management.
//
// Dependencies:
//   - github.com/google/uuid: test data generation
//   - internal/crypto: HMAC request signing (same package the service uses)
//
// Key Responsibilities:
//   - Test org registration and the HMAC signing contract
//   - Test signup, login, refresh rotation, reuse detection, and logout
//   - Test user creation, listing, and role updates under the bearer gate
//
// Debugging Notes:
//   - Set API_URL to test against a deployed instance (default http://localhost:8081)
//   - Tests run sequentially; each creates its own organization to avoid collisions
//
// Error Handling:
//   - Test failures exit with a non-zero code
//   - Unexpected HTTP statuses include the response body in the error message
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/crypto"
)

const (
	defaultAPIURL = "http://localhost:8081"
	maxRetries    = 3
	retryDelay    = 1 * time.Second
)

func main() {
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	fmt.Printf("Running end-to-end tests against: %s\n", apiURL)
	fmt.Println(strings.Repeat("=", 61))

	client := &http.Client{Timeout: 30 * time.Second}

	tests := []struct {
		name string
		fn   func(*testContext, *http.Client, string) error
	}{
		{"TestHealthCheck", testHealthCheck},
		{"TestOrgRegistrationAndSignup", testOrgRegistrationAndSignup},
		{"TestLoginRefreshLogout", testLoginRefreshLogout},
		{"TestUserManagement", testUserManagement},
	}

	allPassed := true
	for _, test := range tests {
		fmt.Printf("\n[TEST] %s\n", test.name)
		tc := &testContext{name: test.name}
		if err := test.fn(tc, client, apiURL); err != nil {
			allPassed = false
			fmt.Printf("[FAIL] %s: %v\n", test.name, err)
		} else {
			fmt.Printf("[PASS] %s\n", test.name)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 61))
	if allPassed {
		fmt.Println("All tests passed!")
		os.Exit(0)
	}
	fmt.Println("Some tests failed!")
	os.Exit(1)
}

type testContext struct {
	name   string
	errors []string
}

func (tc *testContext) errorf(format string, args ...interface{}) {
	tc.errors = append(tc.errors, fmt.Sprintf(format, args...))
	fmt.Printf("  ERROR: %s\n", fmt.Sprintf(format, args...))
}

func (tc *testContext) assertEqual(expected, actual interface{}, msg string) {
	if expected != actual {
		tc.errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

func testHealthCheck(tc *testContext, client *http.Client, apiURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := retryRequest(client, req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	return nil
}

func testOrgRegistrationAndSignup(tc *testContext, client *http.Client, apiURL string) error {
	org, err := registerOrg(client, apiURL, "Test Org "+uuid.New().String()[:8])
	if err != nil {
		return fmt.Errorf("register org: %w", err)
	}
	if org.clientSecret == "" {
		return fmt.Errorf("expected a client secret to be returned")
	}

	email := fmt.Sprintf("owner-%s@example.com", uuid.New().String()[:8])
	resp, err := signedRequest(client, apiURL, "POST", "/v1/auth/signup", org, map[string]any{
		"email": email, "password": "correct-horse-battery-1",
	}, http.StatusCreated)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	tc.assertEqual("owner", resp["role"], "first signup should be the org owner")
	return nil
}

func testLoginRefreshLogout(tc *testContext, client *http.Client, apiURL string) error {
	org, err := registerOrg(client, apiURL, "Test Org "+uuid.New().String()[:8])
	if err != nil {
		return fmt.Errorf("register org: %w", err)
	}
	email := fmt.Sprintf("owner-%s@example.com", uuid.New().String()[:8])
	password := "correct-horse-battery-1"
	if _, err := signedRequest(client, apiURL, "POST", "/v1/auth/signup", org, map[string]any{
		"email": email, "password": password,
	}, http.StatusCreated); err != nil {
		return fmt.Errorf("signup: %w", err)
	}

	login, err := signedRequest(client, apiURL, "POST", "/v1/auth/login", org, map[string]any{
		"email": email, "password": password,
	}, http.StatusOK)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	refreshToken, _ := login["refresh_token"].(string)
	if refreshToken == "" {
		return fmt.Errorf("expected a refresh token")
	}

	refreshed, err := signedRequest(client, apiURL, "POST", "/v1/auth/refresh", org, map[string]any{
		"refresh_token": refreshToken,
	}, http.StatusOK)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	newRefreshToken, _ := refreshed["refresh_token"].(string)
	if newRefreshToken == refreshToken {
		return fmt.Errorf("expected refresh to rotate the refresh token")
	}

	// Reusing the original (now-revoked) refresh token must be rejected.
	if _, err := signedRequest(client, apiURL, "POST", "/v1/auth/refresh", org, map[string]any{
		"refresh_token": refreshToken,
	}, http.StatusUnauthorized); err != nil {
		return fmt.Errorf("expected reused refresh token to be rejected: %w", err)
	}

	accessToken, _ := refreshed["access_token"].(string)
	if err := bearerRequest(client, apiURL, "POST", "/v1/auth/logout", org, accessToken, map[string]any{
		"refresh_token": newRefreshToken,
	}, http.StatusNoContent); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func testUserManagement(tc *testContext, client *http.Client, apiURL string) error {
	org, err := registerOrg(client, apiURL, "Test Org "+uuid.New().String()[:8])
	if err != nil {
		return fmt.Errorf("register org: %w", err)
	}
	ownerEmail := fmt.Sprintf("owner-%s@example.com", uuid.New().String()[:8])
	password := "correct-horse-battery-1"
	if _, err := signedRequest(client, apiURL, "POST", "/v1/auth/signup", org, map[string]any{
		"email": ownerEmail, "password": password,
	}, http.StatusCreated); err != nil {
		return fmt.Errorf("signup owner: %w", err)
	}
	login, err := signedRequest(client, apiURL, "POST", "/v1/auth/login", org, map[string]any{
		"email": ownerEmail, "password": password,
	}, http.StatusOK)
	if err != nil {
		return fmt.Errorf("login owner: %w", err)
	}
	ownerToken, _ := login["access_token"].(string)

	memberEmail := fmt.Sprintf("member-%s@example.com", uuid.New().String()[:8])
	created, err := bearerRequestJSON(client, apiURL, "POST", "/v1/users", org, ownerToken, map[string]any{
		"email": memberEmail, "password": password, "role": "user",
	}, http.StatusCreated)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	memberID, _ := created["id"].(string)

	listed, err := bearerRequestJSON(client, apiURL, "GET", "/v1/users", org, ownerToken, nil, http.StatusOK)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	tc.assertEqual(float64(2), listed["total"], "org should have two users (owner + member)")

	if _, err := bearerRequestJSON(client, apiURL, "PATCH", "/v1/users/"+memberID+"/role", org, ownerToken,
		map[string]any{"role": "admin"}, http.StatusOK); err != nil {
		return fmt.Errorf("promote member to admin: %w", err)
	}
	return nil
}

// orgCredentials holds what registerOrg returns: the identifiers needed to
// sign every subsequent request as this organization.
type orgCredentials struct {
	clientID     string
	clientSecret string
}

func registerOrg(client *http.Client, apiURL, name string) (orgCredentials, error) {
	resp, err := makeRequest(client, "POST", apiURL+"/v1/org/register", nil, map[string]any{"name": name}, http.StatusCreated)
	if err != nil {
		return orgCredentials{}, err
	}
	clientID, _ := resp["client_id"].(string)
	clientSecret, _ := resp["client_secret"].(string)
	return orgCredentials{clientID: clientID, clientSecret: clientSecret}, nil
}

// signedRequest issues an HMAC-signed request and returns the decoded response.
func signedRequest(client *http.Client, apiURL, method, path string, org orgCredentials, body map[string]any, expectedStatus int) (map[string]any, error) {
	headers, err := signHeaders(method, path, org, body)
	if err != nil {
		return nil, err
	}
	return makeRequest(client, method, apiURL+path, headers, body, expectedStatus)
}

// bearerRequest issues an HMAC-signed, bearer-authenticated request and discards the body.
func bearerRequest(client *http.Client, apiURL, method, path string, org orgCredentials, accessToken string, body map[string]any, expectedStatus int) error {
	_, err := bearerRequestJSON(client, apiURL, method, path, org, accessToken, body, expectedStatus)
	return err
}

func bearerRequestJSON(client *http.Client, apiURL, method, path string, org orgCredentials, accessToken string, body map[string]any, expectedStatus int) (map[string]any, error) {
	headers, err := signHeaders(method, path, org, body)
	if err != nil {
		return nil, err
	}
	headers["Authorization"] = "Bearer " + accessToken
	return makeRequest(client, method, apiURL+path, headers, body, expectedStatus)
}

func signHeaders(method, path string, org orgCredentials, body map[string]any) (map[string]string, error) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	payload := crypto.CanonicalPayload(method, path, timestamp, body)
	clientSecretHash := crypto.HashIdentifier(org.clientSecret)
	signature := crypto.SignHMAC(clientSecretHash, payload)
	return map[string]string{
		"X-Client-ID":  org.clientID,
		"X-Timestamp":  timestamp,
		"X-Signature":  signature,
	}, nil
}

// makeRequest performs an HTTP request and returns the JSON response.
func makeRequest(client *http.Client, method, url string, headers map[string]string, body map[string]any, expectedStatus int) (map[string]any, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := retryRequest(client, req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("expected status %d, got %d for %s %s: %s", expectedStatus, resp.StatusCode, method, url, string(bodyBytes))
	}

	var result map[string]any
	if resp.ContentLength > 0 {
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return result, nil
}

// retryRequest retries a request with linear backoff.
func retryRequest(client *http.Client, req *http.Request) (*http.Response, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		resp, err := client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if i < maxRetries-1 {
			time.Sleep(retryDelay * time.Duration(i+1))
		}
	}
	return nil, lastErr
}
