package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext holds per-scenario state against a running medledger server.
type TestContext struct {
	BaseURL    string
	SigningKey string
	Issuer     string

	client       *http.Client
	participants map[string]string
	saved        map[string]uint64

	lastStatus int
	lastBody   map[string]any
}

// NewTestContext targets baseURL and mints tokens with signingKey for issuer.
func NewTestContext(baseURL, signingKey, issuer string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SigningKey: signingKey,
		Issuer:     issuer,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears state between scenarios.
func (tc *TestContext) Reset() {
	tc.participants = map[string]string{}
	tc.saved = map[string]uint64{}
	tc.lastStatus = 0
	tc.lastBody = nil
}

func (tc *TestContext) SetParticipant(name, address string) {
	tc.participants[name] = address
}

func (tc *TestContext) Participant(name string) (string, error) {
	addr, ok := tc.participants[name]
	if !ok {
		return "", fmt.Errorf("unknown participant %q", name)
	}
	return addr, nil
}

// Token mints a short-lived session token the way the identity provider does.
func (tc *TestContext) Token(name string) (string, error) {
	addr, err := tc.Participant(name)
	if err != nil {
		return "", err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"address": addr,
		"sub":     addr,
		"iss":     tc.Issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(5 * time.Minute).Unix(),
	})
	return token.SignedString([]byte(tc.SigningKey))
}

// Do sends a request as the named participant; an empty name sends no
// credential.
func (tc *TestContext) Do(ctx context.Context, as, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		token, err := tc.Token(as)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody = nil
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &tc.lastBody); err != nil {
			return fmt.Errorf("decode response %q: %w", raw, err)
		}
	}
	return nil
}

func (tc *TestContext) Status() int { return tc.lastStatus }

// Field returns a top-level field of the last response body rendered as text.
func (tc *TestContext) Field(name string) (string, error) {
	v, ok := tc.lastBody[name]
	if !ok {
		return "", fmt.Errorf("response has no field %q: %v", name, tc.lastBody)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return fmt.Sprint(t), nil
	}
}

// Save stores the numeric field of the last response under alias.
func (tc *TestContext) Save(field, alias string) error {
	v, err := tc.Field(field)
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("field %q is not an id: %w", field, err)
	}
	tc.saved[alias] = n
	return nil
}

func (tc *TestContext) Saved(alias string) (uint64, error) {
	n, ok := tc.saved[alias]
	if !ok {
		return 0, fmt.Errorf("nothing saved as %q", alias)
	}
	return n, nil
}
