package auth

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

// buildInitData signs params the way Telegram does.
func buildInitData(botToken string, authDate time.Time, extra map[string]string) string {
	params := url.Values{}
	params.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	for k, v := range extra {
		params.Set(k, v)
	}

	var pairs []string
	for key, values := range params {
		for _, v := range values {
			pairs = append(pairs, fmt.Sprintf("%s=%s", key, v))
		}
	}
	sort.Strings(pairs)

	secretKey := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	hash := hmacSHA256(secretKey, []byte(strings.Join(pairs, "\n")))
	params.Set("hash", hex.EncodeToString(hash))

	return params.Encode()
}

const testBotToken = "test-bot-token-12345"

func TestValidateTelegramWebAppData(t *testing.T) {
	user := map[string]string{"user": `{"id":123456,"first_name":"Test","username":"testuser"}`}

	tests := []struct {
		name    string
		data    string
		maxAge  time.Duration
		wantErr string
	}{
		{"valid", buildInitData(testBotToken, time.Now().Add(-30*time.Second), user), 5 * time.Minute, ""},
		{"default max age", buildInitData(testBotToken, time.Now().Add(-10*time.Second), user), 0, ""},
		{"expired", buildInitData(testBotToken, time.Now().Add(-10*time.Minute), user), 5 * time.Minute, "expired"},
		{"future", buildInitData(testBotToken, time.Now().Add(5*time.Minute), user), 5 * time.Minute, "future"},
		{"other bot", buildInitData("another-token", time.Now(), user), 5 * time.Minute, "invalid hash"},
		{"missing hash", "auth_date=" + strconv.FormatInt(time.Now().Unix(), 10), 5 * time.Minute, "hash is missing"},
		{"missing auth_date", "hash=abcd&user=x", 5 * time.Minute, "auth_date is missing"},
		{"non-hex hash", "auth_date=" + strconv.FormatInt(time.Now().Unix(), 10) + "&hash=zz", 5 * time.Minute, "invalid hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateTelegramWebAppData(tt.data, testBotToken, tt.maxAge)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseWebAppUser(t *testing.T) {
	data := buildInitData(testBotToken, time.Now(), map[string]string{
		"user": `{"id":42,"username":"alice","first_name":"Alice"}`,
	})
	vals, err := ValidateTelegramWebAppData(data, testBotToken, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	u, err := ParseWebAppUser(vals)
	if err != nil {
		t.Fatalf("ParseWebAppUser: %v", err)
	}
	if u.ID != 42 || u.Username != "alice" {
		t.Errorf("user = %+v", u)
	}

	for _, raw := range []string{"", "not json", `{"username":"no-id"}`} {
		if _, err := ParseWebAppUser(url.Values{"user": {raw}}); err == nil {
			t.Errorf("user %q: expected error", raw)
		}
	}
}
