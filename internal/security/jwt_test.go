package security_test

import (
	"testing"
	"time"

	"github.com/Rrens/thread-router/internal/security"
)

const testSecret = "test-secret-key-with-32-chars!!"

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := security.NewJWTManager(testSecret, 15*time.Minute)

	token, err := manager.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("failed to generate admin token: %v", err)
	}

	if token == "" {
		t.Error("token is empty")
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}

	if !claims.Admin {
		t.Error("expected admin claim")
	}

	if claims.Subject != "ops" {
		t.Errorf("subject mismatch: got %v, want %v", claims.Subject, "ops")
	}

	if claims.ID == "" {
		t.Error("token id is empty")
	}
}

func TestJWTManager_InvalidToken(t *testing.T) {
	manager := security.NewJWTManager(testSecret, 15*time.Minute)

	// Invalid token format
	_, err := manager.ValidateToken("invalid-token")
	if err == nil {
		t.Error("expected error for invalid token, got nil")
	}

	// Empty token
	_, err = manager.ValidateToken("")
	if err == nil {
		t.Error("expected error for empty token, got nil")
	}

	// Token signed with different secret
	otherManager := security.NewJWTManager("different-secret-key-32-chars!!", 15*time.Minute)
	token, _ := otherManager.GenerateAdminToken("ops")

	_, err = manager.ValidateToken(token)
	if err == nil {
		t.Error("expected error for token signed with different secret, got nil")
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	manager := security.NewJWTManager(testSecret, -time.Minute)

	token, err := manager.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("failed to generate admin token: %v", err)
	}

	if _, err := manager.ValidateToken(token); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestJWTManager_WithoutSecret(t *testing.T) {
	manager := security.NewJWTManager("", time.Hour)

	if manager.Enabled() {
		t.Error("manager without secret should be disabled")
	}

	if _, err := manager.GenerateAdminToken("ops"); err == nil {
		t.Error("expected error generating token without secret, got nil")
	}
}

func TestJWTManager_TokenTTL(t *testing.T) {
	ttl := 30 * time.Minute
	manager := security.NewJWTManager(testSecret, ttl)

	if manager.TokenTTL() != ttl {
		t.Errorf("token TTL mismatch: got %v, want %v", manager.TokenTTL(), ttl)
	}
}
