package entity

import (
	"testing"
	"time"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

func TestNewUserNormalizesEmail(t *testing.T) {
	u, err := NewUser("u1", "alice", "  Alice@Example.COM ", "hash", t0)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if u.Email() != "alice@example.com" {
		t.Errorf("email = %q", u.Email())
	}
	if !u.IsActive() || u.Subscription().Tier != valueobject.TierFree {
		t.Errorf("unexpected defaults: active=%v tier=%s", u.IsActive(), u.Subscription().Tier)
	}
}

func TestNewUserRejectsBadInput(t *testing.T) {
	if _, err := NewUser("u1", "al", "a@b.co", "h", t0); err != ErrInvalidUsername {
		t.Errorf("short username err = %v", err)
	}
	if _, err := NewUser("u1", "alice", "not-an-email", "h", t0); err != ErrInvalidEmail {
		t.Errorf("bad email err = %v", err)
	}
}

func TestQuotaByTier(t *testing.T) {
	u, _ := NewUser("u1", "alice", "a@b.co", "h", t0)
	for i := 0; i < 10; i++ {
		u.RecordUsage(valueobject.UsageImages, t0)
	}
	if u.CanUse(valueobject.UsageImages, t0) {
		t.Error("free tier should be out of images after 10")
	}
	if !u.CanUse(valueobject.UsageMessages, t0) {
		t.Error("messages quota should be untouched")
	}

	u.ChangeTier(valueobject.TierEnterprise, nil, t0)
	if u.Remaining(valueobject.UsageImages, t0) != valueobject.Unlimited {
		t.Error("enterprise should be unlimited")
	}

	expired := t0.Add(-time.Hour)
	u.ChangeTier(valueobject.TierPremium, &expired, t0)
	if u.Remaining(valueobject.UsageImages, t0) != 0 {
		t.Errorf("expired premium should fall back to free, remaining = %d", u.Remaining(valueobject.UsageImages, t0))
	}
}

func TestLoginHistoryCapped(t *testing.T) {
	u, _ := NewUser("u1", "alice", "a@b.co", "h", t0)
	for i := 0; i < MaxLoginHistory+5; i++ {
		u.RecordLogin("10.0.0.1", "ua", t0.Add(time.Duration(i)*time.Minute))
	}
	history := u.LoginHistory()
	if len(history) != MaxLoginHistory {
		t.Fatalf("history = %d", len(history))
	}
	if !history[len(history)-1].At.Equal(t0.Add(time.Duration(MaxLoginHistory+4) * time.Minute)) {
		t.Error("newest login should be last")
	}
}

func TestUpdatePreferencesValidates(t *testing.T) {
	u, _ := NewUser("u1", "alice", "a@b.co", "h", t0)
	bad := valueobject.Preferences{Theme: "neon", Personality: valueobject.PersonalityConcise, Language: "en"}
	if err := u.UpdatePreferences(bad, t0); err == nil {
		t.Fatal("expected invalid theme to fail")
	}
	good := valueobject.Preferences{Theme: valueobject.ThemeDark, Personality: valueobject.PersonalityConcise, Language: "de"}
	if err := u.UpdatePreferences(good, t0); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
	if u.Preferences() != good {
		t.Errorf("preferences = %+v", u.Preferences())
	}
}
