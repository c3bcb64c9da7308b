package auth

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	id          string
	verifyCalls int
	session     *Session
	verifyErr   error
}

func (s *stubProvider) ID() string { return s.id }

func (s *stubProvider) VerifySession(context.Context, string) (*Session, error) {
	s.verifyCalls++
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.session, nil
}

func countingFactory(id string, constructed *int) Factory {
	return func(Config, Deps) (Provider, error) {
		*constructed++
		return &stubProvider{id: id}, nil
	}
}

func TestNewRegistryRejectsUnknownFactoryID(t *testing.T) {
	_, err := NewRegistry(Deps{}, map[string]Factory{
		"saml": func(Config, Deps) (Provider, error) { return nil, nil },
	})
	if err == nil {
		t.Fatal("NewRegistry accepted a factory for an undefined provider")
	}
	var unknown *UnknownProviderError
	if !errors.As(err, &unknown) {
		t.Errorf("err = %v, want UnknownProviderError", err)
	}
}

func TestRegistryLoadConstructsOnce(t *testing.T) {
	constructed := 0
	reg, err := NewRegistry(Deps{}, map[string]Factory{
		ProviderLocal: countingFactory(ProviderLocal, &constructed),
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	first, err := reg.Load(ProviderLocal)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := reg.Load(ProviderLocal)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if constructed != 1 {
		t.Errorf("factory ran %d times, want 1", constructed)
	}
	if first != second {
		t.Error("Load returned different instances")
	}
}

func TestRegistryLoadUnknownProvider(t *testing.T) {
	reg, err := NewRegistry(Deps{}, map[string]Factory{})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if _, err := reg.Load("saml"); err == nil {
		t.Error("Load accepted an unknown provider id")
	}

	// Defined in the table but absent from the factory map.
	if _, err := reg.Load(ProviderOIDC); err == nil {
		t.Error("Load accepted a defined but unregistered provider")
	}
}

func TestRegistrySetConfigInvalidatesProvider(t *testing.T) {
	constructed := 0
	reg, err := NewRegistry(Deps{}, map[string]Factory{
		ProviderLocal: countingFactory(ProviderLocal, &constructed),
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if _, err := reg.Load(ProviderLocal); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := reg.SetConfig(ProviderLocal, Config{"X": "y"}); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	if _, err := reg.Load(ProviderLocal); err != nil {
		t.Fatalf("Load after SetConfig failed: %v", err)
	}
	if constructed != 2 {
		t.Errorf("factory ran %d times, want 2 after config change", constructed)
	}

	cfg, err := reg.Config(ProviderLocal)
	if err != nil {
		t.Fatalf("Config failed: %v", err)
	}
	if cfg.Get("X") != "y" {
		t.Errorf("pinned config not served: %v", cfg)
	}
}

func TestRegistryClearCaches(t *testing.T) {
	constructed := 0
	reg, err := NewRegistry(Deps{}, map[string]Factory{
		ProviderLocal: countingFactory(ProviderLocal, &constructed),
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if _, err := reg.Load(ProviderLocal); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	reg.ClearCaches()
	if _, err := reg.Load(ProviderLocal); err != nil {
		t.Fatalf("Load after ClearCaches failed: %v", err)
	}
	if constructed != 2 {
		t.Errorf("factory ran %d times, want 2 after cache clear", constructed)
	}
}

func TestRegistryValidateAppliesOverrides(t *testing.T) {
	t.Setenv(EnvSessionSecret, testSessionSecret)

	reg, err := NewRegistry(Deps{}, map[string]Factory{})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	res, err := reg.Validate(ProviderWebhook, nil)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.Valid {
		t.Error("webhook validated without a secret")
	}

	res, err = reg.Validate(ProviderWebhook, map[string]string{"SECRET": "webhook-shared-secret-value"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !res.Valid {
		t.Errorf("webhook with override secret invalid: %s", res.Message)
	}
}
