package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func runI18N(t *testing.T, lookup CountryLookup, mutate func(*http.Request)) (locale, country string) {
	t.Helper()
	handler := I18N("en", lookup)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale = LocaleFromContext(r.Context())
		country = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	if mutate != nil {
		mutate(req)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return locale, country
}

func TestI18NLocaleHeaderWins(t *testing.T) {
	locale, _ := runI18N(t, nil, func(r *http.Request) {
		r.Header.Set("X-Locale", "ja-JP")
		r.Header.Set("Accept-Language", "es-MX,es;q=0.9")
	})
	if locale != "ja" {
		t.Fatalf("locale = %q, want ja", locale)
	}
}

func TestI18NAcceptLanguageNegotiation(t *testing.T) {
	locale, country := runI18N(t, nil, func(r *http.Request) {
		r.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.5")
	})
	if locale != "pt" {
		t.Fatalf("locale = %q, want pt", locale)
	}
	if country != "BR" {
		t.Fatalf("country = %q, want BR from region subtag", country)
	}
}

func TestI18NUnsupportedLanguageFallsBack(t *testing.T) {
	locale, _ := runI18N(t, nil, func(r *http.Request) {
		r.Header.Set("Accept-Language", "xx-XX")
	})
	if locale != "en" {
		t.Fatalf("locale = %q, want en fallback", locale)
	}
}

func TestI18NCountryFromLookup(t *testing.T) {
	lookup := func(ip string) (string, error) {
		if ip != "203.0.113.7" {
			t.Errorf("lookup ip = %q", ip)
		}
		return "de", nil
	}
	_, country := runI18N(t, lookup, nil)
	if country != "DE" {
		t.Fatalf("country = %q, want DE", country)
	}
}

func TestI18NProxyHeaderBeatsLookup(t *testing.T) {
	lookup := func(string) (string, error) { return "de", nil }
	_, country := runI18N(t, lookup, func(r *http.Request) {
		r.Header.Set("CF-IPCountry", "fr")
	})
	if country != "FR" {
		t.Fatalf("country = %q, want FR", country)
	}
}
