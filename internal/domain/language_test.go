package domain

import "testing"

func TestParseLanguageCommand(t *testing.T) {
	tests := []struct {
		body   string
		want   string
		wantOK bool
	}{
		{"language: English", "english", true},
		{"LANGUAGE:hebrew", "hebrew", true},
		{"Language:   Hebrew  ", "hebrew", true},
		{"language:", "", true},
		{"language: klingon", "klingon", true},
		{"lang: english", "", false},
		{"hello there", "", false},
		{" language: english", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseLanguageCommand(tt.body)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseLanguageCommand(%q) = (%q, %v), want (%q, %v)", tt.body, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLookupLanguage(t *testing.T) {
	if code, ok := LookupLanguage("english"); !ok || code != "en-US" {
		t.Errorf("english: got (%q, %v)", code, ok)
	}
	if code, ok := LookupLanguage("hebrew"); !ok || code != "he-IL" {
		t.Errorf("hebrew: got (%q, %v)", code, ok)
	}
	for _, name := range []string{"English", "french", "", "en-US"} {
		if _, ok := LookupLanguage(name); ok {
			t.Errorf("%q should not be recognized", name)
		}
	}
}

func TestIsLanguageSupported(t *testing.T) {
	for _, code := range []string{"en-US", "he-IL"} {
		if !IsLanguageSupported(code) {
			t.Errorf("%s should be supported", code)
		}
	}
	for _, code := range []string{"fr-FR", "en", "", "he-il"} {
		if IsLanguageSupported(code) {
			t.Errorf("%q should not be supported", code)
		}
	}
}

func TestLanguageBase(t *testing.T) {
	if got := LanguageBase("he-IL"); got != "he" {
		t.Errorf("he-IL: got %q", got)
	}
	if got := LanguageBase("en-US"); got != "en" {
		t.Errorf("en-US: got %q", got)
	}
	if got := LanguageBase("!!"); got != "!!" {
		t.Errorf("invalid code should pass through, got %q", got)
	}
}

func TestLanguageDisplayName(t *testing.T) {
	if got := LanguageDisplayName("he-IL"); got != "Hebrew" {
		t.Errorf("got %q, want Hebrew", got)
	}
	if got := LanguageDisplayName("en-US"); got != "English" {
		t.Errorf("got %q, want English", got)
	}
	if got := LanguageDisplayName("fr-FR"); got != "fr-FR" {
		t.Errorf("got %q, want fr-FR", got)
	}
}
