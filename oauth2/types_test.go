package oauth2_test

import (
	"testing"

	"github.com/jrsteele09/go-identity-server/oauth2"
	"github.com/stretchr/testify/require"
)

const (
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

func TestCheckCodeChallenge(t *testing.T) {
	tests := []struct {
		name      string
		challenge string
		verifier  string
		method    oauth2.CodeMethodType
		want      bool
	}{
		{"no pkce", "", "", "", true},
		{"s256 match", testCodeChallenge, testCodeVerifier, oauth2.CodeMethodTypeS256, true},
		{"s256 mismatch", testCodeChallenge, "wrong", oauth2.CodeMethodTypeS256, false},
		{"plain match", "abc", "abc", oauth2.CodeMethodTypeNone, true},
		{"missing verifier", testCodeChallenge, "", oauth2.CodeMethodTypeS256, false},
		{"unknown method", "abc", "abc", "S512", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, oauth2.CheckCodeChallenge(tt.challenge, tt.verifier, tt.method))
		})
	}
}

func TestResponseTypes(t *testing.T) {
	require.True(t, oauth2.CodeResponseType.Valid())
	require.False(t, oauth2.CodeResponseType.IsDirect())
	require.True(t, oauth2.IDTokenTokenResponseType.IsDirect())
	require.False(t, oauth2.ResponseType("magic").Valid())
	require.True(t, oauth2.ResponseModeType("").Valid())
	require.False(t, oauth2.ResponseModeType("carrier_pigeon").Valid())
}

func TestHasScope(t *testing.T) {
	require.True(t, oauth2.HasScope("openid offline_access", oauth2.ScopeOfflineAccess))
	require.False(t, oauth2.HasScope("openid", oauth2.ScopeOfflineAccess))
	require.Equal(t, []string{"a", "b"}, oauth2.SplitScopes("  a   b "))
}
