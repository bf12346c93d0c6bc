package source

import (
	"testing"

	"github.com/jwulff/glucostatus/internal/dexcom"
	"github.com/jwulff/glucostatus/internal/nightscout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantName string
		wantErr  string
	}{
		{
			name:     "dexcom from credentials",
			settings: Settings{DexcomUsername: "user", DexcomPassword: "pass"},
			wantName: "dexcom",
		},
		{
			name:     "nightscout from url",
			settings: Settings{NightscoutURL: "https://ns.example.com"},
			wantName: "nightscout",
		},
		{
			name: "dexcom preferred when both are set",
			settings: Settings{
				DexcomUsername: "user",
				DexcomPassword: "pass",
				NightscoutURL:  "https://ns.example.com",
			},
			wantName: "dexcom",
		},
		{
			name: "explicit kind wins",
			settings: Settings{
				Kind:           KindNightscout,
				DexcomUsername: "user",
				DexcomPassword: "pass",
				NightscoutURL:  "https://ns.example.com",
			},
			wantName: "nightscout",
		},
		{
			name:    "nothing configured",
			wantErr: "no glucose source configured",
		},
		{
			name:     "dexcom without password",
			settings: Settings{Kind: KindDexcom, DexcomUsername: "user"},
			wantErr:  "DEXCOM_PASSWORD",
		},
		{
			name:     "nightscout without url",
			settings: Settings{Kind: KindNightscout},
			wantErr:  "NIGHTSCOUT_URL",
		},
		{
			name:     "unknown kind",
			settings: Settings{Kind: "libre"},
			wantErr:  `unknown source "libre"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(tt.settings)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, src.Name())
		})
	}
}

func TestNewDexcomOUS(t *testing.T) {
	src, err := New(Settings{DexcomUsername: "user", DexcomPassword: "pass", DexcomOUS: true})
	require.NoError(t, err)

	client, ok := src.(*dexcom.Client)
	require.True(t, ok)
	assert.Equal(t, dexcom.BaseURLOUS, client.BaseURL)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DEXCOM_USERNAME", "env-user")
	t.Setenv("DEXCOM_PASSWORD", "env-pass")
	t.Setenv("NIGHTSCOUT_URL", "https://env.example.com")
	t.Setenv("NIGHTSCOUT_TOKEN", "env-token")
	t.Setenv("NIGHTSCOUT_SECRET", "env-secret")

	s := Settings{DexcomUsername: "flag-user"}.FromEnv()

	assert.Equal(t, "flag-user", s.DexcomUsername)
	assert.Equal(t, "env-pass", s.DexcomPassword)
	assert.Equal(t, "https://env.example.com", s.NightscoutURL)
	assert.Equal(t, "env-token", s.NightscoutToken)
	assert.Equal(t, "env-secret", s.NightscoutSecret)
}

func TestClientsImplementSource(t *testing.T) {
	var _ Source = (*dexcom.Client)(nil)
	var _ Source = (*nightscout.Client)(nil)
}
