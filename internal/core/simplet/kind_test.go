package simplet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Kind
		wantErr bool
	}{
		{"proof of attendance", "proof_of_attendance", KindProofOfAttendance, false},
		{"email airdrop", "email_airdrop", KindEmailAirdrop, false},
		{"unknown", "nft_mint", "", true},
		{"empty", "", "", true},
		{"wrong case", "Email_Airdrop", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKind_Bindings(t *testing.T) {
	assert.Equal(t, "poa_db", KindProofOfAttendance.DatabaseHost())
	assert.Equal(t, "ps-poa:latest", KindProofOfAttendance.Image())
	assert.False(t, KindProofOfAttendance.HasCollection())

	assert.Equal(t, "airdrop_db", KindEmailAirdrop.DatabaseHost())
	assert.Equal(t, "ps-email-airdrop:latest", KindEmailAirdrop.Image())
	assert.True(t, KindEmailAirdrop.HasCollection())
}

func TestKind_DisplayName(t *testing.T) {
	assert.Equal(t, "Proof of Attendance", KindProofOfAttendance.DisplayName())
	assert.Equal(t, "Email Airdrop", KindEmailAirdrop.DisplayName())
	assert.Equal(t, "other", Kind("other").DisplayName())
}

func TestKinds_AllValid(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("nope").Valid())
}
